package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

func TestStatArbDetectorRichSpread(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "ETH/USDT", 3_199, 3_201, 400_000)
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 400_000)
	// Final residual +3 on a ~0.35 sigma spread: deep in the entry zone.
	cointegratedHistory(snap, "ETH/USDT", "BTC/USDT", 100, 10, 2, 3)

	opps, err := NewStatArbDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, domain.StrategyStatArb, o.Strategy)
	assert.Positive(t, o.ExpectedReturn)

	// Spread rich: short the first symbol, long the second at the hedge ratio.
	require.Len(t, o.Legs, 2)
	assert.Equal(t, domain.ActionSell, o.Legs[0].Action)
	assert.Equal(t, "ETH/USDT", o.Legs[0].Symbol)
	assert.Equal(t, domain.ActionBuy, o.Legs[1].Action)
	assert.Equal(t, "BTC/USDT", o.Legs[1].Symbol)
	assert.InDelta(t, 2.0, o.Legs[1].Size/o.Legs[0].Size, 0.1)

	assert.Greater(t, o.Confidence, 50.0)
	assert.Positive(t, o.Horizon)
}

func TestStatArbDetectorCheapSpreadLongsA(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "ETH/USDT", 3_199, 3_201, 400_000)
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 400_000)
	cointegratedHistory(snap, "ETH/USDT", "BTC/USDT", 100, 10, 2, -3)

	opps, err := NewStatArbDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.ActionBuy, opps[0].Legs[0].Action)
	assert.Equal(t, domain.ActionSell, opps[0].Legs[1].Action)
}

func TestStatArbDetectorInsideEntryBand(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "ETH/USDT", 3_199, 3_201, 400_000)
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 400_000)
	// Residual ends on its usual oscillation: |z| stays under the gate.
	cointegratedHistory(snap, "ETH/USDT", "BTC/USDT", 100, 10, 2, 0.2)

	opps, err := NewStatArbDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestStatArbDetectorNoCointegration(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "ETH/USDT", 3_199, 3_201, 400_000)
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 400_000)
	// Diverging trends: the OLS residual keeps a trend, ADF cannot reject.
	base := snap.PinnedAt
	for i := 0; i < 100; i++ {
		snap.History["ETH/USDT"] = append(snap.History["ETH/USDT"],
			domain.PricePoint{Close: 3_000 + float64(i*i)/10, Timestamp: base})
		snap.History["BTC/USDT"] = append(snap.History["BTC/USDT"],
			domain.PricePoint{Close: 64_000 + float64(i), Timestamp: base})
	}

	opps, err := NewStatArbDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestStatArbDetectorInsufficientHistory(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "ETH/USDT", 3_199, 3_201, 400_000)
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 400_000)
	cointegratedHistory(snap, "ETH/USDT", "BTC/USDT", cfg.StatArb.Window+5, 10, 2, 3)

	opps, err := NewStatArbDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	assert.Empty(t, opps)
}
