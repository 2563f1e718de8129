package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

// mispricedTriangle prices ETH/USDT 4% above the BTC-implied level, leaving a
// profitable USDT -> BTC -> ETH -> USDT loop.
func mispricedTriangle() *domain.Snapshot {
	snap := newSnapshot()
	addMarket(snap, "BTC/USDT", 49_990, 50_000, 500_000)
	addMarket(snap, "ETH/BTC", 0.0499, 0.05, 500_000)
	addMarket(snap, "ETH/USDT", 2_600, 2_601, 500_000)
	return snap
}

func TestTriangleDetectorFindsLoop(t *testing.T) {
	cfg := config.Default()
	opps, err := NewTriangleDetector(testLog).Scan(context.Background(), mispricedTriangle(), cfg)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, domain.StrategyTriangle, o.Strategy)
	require.Len(t, o.Legs, 3)
	assert.True(t, o.IsCycle())
	assert.Equal(t, "USDT", o.Legs[0].Symbol[:4])

	// Gross return backs the haircuts out of the cycle ROI; the normalizer's
	// net figure must round-trip to the traded edge.
	net := o.ExpectedReturn - o.FeesEst - o.SlippageEst
	assert.InDelta(t, 0.0366, net, 0.002)
	assert.Zero(t, o.Horizon)
	assert.Positive(t, o.Confidence)
	assert.False(t, o.SemiManual)
}

func TestTriangleDetectorLegAmountsChain(t *testing.T) {
	cfg := config.Default()
	opps, err := NewTriangleDetector(testLog).Scan(context.Background(), mispricedTriangle(), cfg)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	legs := opps[0].Legs
	for i := 1; i < len(legs); i++ {
		// Each hop starts with the previous hop's proceeds.
		assert.InDelta(t, legs[i-1].Size*legs[i-1].Price, legs[i].Size, 1e-6)
	}
}

func TestTriangleDetectorFairMarketQuiet(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "BTC/USDT", 49_999, 50_001, 500_000)
	addMarket(snap, "ETH/BTC", 0.04999, 0.05001, 500_000)
	addMarket(snap, "ETH/USDT", 2_499, 2_501, 500_000)

	opps, err := NewTriangleDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestTriangleDetectorThinBooksFiltered(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "BTC/USDT", 49_990, 50_000, 2_000)
	addMarket(snap, "ETH/BTC", 0.0499, 0.05, 2_000)
	addMarket(snap, "ETH/USDT", 2_600, 2_601, 2_000)

	opps, err := NewTriangleDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	assert.Empty(t, opps)
}
