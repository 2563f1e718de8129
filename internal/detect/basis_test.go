package detect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

func TestBasisDetectorContango(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 500_000)
	addMarket(snap, "BTCUSDT-PERP", 63_990, 64_010, 500_000)
	snap.Basis["BTCUSDT-PERP"] = domain.FuturesBasis{
		Symbol:       "BTCUSDT-PERP",
		SpotPrice:    64_000,
		FuturesPrice: 64_320,
		Basis:        0.005,
	}

	opps, err := NewBasisDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, domain.StrategyDeltaNeutral, o.Strategy)

	// 0.5% basis at the 80% capture target, no funding carry in play.
	assert.InDelta(t, 0.004, o.ExpectedReturn, 1e-9)
	assert.Equal(t, 7*24*time.Hour, o.Horizon)
	require.NotNil(t, o.ExpectedAPY)
	assert.InDelta(t, 0.004*365/7, *o.ExpectedAPY, 1e-6)

	require.Len(t, o.Legs, 2)
	assert.Equal(t, domain.ActionBuy, o.Legs[0].Action)
	assert.Equal(t, domain.VenueSpot, o.Legs[0].Venue)
	assert.Equal(t, domain.ActionSell, o.Legs[1].Action)
	assert.Equal(t, domain.VenuePerp, o.Legs[1].Venue)
}

func TestBasisDetectorBackwardationCarriesDirectionRisk(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 500_000)
	addMarket(snap, "BTCUSDT-PERP", 63_990, 64_010, 500_000)
	snap.Basis["BTCUSDT-PERP"] = domain.FuturesBasis{
		Symbol:       "BTCUSDT-PERP",
		SpotPrice:    64_000,
		FuturesPrice: 63_680,
		Basis:        -0.005,
	}

	opps, err := NewBasisDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, domain.ActionBuy, o.Legs[0].Action)
	assert.Equal(t, domain.VenuePerp, o.Legs[0].Venue)
	assert.Contains(t, o.Legs[0].Notes, "direction risk")
	assert.Contains(t, o.Legs[1].Notes, "borrow")
}

func TestBasisDetectorContangoRiskBelowBackwardation(t *testing.T) {
	cfg := config.Default()
	mk := func(basis float64) *domain.Snapshot {
		snap := newSnapshot()
		addMarket(snap, "BTC/USDT", 63_990, 64_010, 500_000)
		addMarket(snap, "BTCUSDT-PERP", 63_990, 64_010, 500_000)
		snap.Basis["BTCUSDT-PERP"] = domain.FuturesBasis{
			Symbol: "BTCUSDT-PERP", SpotPrice: 64_000,
			FuturesPrice: 64_000 * (1 + basis), Basis: basis,
		}
		return snap
	}

	d := NewBasisDetector(testLog)
	contango, err := d.Scan(context.Background(), mk(0.005), cfg)
	require.NoError(t, err)
	backward, err := d.Scan(context.Background(), mk(-0.005), cfg)
	require.NoError(t, err)
	require.Len(t, contango, 1)
	require.Len(t, backward, 1)
	assert.Less(t, contango[0].RiskScore, backward[0].RiskScore)
}

func TestBasisDetectorFundingCarryAdds(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 500_000)
	addMarket(snap, "BTCUSDT-PERP", 63_990, 64_010, 500_000)
	snap.Basis["BTCUSDT-PERP"] = domain.FuturesBasis{
		Symbol: "BTCUSDT-PERP", SpotPrice: 64_000, FuturesPrice: 64_320, Basis: 0.005,
	}
	snap.Funding["BTCUSDT-PERP"] = domain.FundingRateSample{
		Symbol: "BTCUSDT-PERP", Rate: 0.0001, IntervalHours: 8,
	}

	opps, err := NewBasisDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	// Short perp on a 7-day hold collects 21 positive fundings on top of the
	// basis capture.
	assert.InDelta(t, 0.004+0.0001*21, opps[0].ExpectedReturn, 1e-9)
}

func TestBasisDetectorBelowFloor(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 500_000)
	snap.Basis["BTCUSDT-PERP"] = domain.FuturesBasis{
		Symbol: "BTCUSDT-PERP", SpotPrice: 64_000, FuturesPrice: 64_064, Basis: 0.001,
	}

	opps, err := NewBasisDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestBasisDetectorDatedFutureHorizonFromExpiry(t *testing.T) {
	cfg := config.Default()
	snap := newSnapshot()
	addMarket(snap, "BTC/USDT", 63_990, 64_010, 500_000)
	snap.Basis["BTC/USDT"] = domain.FuturesBasis{
		Symbol:       "BTC/USDT",
		SpotPrice:    64_000,
		FuturesPrice: 64_640,
		Basis:        0.01,
		Expiry:       snap.PinnedAt.Add(30 * 24 * time.Hour),
	}

	opps, err := NewBasisDetector(testLog).Scan(context.Background(), snap, cfg)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	// 30 days to expiry at the 80% capture target: a 24-day hold.
	assert.Equal(t, 24*24*time.Hour, opps[0].Horizon)
}
