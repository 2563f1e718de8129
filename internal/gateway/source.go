package gateway

import (
	"context"
	"time"

	"github.com/quantavo/arbscan/internal/domain"
)

// MarketDataSource is the capability set the gateway requires from a venue
// adapter. Every operation is an idempotent read honoring ctx deadlines.
type MarketDataSource interface {
	Name() string

	SpotTicker(ctx context.Context, symbol string) (domain.SpotTicker, error)
	OrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error)
	FundingRates(ctx context.Context) ([]domain.FundingRateSample, error)
	FuturesBasis(ctx context.Context, symbol string) (domain.FuturesBasis, error)
	P2PAds(ctx context.Context, asset, fiat string, side domain.P2PSide) ([]domain.P2PAd, error)
	PriceHistory(ctx context.Context, symbol string, window int) ([]domain.PricePoint, error)
}

// RateHistorian is an optional capability a venue adapter may implement to
// expose funding and basis history. Detectors gate their Sharpe and
// half-life estimates on its presence.
type RateHistorian interface {
	FundingHistory(ctx context.Context, symbol string, n int) ([]float64, error)
	BasisHistory(ctx context.Context, symbol string, n int) ([]float64, error)
}

// FiatSource quotes cross-fiat rates. Sources are consulted in priority
// order: official anchors first (TRM for COP), then market validators.
type FiatSource interface {
	Name() string
	Rate(ctx context.Context, base, quote string) (domain.FiatRate, error)
}

// Clock is the monotonic time port. The real implementation is time.Now;
// tests substitute a fixed clock for deterministic snapshots.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
