// Package detect holds the six strategy detectors. Each detector is pure
// with respect to the pinned snapshot: same snapshot and config in, same
// opportunities out.
package detect

import (
	"context"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

// Detector is the contract every strategy family implements.
type Detector interface {
	Name() domain.Strategy
	Scan(ctx context.Context, snap *domain.Snapshot, cfg *config.Config) ([]domain.Opportunity, error)
}

// Opportunities returned by detectors carry the GROSS expected return; the
// normalizer subtracts FeesEst and SlippageEst. Detectors fill strategy-
// native risk scores which the normalizer maps onto the shared 0..100 scale.

// perpToSpot maps a perpetual symbol to its spot pair: BTCUSDT-PERP -> BTC/USDT.
func perpToSpot(perp string) (string, bool) {
	const suffix = "-PERP"
	if len(perp) <= len(suffix) || perp[len(perp)-len(suffix):] != suffix {
		return "", false
	}
	flat := perp[:len(perp)-len(suffix)]
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if len(flat) > len(quote) && flat[len(flat)-len(quote):] == quote {
			return flat[:len(flat)-len(quote)] + "/" + quote, true
		}
	}
	return "", false
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
