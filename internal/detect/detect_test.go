package detect

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantavo/arbscan/internal/domain"
)

var testLog = zerolog.Nop()

// newSnapshot returns an empty pinned snapshot for tests to populate.
func newSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		PinnedAt:       time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		Tickers:        map[string]domain.SpotTicker{},
		Books:          map[string]domain.OrderBook{},
		Funding:        map[string]domain.FundingRateSample{},
		FundingHistory: map[string][]float64{},
		Basis:          map[string]domain.FuturesBasis{},
		BasisHistory:   map[string][]float64{},
		P2P:            map[string][]domain.P2PAd{},
		Fiat:           map[string]domain.FiatRate{},
		History:        map[string][]domain.PricePoint{},
		TakerFee:       map[string]float64{},
	}
}

// addMarket installs a ticker and a deep symmetric book for one symbol.
func addMarket(snap *domain.Snapshot, sym string, bid, ask, depthUSD float64) {
	snap.Tickers[sym] = domain.SpotTicker{Symbol: sym, Bid: bid, Ask: ask, Last: (bid + ask) / 2}
	mid := (bid + ask) / 2
	snap.Books[sym] = domain.OrderBook{
		Symbol: sym,
		Bids:   []domain.BookLevel{{Price: bid, Size: depthUSD / mid}},
		Asks:   []domain.BookLevel{{Price: ask, Size: depthUSD / mid}},
	}
}

// cointegratedHistory builds n aligned closes where a = alpha + beta*b + e
// with a stationary oscillating residual, spiking the final point by shock.
func cointegratedHistory(snap *domain.Snapshot, symA, symB string, n int, alpha, beta, shock float64) {
	base := snap.PinnedAt.Add(-time.Duration(n) * time.Hour)
	for t := 0; t < n; t++ {
		b := 100 + 10*math.Sin(float64(t)/9) + 0.05*float64(t)
		e := 0.5 * math.Sin(float64(t))
		if t == n-1 {
			e = shock
		}
		a := alpha + beta*b + e
		ts := base.Add(time.Duration(t) * time.Hour)
		snap.History[symA] = append(snap.History[symA], domain.PricePoint{Symbol: symA, Close: a, Timestamp: ts})
		snap.History[symB] = append(snap.History[symB], domain.PricePoint{Symbol: symB, Close: b, Timestamp: ts})
	}
}
