package gateway

import (
	"context"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

// Pin assembles the immutable snapshot one scan reads from. Every key is
// fetched exactly once; detectors then share the maps, so two lookups of the
// same key inside a scan are bitwise identical by construction. Individual
// read failures leave gaps rather than failing the pin — detectors skip what
// is missing. When ctx expires mid-pin the snapshot gathered so far is
// returned together with the context error; callers decide whether partial
// data is usable.
func (g *Gateway) Pin(ctx context.Context, u config.UniverseConfig, histWindow int) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		PinnedAt:       g.clock.Now(),
		Tickers:        make(map[string]domain.SpotTicker),
		Books:          make(map[string]domain.OrderBook),
		Funding:        make(map[string]domain.FundingRateSample),
		FundingHistory: make(map[string][]float64),
		Basis:          make(map[string]domain.FuturesBasis),
		BasisHistory:   make(map[string][]float64),
		P2P:            make(map[string][]domain.P2PAd),
		Fiat:           make(map[string]domain.FiatRate),
		History:        make(map[string][]domain.PricePoint),
		TakerFee:       make(map[string]float64),
	}

	depth := u.BookDepth
	if depth <= 0 {
		depth = 20
	}

	for _, sym := range u.SpotSymbols {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		if t, err := g.SpotTicker(ctx, sym); err == nil {
			snap.Tickers[sym] = t
		} else {
			g.log.Debug().Err(err).Str("symbol", sym).Msg("pin: ticker unavailable")
		}
		if b, err := g.OrderBook(ctx, sym, depth); err == nil {
			snap.Books[sym] = b
		}
		if h, err := g.PriceHistory(ctx, sym, histWindow); err == nil && len(h) > 0 {
			snap.History[sym] = h
		}
	}

	if rates, err := g.FundingRates(ctx); err == nil {
		for _, r := range rates {
			snap.Funding[r.Symbol] = r
		}
	} else {
		g.log.Debug().Err(err).Msg("pin: funding unavailable")
	}

	historian, hasHistory := g.src.(RateHistorian)
	for _, sym := range u.PerpSymbols {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		if b, err := g.FuturesBasis(ctx, sym); err == nil {
			snap.Basis[sym] = b
		}
		if ob, err := g.OrderBook(ctx, sym, depth); err == nil {
			snap.Books[sym] = ob
		}
		if hasHistory {
			if fh, err := historian.FundingHistory(ctx, sym, histWindow); err == nil && len(fh) > 0 {
				snap.FundingHistory[sym] = fh
			}
			if bh, err := historian.BasisHistory(ctx, sym, histWindow); err == nil && len(bh) > 0 {
				snap.BasisHistory[sym] = bh
			}
		}
	}

	for _, m := range u.P2PMarkets {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		asset, fiat := m[0], m[1]
		for _, side := range []domain.P2PSide{domain.P2PBuy, domain.P2PSell} {
			if ads, err := g.P2PAds(ctx, asset, fiat, side); err == nil && len(ads) > 0 {
				snap.P2P[domain.P2PKey(asset, fiat, side)] = ads
			}
		}
	}

	for _, c := range u.FiatCrosses {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		if r, err := g.FiatRate(ctx, c[0], c[1]); err == nil {
			snap.Fiat[domain.FiatKey(c[0], c[1])] = r
		}
	}

	return snap, nil
}
