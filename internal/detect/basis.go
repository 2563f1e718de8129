package detect

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

// BasisDetector captures spot-futures basis convergence: a carry that pays
// regardless of direction as the basis decays into expiry or reverts on a
// perpetual.
type BasisDetector struct {
	Log zerolog.Logger
}

func NewBasisDetector(log zerolog.Logger) *BasisDetector {
	return &BasisDetector{Log: log.With().Str("detector", "delta_neutral").Logger()}
}

func (d *BasisDetector) Name() domain.Strategy { return domain.StrategyDeltaNeutral }

func (d *BasisDetector) Scan(ctx context.Context, snap *domain.Snapshot, cfg *config.Config) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for sym, basis := range snap.Basis {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if math.Abs(basis.Basis) < cfg.DeltaNeut.MinBasis {
			continue
		}
		spotSym, ok := perpToSpot(sym)
		if !ok {
			spotSym = sym // dated futures carry the spot pair name
		}
		ticker, ok := snap.Tickers[spotSym]
		if !ok || basis.SpotPrice <= 0 || basis.FuturesPrice <= 0 {
			continue
		}

		spotFee := snap.Fee(spotSym, 0.001)
		futFee := snap.Fee(sym, 0.0005)
		roundtripFees := 2 * (spotFee + futFee)
		slippage := 0.001

		capture := math.Abs(basis.Basis) * cfg.DeltaNeut.CaptureTarget

		// Funding carry adds (or subtracts) while the hedge is on.
		var carry float64
		holding := d.holdingPeriod(snap, sym, basis, cfg)
		if fr, ok := snap.Funding[sym]; ok && basis.IsPerp() {
			perInterval := fr.Rate
			intervals := holding.Hours() / fr.IntervalHours
			// Contango pairs long spot/short perp: shorts receive positive funding.
			if basis.Basis > 0 {
				carry = perInterval * intervals
			} else {
				carry = -perInterval * intervals
			}
		}
		gross := capture + carry
		if gross <= 0 {
			continue
		}

		notional := cfg.Scanning.NotionalCapUSD
		liq := math.Min(pairLiquidity(snap, spotSym), pairLiquidity(snap, sym))
		if liq > 0 && liq < notional {
			notional = liq
		}
		size := notional / basis.SpotPrice

		var legs []domain.Leg
		directionRisk := false
		if basis.Basis > 0 {
			// Contango: buy spot, sell the future, deliver into convergence.
			legs = []domain.Leg{
				{Venue: domain.VenueSpot, Action: domain.ActionBuy, Symbol: spotSym, Size: size, Price: ticker.Ask},
				{Venue: domain.VenuePerp, Action: domain.ActionSell, Symbol: sym, Size: size, Price: basis.FuturesPrice},
			}
		} else {
			// Backwardation: long the discounted future. The spot short may
			// not be borrowable, so this variant carries direction risk.
			directionRisk = true
			legs = []domain.Leg{
				{Venue: domain.VenuePerp, Action: domain.ActionBuy, Symbol: sym, Size: size, Price: basis.FuturesPrice,
					Notes: "direction risk: unhedged unless spot borrow available"},
				{Venue: domain.VenueSpot, Action: domain.ActionSell, Symbol: spotSym, Size: size, Price: ticker.Bid,
					Notes: "requires spot borrow"},
			}
		}

		risk := 20.0
		if directionRisk {
			risk += 25
		}
		if basis.IsPerp() {
			risk += 5 // no hard convergence date
		}

		out = append(out, domain.Opportunity{
			Strategy:       domain.StrategyDeltaNeutral,
			Legs:           legs,
			ExpectedReturn: gross,
			ExpectedAPY:    annualize(gross, holding),
			Horizon:        holding,
			RiskScore:      clamp(risk, 0, 100),
			Confidence:     basisConfidence(basis, snap.BasisHistory[sym]),
			LiquidityUSD:   liq,
			SlippageEst:    slippage,
			FeesEst:        roundtripFees,
			CreatedAt:      snap.PinnedAt,
			TTL:            cfg.Scanning.OpportunityTTL,
		})
	}
	return out, nil
}

// holdingPeriod picks the expected hold: a fraction of time-to-expiry for
// dated futures, the basis half-life for perps, or the configured default.
func (d *BasisDetector) holdingPeriod(snap *domain.Snapshot, sym string, b domain.FuturesBasis, cfg *config.Config) time.Duration {
	if !b.IsPerp() {
		days := b.Expiry.Sub(snap.PinnedAt).Hours() / 24
		if days < 1 {
			days = 1
		}
		return time.Duration(math.Ceil(days*cfg.DeltaNeut.CaptureTarget)) * 24 * time.Hour
	}
	if hist := snap.BasisHistory[sym]; len(hist) >= 10 {
		if hl := halfLife(hist); hl > 0 {
			return time.Duration(math.Ceil(hl)) * 24 * time.Hour
		}
	}
	return time.Duration(cfg.DeltaNeut.DefaultHoldingDays) * 24 * time.Hour
}

func basisConfidence(b domain.FuturesBasis, hist []float64) float64 {
	conf := 55.0
	if !b.IsPerp() {
		conf += 15 // convergence at expiry is contractual
	}
	if len(hist) >= 10 {
		_, sd := rollingMeanStd(hist, len(hist))
		if sd > 0 && math.Abs(b.Basis) > 2*sd {
			conf += 10 // unusually wide basis vs its own history
		}
	}
	return clamp(conf, 0, 100)
}

func annualize(ret float64, holding time.Duration) *float64 {
	if holding <= 0 {
		return nil
	}
	apy := ret * float64(365*24*time.Hour) / float64(holding)
	return &apy
}
