package detect

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
	"github.com/quantavo/arbscan/internal/oracle"
)

// FundingDetector harvests perpetual funding through a delta-neutral pair:
// long spot + short perp when funding is positive, the inverse when funding
// is negative.
type FundingDetector struct {
	Log    zerolog.Logger
	Oracle oracle.Oracle
}

func NewFundingDetector(log zerolog.Logger) *FundingDetector {
	return &FundingDetector{Log: log.With().Str("detector", "funding").Logger()}
}

func (d *FundingDetector) Name() domain.Strategy { return domain.StrategyFunding }

func (d *FundingDetector) Scan(ctx context.Context, snap *domain.Snapshot, cfg *config.Config) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for perp, fr := range snap.Funding {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if fr.Rate == 0 {
			continue
		}
		spotSym, ok := perpToSpot(perp)
		if !ok {
			continue
		}
		ticker, ok := snap.Tickers[spotSym]
		if !ok {
			continue
		}

		apy := math.Abs(fr.Rate) * fr.FundingsPerYear()
		if apy < cfg.Funding.MinAPY {
			continue
		}

		spotFee := snap.Fee(spotSym, 0.001)
		perpFee := snap.Fee(perp, 0.0005)
		slippage := 0.0005
		entryCost := spotFee + perpFee + slippage

		// Fundings needed to recoup the entry cost.
		breakEven := int(math.Ceil(entryCost / math.Abs(fr.Rate)))
		if breakEven < 1 {
			breakEven = 1
		}
		interval := time.Duration(fr.IntervalHours * float64(time.Hour))
		if interval <= 0 {
			interval = 8 * time.Hour
		}
		// Hold long enough to clear break-even with margin.
		horizon := time.Duration(breakEven*3) * interval

		size, liquidity := d.sizeLegs(snap, spotSym, perp, ticker, cfg.Scanning.NotionalCapUSD)
		if size <= 0 {
			continue
		}

		perpPrice := fr.MarkPrice
		if perpPrice <= 0 {
			perpPrice = ticker.Ask
		}

		var legs []domain.Leg
		if fr.Rate > 0 {
			legs = []domain.Leg{
				{Venue: domain.VenueSpot, Action: domain.ActionBuy, Symbol: spotSym, Size: size, Price: ticker.Ask},
				{Venue: domain.VenuePerp, Action: domain.ActionSell, Symbol: perp, Size: size, Price: perpPrice},
			}
		} else {
			legs = []domain.Leg{
				{Venue: domain.VenueSpot, Action: domain.ActionSell, Symbol: spotSym, Size: size, Price: ticker.Bid,
					Notes: "requires spot borrow"},
				{Venue: domain.VenuePerp, Action: domain.ActionBuy, Symbol: perp, Size: size, Price: perpPrice},
			}
		}

		// Gross return over the horizon: funding captured each interval.
		intervals := float64(horizon / interval)
		gross := math.Abs(fr.Rate) * intervals

		hist := snap.FundingHistory[perp]
		sharpe := sharpeRatio(hist, cfg.Risk.RiskFreeRate, fr.FundingsPerYear(), cfg.Funding.MinHistorySharpe)

		confidence := d.confidence(ctx, fr, hist)

		out = append(out, domain.Opportunity{
			Strategy:       domain.StrategyFunding,
			Legs:           legs,
			ExpectedReturn: gross,
			ExpectedAPY:    &apy,
			Horizon:        horizon,
			RiskScore:      fundingRisk(fr, hist),
			Confidence:     confidence,
			Sharpe:         sharpe,
			LiquidityUSD:   liquidity,
			SlippageEst:    slippage,
			FeesEst:        spotFee + perpFee,
			CreatedAt:      snap.PinnedAt,
			TTL:            cfg.Scanning.OpportunityTTL,
		})
	}
	return out, nil
}

// sizeLegs caps the position so notional stays inside spot depth, perp depth
// and the configured cap.
func (d *FundingDetector) sizeLegs(snap *domain.Snapshot, spotSym, perp string, t domain.SpotTicker, capUSD float64) (size, liquidity float64) {
	notional := capUSD
	liquidity = capUSD

	if b, ok := snap.Books[spotSym]; ok {
		if depth := b.AskDepthUSD(); depth < liquidity {
			liquidity = depth
		}
	}
	if b, ok := snap.Books[perp]; ok {
		if depth := b.BidDepthUSD(); depth < liquidity {
			liquidity = depth
		}
	}
	if liquidity < notional {
		notional = liquidity
	}
	if t.Ask <= 0 {
		return 0, 0
	}
	return notional / t.Ask, liquidity
}

// fundingRisk combines funding volatility with a liquidation-distance
// penalty. The construction is 1x so leverage contributes its floor factor.
func fundingRisk(fr domain.FundingRateSample, hist []float64) float64 {
	base := 15.0
	if len(hist) >= 3 {
		_, sd := rollingMeanStd(hist, len(hist))
		// Volatile funding relative to its current level is the main risk.
		if fr.Rate != 0 {
			base += clamp(sd/math.Abs(fr.Rate)*10, 0, 40)
		}
	} else {
		base += 10 // no history, assume moderate variability
	}
	// Mark/index dislocation proxies liquidation pressure.
	if fr.IndexPrice > 0 {
		dislocation := math.Abs(fr.MarkPrice-fr.IndexPrice) / fr.IndexPrice
		base *= 1 + clamp(dislocation*20, 0, 1)
	}
	return clamp(base, 0, 100)
}

func (d *FundingDetector) confidence(ctx context.Context, fr domain.FundingRateSample, hist []float64) float64 {
	conf := 50.0
	if len(hist) >= 3 {
		// Persistent same-sign funding raises conviction.
		same := 0
		for _, r := range hist[len(hist)-min(len(hist), 10):] {
			if (r > 0) == (fr.Rate > 0) {
				same++
			}
		}
		conf += float64(same) * 3
	}
	if d.Oracle != nil {
		p, err := d.Oracle.Predict(ctx, oracle.Features{
			"funding_rate": fr.Rate,
			"mark_price":   fr.MarkPrice,
			"index_price":  fr.IndexPrice,
		})
		if err == nil {
			conf = conf*(1-p.Confidence*0.3) + clamp(p.Value*100, 0, 100)*p.Confidence*0.3
		} else {
			d.Log.Debug().Err(err).Str("symbol", fr.Symbol).Msg("oracle unavailable")
		}
	}
	return clamp(conf, 0, 100)
}
