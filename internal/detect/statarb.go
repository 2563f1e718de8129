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

// StatArbDetector trades mean reversion of cointegrated pairs. It runs an
// Engle-Granger two-step per configured pair: OLS hedge ratio, then a
// Dickey-Fuller stationarity test on the residual spread.
type StatArbDetector struct {
	Log    zerolog.Logger
	Oracle oracle.Oracle
}

func NewStatArbDetector(log zerolog.Logger) *StatArbDetector {
	return &StatArbDetector{Log: log.With().Str("detector", "stat_arb").Logger()}
}

func (d *StatArbDetector) Name() domain.Strategy { return domain.StrategyStatArb }

func (d *StatArbDetector) Scan(ctx context.Context, snap *domain.Snapshot, cfg *config.Config) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, pair := range cfg.StatArb.Pairs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		symA, symB := pair[0], pair[1]
		a := closes(snap.History[symA])
		b := closes(snap.History[symB])
		n := min(len(a), len(b))
		if n < cfg.StatArb.Window+10 {
			// Not enough aligned history: skip the pair silently.
			continue
		}
		a, b = a[len(a)-n:], b[len(b)-n:]

		alpha, beta := olsFit(b, a) // A_t = alpha + beta*B_t + e_t
		if beta == 0 || math.IsNaN(beta) {
			continue
		}
		spread := residuals(b, a, alpha, beta)

		t := adfStat(spread)
		if t > adfCritical5 {
			// Unit root not rejected: no cointegration, no trade.
			continue
		}

		mu, sigma := rollingMeanStd(spread, cfg.StatArb.Window)
		if sigma == 0 {
			continue
		}
		z := (spread[len(spread)-1] - mu) / sigma
		if math.Abs(z) < cfg.StatArb.ZEntry {
			continue
		}

		tickerA, okA := snap.Tickers[symA]
		tickerB, okB := snap.Tickers[symB]
		if !okA || !okB {
			continue
		}

		// z > 0: A rich vs equilibrium -> short A, long beta*B.
		// z < 0: A cheap -> long A, short beta*B.
		notional := cfg.Scanning.NotionalCapUSD / 2
		sizeA := notional / tickerA.Mid()
		sizeB := math.Abs(beta) * sizeA // hedge_ratio units of B per unit of A

		var legs []domain.Leg
		if z > 0 {
			legs = []domain.Leg{
				{Venue: domain.VenueSpot, Action: domain.ActionSell, Symbol: symA, Size: sizeA, Price: tickerA.Bid},
				{Venue: domain.VenueSpot, Action: domain.ActionBuy, Symbol: symB, Size: sizeB, Price: tickerB.Ask},
			}
		} else {
			legs = []domain.Leg{
				{Venue: domain.VenueSpot, Action: domain.ActionBuy, Symbol: symA, Size: sizeA, Price: tickerA.Ask},
				{Venue: domain.VenueSpot, Action: domain.ActionSell, Symbol: symB, Size: sizeB, Price: tickerB.Bid},
			}
		}

		// Expected capture: spread reverting from z to the exit band.
		gross := (math.Abs(z) - cfg.StatArb.ZExit) * sigma / tickerA.Mid()
		if gross <= 0 {
			continue
		}

		hl := halfLife(spread)
		horizon := 7 * 24 * time.Hour
		if hl > 0 {
			horizon = time.Duration(hl * float64(24*time.Hour))
		}

		feeA := snap.Fee(symA, 0.001)
		feeB := snap.Fee(symB, 0.001)

		conf := d.confidence(ctx, z, t, cfg)

		liq := math.Min(pairLiquidity(snap, symA), pairLiquidity(snap, symB))

		out = append(out, domain.Opportunity{
			Strategy:       domain.StrategyStatArb,
			Legs:           legs,
			ExpectedReturn: gross,
			Horizon:        horizon,
			RiskScore:      statArbRisk(z, hl),
			Confidence:     conf,
			LiquidityUSD:   liq,
			SlippageEst:    0.001,
			FeesEst:        feeA + feeB,
			CreatedAt:      snap.PinnedAt,
			TTL:            cfg.Scanning.OpportunityTTL,
		})
	}
	return out, nil
}

// confidence grows with distance past the entry band and the strength of the
// stationarity rejection.
func (d *StatArbDetector) confidence(ctx context.Context, z, adf float64, cfg *config.Config) float64 {
	conf := 50.0
	conf += clamp((math.Abs(z)-cfg.StatArb.ZEntry)*25, 0, 30)
	conf += clamp((adfCritical5-adf)*5, 0, 15) // more negative ADF = stronger rejection
	if d.Oracle != nil {
		if p, err := d.Oracle.Predict(ctx, oracle.Features{"z": z, "adf": adf}); err == nil {
			conf = conf*(1-0.2*p.Confidence) + clamp(p.Value*100, 0, 100)*0.2*p.Confidence
		}
	}
	return clamp(conf, 0, 100)
}

// statArbRisk rises when reversion is slow and with extreme dislocations,
// which often signal a broken relation rather than a bigger edge.
func statArbRisk(z, hl float64) float64 {
	risk := 30.0
	if hl == 0 {
		risk += 20 // no measurable reversion speed
	} else if hl > 14 {
		risk += clamp(hl-14, 0, 20)
	}
	if math.Abs(z) > 3.5 {
		risk += 15
	}
	return clamp(risk, 0, 100)
}

func closes(pts []domain.PricePoint) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Close
	}
	return out
}

func pairLiquidity(snap *domain.Snapshot, sym string) float64 {
	if b, ok := snap.Books[sym]; ok {
		bid, ask := b.BidDepthUSD(), b.AskDepthUSD()
		if bid < ask {
			return bid
		}
		return ask
	}
	if t, ok := snap.Tickers[sym]; ok {
		return t.Volume24h * t.Mid() * 0.001
	}
	return 0
}
