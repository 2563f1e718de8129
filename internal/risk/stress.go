package risk

import (
	"math"

	"github.com/quantavo/arbscan/internal/domain"
)

const (
	crashShock     = -0.20 // uniform market move
	crisisSlippage = 0.05  // extra slippage per unit of turnover
	reversalFactor = 2.0   // funding flips sign: lose the carry and pay it
)

// Stress replays the closed scenario set over an allocation. Each scenario
// produces a portfolio PnL and names the worst-hit position; WORST_CASE takes
// the per-position minimum across the directional scenarios.
func (a *Analyzer) Stress(opps []domain.Opportunity, x []float64, capital float64) []domain.StressResult {
	n := len(opps)
	crash := make([]float64, n)
	crisis := make([]float64, n)
	reversal := make([]float64, n)

	for i := range opps {
		o := &opps[i]
		alloc := x[i] * capital
		if alloc <= 0 {
			continue
		}

		// A -20% move hits the larger of the book's open directional share
		// and the strategy's market beta; hedged books still bleed through
		// basis and settlement gaps captured by the beta floor.
		if gross := o.GrossNotional(); gross > 0 {
			directional := math.Abs(o.NetExposure()) / gross
			crash[i] = crashShock * alloc * math.Max(directional, a.betaFor(o.Strategy))
		}

		// One full turnover at crisis slippage to unwind.
		crisis[i] = -crisisSlippage * alloc

		if o.Strategy == domain.StrategyFunding {
			reversal[i] = -reversalFactor * o.ExpectedReturn * alloc
		}
	}

	worst := make([]float64, n)
	for i := range worst {
		worst[i] = math.Min(crash[i], math.Min(crisis[i], reversal[i]))
	}

	return []domain.StressResult{
		result(domain.StressMarketCrash, crash, opps, capital),
		result(domain.StressLiquidityCrisis, crisis, opps, capital),
		result(domain.StressFundingReversal, reversal, opps, capital),
		result(domain.StressWorstCase, worst, opps, capital),
	}
}

// betaFor is the configured market beta for a strategy family.
func (a *Analyzer) betaFor(s domain.Strategy) float64 {
	if b, ok := a.cfg.StrategyBeta[string(s)]; ok {
		return b
	}
	return 0.1
}

func result(s domain.StressScenario, pnl []float64, opps []domain.Opportunity, capital float64) domain.StressResult {
	var total float64
	worstIdx := -1
	for i, p := range pnl {
		total += p
		if worstIdx < 0 || p < pnl[worstIdx] {
			worstIdx = i
		}
	}
	r := domain.StressResult{Scenario: s, PnLUSD: total}
	if capital > 0 {
		r.PnLPct = total / capital
	}
	if worstIdx >= 0 && pnl[worstIdx] < 0 {
		r.WorstLeg = opps[worstIdx].ID
	}
	return r
}

// Rating grades the portfolio A through F from its risk report and the worst
// stress drawdown.
func Rating(r domain.PortfolioRisk, stress []domain.StressResult) string {
	worstDD := 0.0
	for _, s := range stress {
		if s.PnLPct < worstDD {
			worstDD = s.PnLPct
		}
	}
	score := 0
	switch {
	case r.Sharpe >= 2:
		score += 40
	case r.Sharpe >= 1:
		score += 30
	case r.Sharpe >= 0.5:
		score += 20
	case r.Sharpe > 0:
		score += 10
	}
	switch {
	case r.Sigma <= 0.05:
		score += 25
	case r.Sigma <= 0.10:
		score += 18
	case r.Sigma <= 0.20:
		score += 10
	}
	switch {
	case worstDD >= -0.05:
		score += 20
	case worstDD >= -0.10:
		score += 12
	case worstDD >= -0.20:
		score += 5
	}
	if r.DiversificationRatio >= 1.2 {
		score += 15
	} else if r.DiversificationRatio >= 1.0 {
		score += 8
	}
	score -= 10 * len(r.LimitBreaches)

	switch {
	case score >= 85:
		return "A"
	case score >= 70:
		return "B"
	case score >= 55:
		return "C"
	case score >= 40:
		return "D"
	}
	return "F"
}
