// Package portfolio turns a ranked opportunity list into a capital
// allocation: mean-variance objective, projected-gradient solve on the capped
// simplex, then a repair loop that shrinks risk until limits hold.
package portfolio

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
	"github.com/quantavo/arbscan/internal/risk"
)

const (
	repairIterations = 5
	repairShrink     = 0.8 // riskiest positions keep 80% of their weight per pass
)

// Optimizer selects and weights positions under the risk analyzer's model.
type Optimizer struct {
	cfg *config.Config
	rsk *risk.Analyzer
	log zerolog.Logger
}

func New(cfg *config.Config, analyzer *risk.Analyzer, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		cfg: cfg,
		rsk: analyzer,
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize builds a portfolio from normalized opportunities and capital.
// Semi-manual opportunities are excluded unless configured allocatable.
func (o *Optimizer) Optimize(ctx context.Context, opps []domain.Opportunity, capitalUSD float64) (*domain.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candidates := o.filter(opps)
	if len(candidates) == 0 {
		return &domain.Portfolio{
			CapitalUSD: capitalUSD,
			Tier:       domain.TierInfeasible,
			Infeasible: true,
		}, nil
	}

	n := len(candidates)
	mu := make([]float64, n)
	sigma := make([]float64, n)
	caps := make([]float64, n)
	for i := range candidates {
		c := &candidates[i]
		mu[i] = risk.AnnualizedReturn(c)
		sigma[i] = o.rsk.PositionVol(c)
		caps[i] = o.positionCap(c, capitalUSD)
	}
	corr := o.rsk.CorrMatrix(candidates, nil)
	cov := covarianceDense(sigma, corr)

	x := o.solve(ctx, mu, cov, caps)
	x = o.pruneAndCap(x, mu, cov, caps)

	// Repair loop: shrink the riskiest fifth until the limit check passes.
	var report domain.PortfolioRisk
	for iter := 0; ; iter++ {
		var err error
		report, err = o.rsk.Analyze(candidates, x, capitalUSD, nil)
		if err != nil {
			return nil, err
		}
		if report.WithinLimits() || iter >= repairIterations {
			break
		}
		x = shrinkRiskiest(x, sigma, corr)
	}

	port := o.assemble(candidates, x, capitalUSD, report)
	if !report.WithinLimits() {
		port.Infeasible = true
		port.Tier = domain.TierInfeasible
		o.log.Warn().Strs("breaches", report.LimitBreaches).Msg("no feasible allocation within risk limits")
	}
	return port, nil
}

// filter drops candidates below the return, risk, confidence and liquidity
// gates, plus expired records and non-allocatable semi-manual ones.
func (o *Optimizer) filter(opps []domain.Opportunity) []domain.Opportunity {
	sc := o.cfg.Scanning
	var out []domain.Opportunity
	for _, op := range opps {
		switch {
		case op.ExpectedReturn < sc.MinReturn,
			op.RiskScore > sc.MaxRiskScore,
			op.Confidence < sc.MinConfidence,
			op.LiquidityUSD < sc.MinLiquidityUSD,
			op.Anomalous:
			continue
		}
		if op.SemiManual && !o.cfg.SpotP2P.Allocatable {
			continue
		}
		out = append(out, op)
	}
	return out
}

func (o *Optimizer) positionCap(op *domain.Opportunity, capital float64) float64 {
	cap := o.cfg.Risk.MaxStrategyAllocation
	if k := o.rsk.KellyWeight(op, capital); k < cap {
		cap = k
	}
	if cap < 0 {
		cap = 0
	}
	return cap
}

// solve maximizes μᵀx − λ·xᵀΣx over the capped simplex {0 ≤ x_i ≤ cap_i,
// Σx ≤ 1} by projected gradient ascent with a fixed step.
func (o *Optimizer) solve(ctx context.Context, mu []float64, cov *mat.SymDense, caps []float64) []float64 {
	n := len(mu)
	oc := o.cfg.Optimizer
	lambda := oc.RiskAversionLambda

	x := make([]float64, n)
	start := 1.0 / float64(n)
	for i := range x {
		x[i] = math.Min(start, caps[i])
	}
	x = projectSimplex(x, caps)

	step := 0.1
	grad := make([]float64, n)
	next := make([]float64, n)
	for iter := 0; iter < oc.SolverMaxIters; iter++ {
		if iter%64 == 0 && ctx.Err() != nil {
			break
		}
		// ∇ = μ − 2λΣx
		sx := mat.NewVecDense(n, nil)
		sx.MulVec(cov, mat.NewVecDense(n, x))
		for i := range grad {
			grad[i] = mu[i] - 2*lambda*sx.AtVec(i)
		}
		for i := range next {
			next[i] = x[i] + step*grad[i]
		}
		next = projectSimplex(next, caps)

		var delta float64
		for i := range x {
			d := next[i] - x[i]
			delta += d * d
		}
		copy(x, next)
		if math.Sqrt(delta) < oc.SolverTolerance {
			break
		}
	}
	return x
}

// projectSimplex maps v onto {0 ≤ x_i ≤ cap_i, Σx ≤ 1} by clipping to the
// box, then bisecting a uniform shift when the budget is exceeded.
func projectSimplex(v, caps []float64) []float64 {
	x := make([]float64, len(v))
	sum := 0.0
	for i := range v {
		x[i] = clip(v[i], 0, caps[i])
		sum += x[i]
	}
	if sum <= 1 {
		return x
	}
	lo, hi := 0.0, maxOf(v)
	for k := 0; k < 60; k++ {
		theta := (lo + hi) / 2
		s := 0.0
		for i := range v {
			s += clip(v[i]-theta, 0, caps[i])
		}
		if s > 1 {
			lo = theta
		} else {
			hi = theta
		}
	}
	for i := range v {
		x[i] = clip(v[i]-hi, 0, caps[i])
	}
	return x
}

// pruneAndCap zeroes dust weights, enforces the position-count cap by
// marginal utility, then redistributes the freed weight across the survivors.
func (o *Optimizer) pruneAndCap(x, mu []float64, cov *mat.SymDense, caps []float64) []float64 {
	oc := o.cfg.Optimizer
	type pos struct {
		idx     int
		utility float64
	}
	var kept []pos
	sx := mat.NewVecDense(len(x), nil)
	sx.MulVec(cov, mat.NewVecDense(len(x), x))
	for i, w := range x {
		if w < oc.MinWeight {
			x[i] = 0
			continue
		}
		u := mu[i]*w - oc.RiskAversionLambda*w*sx.AtVec(i)
		kept = append(kept, pos{i, u})
	}

	if oc.MaxPositions > 0 && len(kept) > oc.MaxPositions {
		sort.Slice(kept, func(i, j int) bool { return kept[i].utility > kept[j].utility })
		for _, p := range kept[oc.MaxPositions:] {
			x[p.idx] = 0
		}
	}

	return redistribute(x, caps)
}

// redistribute scales surviving weights toward full deployment, clipping at
// the per-position caps. The book stays under-deployed only when every
// survivor is capped: the half-Kelly ceilings bound how far weight can grow.
func redistribute(x, caps []float64) []float64 {
	for iter := 0; iter < 16; iter++ {
		var sum float64
		for _, w := range x {
			sum += w
		}
		if sum <= 0 || sum >= 1-1e-9 {
			break
		}
		scale := 1 / sum
		grew := false
		for i, w := range x {
			if w <= 0 {
				continue
			}
			nw := math.Min(w*scale, caps[i])
			if nw > x[i]+1e-15 {
				grew = true
			}
			x[i] = nw
		}
		if !grew {
			break
		}
	}
	return x
}

// shrinkRiskiest scales down the top fifth of positions by risk contribution.
func shrinkRiskiest(x, sigma []float64, corr *mat.SymDense) []float64 {
	mr := risk.MarginalRisks(x, sigma, corr)
	type pos struct {
		idx int
		mr  float64
	}
	var active []pos
	for i, w := range x {
		if w > 0 {
			active = append(active, pos{i, mr[i]})
		}
	}
	if len(active) == 0 {
		return x
	}
	sort.Slice(active, func(i, j int) bool { return active[i].mr > active[j].mr })
	k := (len(active) + 4) / 5
	for _, p := range active[:k] {
		x[p.idx] *= repairShrink
	}
	return x
}

func (o *Optimizer) assemble(opps []domain.Opportunity, x []float64, capital float64, report domain.PortfolioRisk) *domain.Portfolio {
	sigma := make([]float64, len(opps))
	for i := range opps {
		sigma[i] = o.rsk.PositionVol(&opps[i])
	}
	mr := risk.MarginalRisks(x, sigma, o.rsk.CorrMatrix(opps, nil))

	var allocs []domain.Allocation
	var expRet float64
	chosen := make([]domain.Opportunity, 0, len(opps))
	weights := make([]float64, 0, len(opps))
	for i, w := range x {
		if w <= 0 {
			continue
		}
		op := opps[i]
		allocs = append(allocs, domain.Allocation{
			OpportunityID:  op.ID,
			Strategy:       op.Strategy,
			Weight:         w,
			CapitalUSD:     w * capital,
			ExpectedReturn: op.ExpectedReturn,
			MarginalRisk:   mr[i],
		})
		expRet += w * op.ExpectedReturn
		chosen = append(chosen, op)
		weights = append(weights, w)
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].Weight > allocs[j].Weight })

	stress := o.rsk.Stress(chosen, weights, capital)
	port := &domain.Portfolio{
		Allocations:    allocs,
		CapitalUSD:     capital,
		ExpectedReturn: expRet,
		Risk:           report,
		Stress:         stress,
		Rating:         risk.Rating(report, stress),
	}
	port.Tier = tierFor(port)
	return port
}

// tierFor grades the final portfolio. Single-position books never grade
// above MARGINAL: there is no diversification to credit.
func tierFor(p *domain.Portfolio) domain.PortfolioTier {
	if len(p.Allocations) == 0 || !p.Risk.WithinLimits() {
		return domain.TierInfeasible
	}
	if len(p.Allocations) == 1 {
		return domain.TierMarginal
	}
	switch {
	case p.Rating == "A" && p.Risk.Sharpe >= 1.5:
		return domain.TierExcellent
	case p.Rating <= "B" || p.Risk.Sharpe >= 1.0:
		return domain.TierGood
	}
	return domain.TierMarginal
}

func covarianceDense(sigma []float64, corr *mat.SymDense) *mat.SymDense {
	n := len(sigma)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, sigma[i]*sigma[j]*corr.At(i, j))
		}
	}
	return cov
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
