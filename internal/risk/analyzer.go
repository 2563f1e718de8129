// Package risk evaluates candidate allocations: per-position sizing,
// portfolio variance and VaR, stress scenarios, limit checks and the final
// letter rating.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

// Normal quantiles for the parametric VaR bands.
const (
	z95 = 1.6449
	z99 = 2.3263
)

// sameStrategyCorr is the correlation assumed between two positions of the
// same family; cross-family pairs use the configured base correlation.
const sameStrategyCorr = 0.8

// annualizedReturnCap bounds the annualization of short-horizon returns so
// instant cycles do not dominate Kelly sizing.
const annualizedReturnCap = 10.0

// Analyzer computes portfolio risk from the per-strategy volatility and
// correlation assumptions in configuration.
type Analyzer struct {
	cfg config.RiskConfig
	log zerolog.Logger
}

func New(cfg config.RiskConfig, log zerolog.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, log: log.With().Str("component", "risk").Logger()}
}

// PositionVol is the annualized volatility assigned to one position:
// strategy base vol scaled by leverage and a thin-liquidity penalty.
func (a *Analyzer) PositionVol(o *domain.Opportunity) float64 {
	vol, ok := a.cfg.StrategyVol[string(o.Strategy)]
	if !ok {
		vol = 0.25
	}
	vol *= leverage(o)
	vol *= a.liquidityPenalty(o)
	return vol
}

// leverage is 1 for the cash-and-carry constructions the scanner emits; an
// unhedged backwardation leg reads as mildly levered direction risk.
func leverage(o *domain.Opportunity) float64 {
	if gross := o.GrossNotional(); gross > 0 {
		if o.NetExposure()/gross > 0.05 {
			return 1.5
		}
	}
	return 1.0
}

func (a *Analyzer) liquidityPenalty(o *domain.Opportunity) float64 {
	if o.LiquidityUSD <= 0 {
		return 2.0
	}
	ratio := o.GrossNotional() / o.LiquidityUSD
	return 1 + clamp(ratio, 0, 1)
}

// CorrMatrix builds the pairwise correlation matrix. Same-family pairs are
// strongly correlated; cross-family pairs default to the configured low
// positive base. When strategy-level PnL histories are supplied, empirical
// Pearson correlations replace the assumptions pairwise.
func (a *Analyzer) CorrMatrix(opps []domain.Opportunity, pnlHistory map[domain.Strategy][]float64) *mat.SymDense {
	n := len(opps)
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		c.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			c.SetSym(i, j, a.pairCorr(opps[i].Strategy, opps[j].Strategy, pnlHistory))
		}
	}
	return c
}

func (a *Analyzer) pairCorr(si, sj domain.Strategy, hist map[domain.Strategy][]float64) float64 {
	if hi, ok := hist[si]; ok {
		if hj, ok := hist[sj]; ok && len(hi) == len(hj) && len(hi) >= 20 {
			return stat.Correlation(hi, hj, nil)
		}
	}
	if si == sj {
		return sameStrategyCorr
	}
	return a.cfg.BaseCorrelation
}

// Analyze computes the full risk report for weights x over opps with the
// given capital. len(x) must equal len(opps).
func (a *Analyzer) Analyze(opps []domain.Opportunity, x []float64, capital float64, pnlHistory map[domain.Strategy][]float64) (domain.PortfolioRisk, error) {
	n := len(opps)
	if len(x) != n {
		return domain.PortfolioRisk{}, fmt.Errorf("%w: %d weights for %d opportunities", domain.ErrInvalidInput, len(x), n)
	}
	if n == 0 {
		return domain.PortfolioRisk{}, nil
	}

	sigma := make([]float64, n)
	mu := make([]float64, n)
	for i := range opps {
		sigma[i] = a.PositionVol(&opps[i])
		mu[i] = AnnualizedReturn(&opps[i])
	}
	corr := a.CorrMatrix(opps, pnlHistory)

	// Σ = diag(σ) C diag(σ);  σ_p² = xᵀ Σ x
	cov := covariance(sigma, corr)
	xv := mat.NewVecDense(n, x)
	var tmp mat.VecDense
	tmp.MulVec(cov, xv)
	variance := mat.Dot(xv, &tmp)
	if variance < 0 {
		variance = 0
	}
	sigmaP := math.Sqrt(variance)

	var weightedVol, portRet, sumW float64
	for i := range x {
		weightedVol += x[i] * sigma[i]
		portRet += x[i] * mu[i]
		sumW += x[i]
	}

	divRatio := 1.0
	if sigmaP > 0 {
		divRatio = weightedVol / sigmaP
	}

	herfindahl := 0.0
	for _, w := range x {
		herfindahl += w * w
	}

	sharpe := 0.0
	if sigmaP > 0 {
		sharpe = (portRet - a.cfg.RiskFreeRate) / sigmaP
	}

	risk := domain.PortfolioRisk{
		Sigma:                sigmaP,
		VaR95:                z95 * sigmaP * capital,
		VaR99:                z99 * sigmaP * capital,
		Concentration:        herfindahl,
		DiversificationRatio: divRatio,
		RiskParityScore:      riskParity(x, sigma, corr),
		Sharpe:               sharpe,
		CorrMatrix:           denseRows(corr),
	}
	risk.LimitBreaches = a.checkLimits(opps, x, capital, risk)
	return risk, nil
}

// MarginalRisks returns x_i · (C·σ)_i for each position.
func MarginalRisks(x, sigma []float64, corr *mat.SymDense) []float64 {
	n := len(x)
	cs := mat.NewVecDense(n, nil)
	cs.MulVec(corr, mat.NewVecDense(n, sigma))
	out := make([]float64, n)
	for i := range out {
		out[i] = x[i] * cs.AtVec(i)
	}
	return out
}

func riskParity(x, sigma []float64, corr *mat.SymDense) float64 {
	mr := MarginalRisks(x, sigma, corr)
	mean := stat.Mean(mr, nil)
	if mean == 0 {
		return 0
	}
	sd := stat.StdDev(mr, nil)
	return clamp(1-sd/mean, 0, 1)
}

// checkLimits returns the list of breached limit names. The diversification
// and concentration limits apply only to multi-position portfolios: a single
// position trivially has ratio 1 and Herfindahl 1, and is graded down at the
// tier level instead.
func (a *Analyzer) checkLimits(opps []domain.Opportunity, x []float64, capital float64, r domain.PortfolioRisk) []string {
	var breaches []string

	if capital > 0 && r.VaR95/capital > a.cfg.MaxPortfolioVaRPct {
		breaches = append(breaches, fmt.Sprintf("var95 %.1f%% exceeds %.1f%%",
			100*r.VaR95/capital, 100*a.cfg.MaxPortfolioVaRPct))
	}

	byStrategy := map[domain.Strategy]float64{}
	active := 0
	for i, w := range x {
		if w > 0 {
			active++
			byStrategy[opps[i].Strategy] += w
		}
	}
	for s, w := range byStrategy {
		if w > a.cfg.MaxStrategyAllocation+1e-9 {
			breaches = append(breaches, fmt.Sprintf("strategy %s allocation %.0f%% exceeds %.0f%%",
				s, 100*w, 100*a.cfg.MaxStrategyAllocation))
		}
	}

	if active > 1 {
		if r.DiversificationRatio < a.cfg.MinDiversificationRatio {
			breaches = append(breaches, fmt.Sprintf("diversification ratio %.2f below %.2f",
				r.DiversificationRatio, a.cfg.MinDiversificationRatio))
		}
		if r.Concentration > a.cfg.MaxConcentration {
			breaches = append(breaches, fmt.Sprintf("concentration %.2f exceeds %.2f",
				r.Concentration, a.cfg.MaxConcentration))
		}
	}
	return breaches
}

// KellyWeight sizes one position: half-Kelly on annualized return and
// volatility, capped by the Kelly cap, the per-strategy ceiling, and the
// liquidity cap that keeps the position inside a fraction of leg depth.
func (a *Analyzer) KellyWeight(o *domain.Opportunity, totalCapital float64) float64 {
	sigma := a.PositionVol(o)
	if sigma <= 0 {
		return 0
	}
	mu := AnnualizedReturn(o)
	f := (mu - a.cfg.RiskFreeRate) / (sigma * sigma)
	if f < 0 {
		return 0
	}
	if f > a.cfg.KellyCap {
		f = a.cfg.KellyCap
	}
	w := f / 2

	if w > a.cfg.MaxStrategyAllocation {
		w = a.cfg.MaxStrategyAllocation
	}
	if totalCapital > 0 && o.LiquidityUSD > 0 {
		liqCap := o.LiquidityUSD / totalCapital * a.cfg.LiquidityFactor
		if w > liqCap {
			w = liqCap
		}
	}
	return w
}

// AnnualizedReturn converts the per-horizon net return to an annual figure,
// preferring the detector's own APY when present.
func AnnualizedReturn(o *domain.Opportunity) float64 {
	if o.ExpectedAPY != nil {
		return clamp(*o.ExpectedAPY, -annualizedReturnCap, annualizedReturnCap)
	}
	if o.Horizon <= 0 {
		// Instantaneous cycles: assume the edge repeats daily.
		return clamp(o.ExpectedReturn*365, -annualizedReturnCap, annualizedReturnCap)
	}
	factor := float64(365*24*time.Hour) / float64(o.Horizon)
	return clamp(o.ExpectedReturn*factor, -annualizedReturnCap, annualizedReturnCap)
}

func covariance(sigma []float64, corr *mat.SymDense) *mat.SymDense {
	n := len(sigma)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, sigma[i]*sigma[j]*corr.At(i, j))
		}
	}
	return cov
}

func denseRows(m *mat.SymDense) [][]float64 {
	n, _ := m.Dims()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
