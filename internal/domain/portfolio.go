package domain

// Allocation is one weighted position in a candidate portfolio.
type Allocation struct {
	OpportunityID  string
	Strategy       Strategy
	Weight         float64 // 0..1, weights sum to <= 1
	CapitalUSD     float64
	ExpectedReturn float64
	MarginalRisk   float64
}

// PortfolioRisk is the portfolio-level risk report for an allocation vector.
type PortfolioRisk struct {
	Sigma                float64 // portfolio volatility, fraction
	VaR95                float64 // USD loss at 95% confidence
	VaR99                float64 // USD loss at 99% confidence
	Concentration        float64 // Herfindahl, sum of squared weights
	DiversificationRatio float64
	RiskParityScore      float64
	Sharpe               float64
	CorrMatrix           [][]float64
	LimitBreaches        []string
}

// WithinLimits reports whether the risk check recorded no breaches.
func (r PortfolioRisk) WithinLimits() bool { return len(r.LimitBreaches) == 0 }

// StressScenario names one member of the closed stress-test set.
type StressScenario string

const (
	StressMarketCrash     StressScenario = "MARKET_CRASH"
	StressLiquidityCrisis StressScenario = "LIQUIDITY_CRISIS"
	StressFundingReversal StressScenario = "FUNDING_REVERSAL"
	StressWorstCase       StressScenario = "WORST_CASE"
)

// StressResult is the outcome of replaying one scenario over an allocation.
type StressResult struct {
	Scenario StressScenario
	PnLUSD   float64
	PnLPct   float64
	WorstLeg string
}

// PortfolioTier grades the chosen portfolio for the caller.
type PortfolioTier string

const (
	TierExcellent  PortfolioTier = "EXCELLENT"
	TierGood       PortfolioTier = "GOOD"
	TierMarginal   PortfolioTier = "MARGINAL"
	TierInfeasible PortfolioTier = "INFEASIBLE"
)

// Portfolio is the optimizer's output: the chosen allocations with their
// risk report, stress results and overall grade.
type Portfolio struct {
	Allocations    []Allocation
	CapitalUSD     float64
	ExpectedReturn float64 // weighted, fraction
	Risk           PortfolioRisk
	Stress         []StressResult
	Rating         string // A..F banded rating
	Tier           PortfolioTier
	Infeasible     bool
}
