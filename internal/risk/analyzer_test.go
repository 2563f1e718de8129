package risk

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

func newAnalyzer() *Analyzer {
	return New(config.Default().Risk, zerolog.Nop())
}

// hedged returns a delta-neutral opportunity deep inside its liquidity.
func hedged(strategy domain.Strategy, ret float64) domain.Opportunity {
	apy := ret
	return domain.Opportunity{
		ID:       string(strategy) + "-1",
		Strategy: strategy,
		Legs: []domain.Leg{
			{Venue: domain.VenueSpot, Action: domain.ActionBuy, Symbol: "BTC/USDT", Size: 0.01, Price: 64_000},
			{Venue: domain.VenuePerp, Action: domain.ActionSell, Symbol: "BTCUSDT-PERP", Size: 0.01, Price: 64_000},
		},
		ExpectedReturn: ret,
		ExpectedAPY:    &apy,
		Horizon:        30 * 24 * time.Hour,
		LiquidityUSD:   10_000_000,
	}
}

func TestPositionVolUsesStrategyBase(t *testing.T) {
	a := newAnalyzer()
	f := hedged(domain.StrategyFunding, 0.1)
	tri := hedged(domain.StrategyTriangle, 0.1)

	// Liquidity penalty is ~1 at this size, leverage 1 when hedged.
	assert.InDelta(t, 0.08, a.PositionVol(&f), 0.001)
	assert.InDelta(t, 0.05, a.PositionVol(&tri), 0.001)

	unknown := hedged(domain.Strategy("EXOTIC"), 0.1)
	assert.InDelta(t, 0.25, a.PositionVol(&unknown), 0.001)
}

func TestPositionVolPenalizesThinLiquidity(t *testing.T) {
	a := newAnalyzer()
	deep := hedged(domain.StrategyFunding, 0.1)
	thin := hedged(domain.StrategyFunding, 0.1)
	thin.LiquidityUSD = 640 // half the gross notional

	assert.Greater(t, a.PositionVol(&thin), 1.9*a.PositionVol(&deep))
}

func TestCorrMatrixAssumptions(t *testing.T) {
	a := newAnalyzer()
	opps := []domain.Opportunity{
		hedged(domain.StrategyFunding, 0.1),
		hedged(domain.StrategyFunding, 0.1),
		hedged(domain.StrategyStatArb, 0.1),
	}
	c := a.CorrMatrix(opps, nil)
	assert.Equal(t, 1.0, c.At(0, 0))
	assert.Equal(t, 0.8, c.At(0, 1)) // same family
	assert.Equal(t, 0.2, c.At(0, 2)) // cross family
	assert.Equal(t, c.At(2, 0), c.At(0, 2))
}

func TestCorrMatrixEmpiricalOverride(t *testing.T) {
	a := newAnalyzer()
	opps := []domain.Opportunity{
		hedged(domain.StrategyFunding, 0.1),
		hedged(domain.StrategyStatArb, 0.1),
	}
	// Perfectly anti-correlated PnL histories.
	n := 30
	hf := make([]float64, n)
	hs := make([]float64, n)
	for i := 0; i < n; i++ {
		hf[i] = math.Sin(float64(i))
		hs[i] = -hf[i]
	}
	c := a.CorrMatrix(opps, map[domain.Strategy][]float64{
		domain.StrategyFunding: hf,
		domain.StrategyStatArb: hs,
	})
	assert.InDelta(t, -1, c.At(0, 1), 1e-9)
}

func TestAnalyzeClosedFormTwoPositions(t *testing.T) {
	a := newAnalyzer()
	opps := []domain.Opportunity{
		hedged(domain.StrategyFunding, 0.10),
		hedged(domain.StrategyStatArb, 0.12),
	}
	x := []float64{0.3, 0.3}
	capital := 100_000.0

	r, err := a.Analyze(opps, x, capital, nil)
	require.NoError(t, err)

	s1 := a.PositionVol(&opps[0])
	s2 := a.PositionVol(&opps[1])
	want := math.Sqrt(0.09*s1*s1 + 0.09*s2*s2 + 2*0.09*0.2*s1*s2)
	assert.InDelta(t, want, r.Sigma, 1e-9)
	assert.InDelta(t, 1.6449*r.Sigma*capital, r.VaR95, 1e-6)
	assert.InDelta(t, 2.3263/1.6449, r.VaR99/r.VaR95, 1e-9)

	// Equal weights: Herfindahl 0.18, diversification above 1.
	assert.InDelta(t, 0.18, r.Concentration, 1e-9)
	assert.Greater(t, r.DiversificationRatio, 1.0)
	assert.True(t, r.WithinLimits())
}

func TestAnalyzeSinglePositionBoundary(t *testing.T) {
	a := newAnalyzer()
	opps := []domain.Opportunity{hedged(domain.StrategyFunding, 0.10)}
	r, err := a.Analyze(opps, []float64{0.4}, 100_000, nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, r.DiversificationRatio, 1e-9)
	assert.InDelta(t, 0.16, r.Concentration, 1e-9)
	// Diversification and concentration limits do not apply to one position.
	assert.True(t, r.WithinLimits())
}

func TestAnalyzeStrategyAllocationBreach(t *testing.T) {
	a := newAnalyzer()
	opps := []domain.Opportunity{
		hedged(domain.StrategyFunding, 0.10),
		hedged(domain.StrategyFunding, 0.11),
	}
	r, err := a.Analyze(opps, []float64{0.3, 0.2}, 100_000, nil)
	require.NoError(t, err)
	require.False(t, r.WithinLimits())
	assert.Contains(t, r.LimitBreaches[0], "FUNDING")
}

func TestAnalyzeWeightMismatch(t *testing.T) {
	a := newAnalyzer()
	_, err := a.Analyze([]domain.Opportunity{hedged(domain.StrategyFunding, 0.1)}, []float64{0.5, 0.5}, 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestKellyWeightCaps(t *testing.T) {
	a := newAnalyzer()

	// Huge edge: capped at half the Kelly cap, then nothing tighter binds.
	rich := hedged(domain.StrategyFunding, 0.10)
	big := 5.0
	rich.ExpectedAPY = &big
	w := a.KellyWeight(&rich, 100_000)
	assert.InDelta(t, 0.25/2, w, 1e-9)

	// Negative edge sizes to zero.
	broke := hedged(domain.StrategyFunding, 0.10)
	neg := -0.5
	broke.ExpectedAPY = &neg
	assert.Zero(t, a.KellyWeight(&broke, 100_000))
}

func TestKellyWeightLiquidityCap(t *testing.T) {
	a := newAnalyzer()
	o := hedged(domain.StrategyFunding, 0.10)
	big := 5.0
	o.ExpectedAPY = &big
	o.LiquidityUSD = 10_000 // 10% of capital at liquidity factor 0.1 -> 1%

	w := a.KellyWeight(&o, 100_000)
	assert.InDelta(t, 0.01, w, 1e-9)
}

func TestAnnualizedReturn(t *testing.T) {
	apy := 0.3
	withAPY := domain.Opportunity{ExpectedAPY: &apy, ExpectedReturn: 0.01}
	assert.Equal(t, 0.3, AnnualizedReturn(&withAPY))

	weekly := domain.Opportunity{ExpectedReturn: 0.01, Horizon: 7 * 24 * time.Hour}
	assert.InDelta(t, 0.01*365/7, AnnualizedReturn(&weekly), 1e-9)

	instant := domain.Opportunity{ExpectedReturn: 0.5}
	assert.Equal(t, annualizedReturnCap, AnnualizedReturn(&instant))
}

func TestStressScenarios(t *testing.T) {
	a := newAnalyzer()
	fund := hedged(domain.StrategyFunding, 0.02)
	opps := []domain.Opportunity{fund}
	x := []float64{0.5}
	capital := 100_000.0

	results := a.Stress(opps, x, capital)
	require.Len(t, results, 4)
	byScenario := map[domain.StressScenario]domain.StressResult{}
	for _, r := range results {
		byScenario[r.Scenario] = r
	}

	// Hedged book: the crash bleeds through the strategy beta (0.1 for
	// FUNDING), not the full shock.
	crash := byScenario[domain.StressMarketCrash]
	assert.InDelta(t, -0.20*50_000*0.1, crash.PnLUSD, 1e-6)

	crisis := byScenario[domain.StressLiquidityCrisis]
	assert.InDelta(t, -0.05*50_000, crisis.PnLUSD, 1e-6)

	reversal := byScenario[domain.StressFundingReversal]
	assert.InDelta(t, -2*0.02*50_000, reversal.PnLUSD, 1e-6)

	// Worst case is the per-position minimum: the crisis dominates here.
	worst := byScenario[domain.StressWorstCase]
	assert.InDelta(t, math.Min(crash.PnLUSD, math.Min(crisis.PnLUSD, reversal.PnLUSD)), worst.PnLUSD, 1e-6)
	assert.Equal(t, fund.ID, worst.WorstLeg)
}

func TestStressCrashScalesWithStrategyBeta(t *testing.T) {
	a := newAnalyzer()
	// FUNDING carries beta 0.1, SPOT_P2P 0.5.
	fund := hedged(domain.StrategyFunding, 0.02)
	p2p := hedged(domain.StrategySpotP2P, 0.02)

	results := a.Stress([]domain.Opportunity{fund, p2p}, []float64{0.2, 0.2}, 100_000)
	var crash domain.StressResult
	for _, r := range results {
		if r.Scenario == domain.StressMarketCrash {
			crash = r
		}
	}

	// 20k per position: -0.2*20k*0.1 + -0.2*20k*0.5.
	assert.InDelta(t, -400-2_000, crash.PnLUSD, 1e-6)
	assert.Equal(t, p2p.ID, crash.WorstLeg)
}

func TestRatingBands(t *testing.T) {
	good := domain.PortfolioRisk{Sharpe: 2.5, Sigma: 0.04, DiversificationRatio: 1.4}
	assert.Equal(t, "A", Rating(good, nil))

	bad := domain.PortfolioRisk{Sharpe: -1, Sigma: 0.5, LimitBreaches: []string{"x", "y"}}
	assert.Equal(t, "F", Rating(bad, []domain.StressResult{{PnLPct: -0.4}}))
}
