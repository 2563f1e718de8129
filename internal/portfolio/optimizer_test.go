package portfolio

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
	"github.com/quantavo/arbscan/internal/risk"
)

func newOptimizer(cfg *config.Config) *Optimizer {
	return New(cfg, risk.New(cfg.Risk, zerolog.Nop()), zerolog.Nop())
}

func candidate(id string, strategy domain.Strategy, ret float64) domain.Opportunity {
	apy := ret * 4
	return domain.Opportunity{
		ID:          id,
		Strategy:    strategy,
		Fingerprint: id,
		Legs: []domain.Leg{
			{Venue: domain.VenueSpot, Action: domain.ActionBuy, Symbol: "BTC/USDT", Size: 0.1, Price: 64_000},
			{Venue: domain.VenuePerp, Action: domain.ActionSell, Symbol: "BTCUSDT-PERP", Size: 0.1, Price: 64_000},
		},
		ExpectedReturn: ret,
		ExpectedAPY:    &apy,
		Horizon:        14 * 24 * time.Hour,
		RiskScore:      30,
		Confidence:     70,
		LiquidityUSD:   2_000_000,
		Score:          70,
		CreatedAt:      time.Now(),
	}
}

func candidateSet(n int) []domain.Opportunity {
	strategies := []domain.Strategy{
		domain.StrategyFunding, domain.StrategyStatArb, domain.StrategyDeltaNeutral,
		domain.StrategyTriangle, domain.StrategyCrossFiat,
	}
	out := make([]domain.Opportunity, 0, n)
	for i := 0; i < n; i++ {
		s := strategies[i%len(strategies)]
		out = append(out, candidate(fmt.Sprintf("%s-%d", s, i), s, 0.01+0.002*float64(i)))
	}
	return out
}

func TestOptimizeSelectsDiversifiedBook(t *testing.T) {
	cfg := config.Default()
	p, err := newOptimizer(cfg).Optimize(context.Background(), candidateSet(10), 10_000)
	require.NoError(t, err)
	require.False(t, p.Infeasible)

	assert.GreaterOrEqual(t, len(p.Allocations), 3)
	assert.LessOrEqual(t, len(p.Allocations), cfg.Optimizer.MaxPositions)

	var total float64
	byStrategy := map[domain.Strategy]float64{}
	for _, a := range p.Allocations {
		assert.GreaterOrEqual(t, a.Weight, cfg.Optimizer.MinWeight)
		assert.InDelta(t, a.Weight*10_000, a.CapitalUSD, 1e-6)
		total += a.Weight
		byStrategy[a.Strategy] += a.Weight
	}
	assert.LessOrEqual(t, total, 1.0+1e-9)
	for s, w := range byStrategy {
		assert.LessOrEqualf(t, w, cfg.Risk.MaxStrategyAllocation+1e-9, "strategy %s over-allocated", s)
	}
	assert.True(t, p.Risk.WithinLimits())
	assert.NotEqual(t, domain.TierInfeasible, p.Tier)
}

func TestOptimizeRiskAversionMonotone(t *testing.T) {
	lowLambda := config.Default()
	lowLambda.Optimizer.RiskAversionLambda = 0.1
	highLambda := config.Default()
	highLambda.Optimizer.RiskAversionLambda = 5.0

	opps := candidateSet(8)
	pLow, err := newOptimizer(lowLambda).Optimize(context.Background(), opps, 100_000)
	require.NoError(t, err)
	pHigh, err := newOptimizer(highLambda).Optimize(context.Background(), opps, 100_000)
	require.NoError(t, err)

	assert.LessOrEqual(t, pHigh.Risk.Sigma, pLow.Risk.Sigma+1e-9)
}

func TestOptimizeFiltersGates(t *testing.T) {
	cfg := config.Default()
	o := newOptimizer(cfg)

	lowReturn := candidate("low-ret", domain.StrategyFunding, 0.0001)
	risky := candidate("risky", domain.StrategyFunding, 0.02)
	risky.RiskScore = 95
	shaky := candidate("shaky", domain.StrategyFunding, 0.02)
	shaky.Confidence = 10
	illiquid := candidate("illiquid", domain.StrategyFunding, 0.02)
	illiquid.LiquidityUSD = 1_000
	flagged := candidate("flagged", domain.StrategyFunding, 0.02)
	flagged.Anomalous = true

	p, err := o.Optimize(context.Background(), []domain.Opportunity{lowReturn, risky, shaky, illiquid, flagged}, 10_000)
	require.NoError(t, err)
	assert.True(t, p.Infeasible)
	assert.Equal(t, domain.TierInfeasible, p.Tier)
	assert.Empty(t, p.Allocations)
}

func TestOptimizeSemiManualToggle(t *testing.T) {
	cfg := config.Default() // allocatable false by default
	p2p := candidate("p2p", domain.StrategySpotP2P, 0.04)
	p2p.SemiManual = true

	p, err := newOptimizer(cfg).Optimize(context.Background(), []domain.Opportunity{p2p}, 10_000)
	require.NoError(t, err)
	assert.Empty(t, p.Allocations)

	cfg.SpotP2P.Allocatable = true
	p, err = newOptimizer(cfg).Optimize(context.Background(), []domain.Opportunity{p2p}, 10_000)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Allocations)
}

func TestOptimizeSinglePositionGradesMarginal(t *testing.T) {
	cfg := config.Default()
	p, err := newOptimizer(cfg).Optimize(context.Background(),
		[]domain.Opportunity{candidate("only", domain.StrategyFunding, 0.02)}, 10_000)
	require.NoError(t, err)
	require.Len(t, p.Allocations, 1)
	assert.Equal(t, domain.TierMarginal, p.Tier)
}

func TestOptimizeEmptyInput(t *testing.T) {
	cfg := config.Default()
	p, err := newOptimizer(cfg).Optimize(context.Background(), nil, 10_000)
	require.NoError(t, err)
	assert.True(t, p.Infeasible)
	assert.Equal(t, domain.TierInfeasible, p.Tier)
}

func TestOptimizeHonorsContext(t *testing.T) {
	cfg := config.Default()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newOptimizer(cfg).Optimize(ctx, candidateSet(5), 10_000)
	assert.Error(t, err)
}

func TestPruneAndCapRedistributesFreedWeight(t *testing.T) {
	o := newOptimizer(config.Default())
	mu := []float64{0.5, 0.3, 0.2}
	cov := mat.NewSymDense(3, nil)
	caps := []float64{0.8, 0.8, 0.8}

	// Third weight is dust; its freed budget moves to the survivors.
	x := o.pruneAndCap([]float64{0.5, 0.3, 0.01}, mu, cov, caps)
	assert.Zero(t, x[2])
	assert.InDelta(t, 0.625, x[0], 1e-9)
	assert.InDelta(t, 0.375, x[1], 1e-9)
	assert.InDelta(t, 1.0, x[0]+x[1], 1e-9)
}

func TestRedistributeStopsAtCaps(t *testing.T) {
	x := redistribute([]float64{0.4, 0.2}, []float64{0.45, 0.25})
	assert.InDelta(t, 0.45, x[0], 1e-9)
	assert.InDelta(t, 0.25, x[1], 1e-9)
}

func TestProjectSimplex(t *testing.T) {
	caps := []float64{0.4, 0.4, 0.4}

	// Inside the box and budget: unchanged.
	x := projectSimplex([]float64{0.1, 0.2, 0.3}, caps)
	assert.InDelta(t, 0.1, x[0], 1e-6)
	assert.InDelta(t, 0.3, x[2], 1e-6)

	// Over budget: projected onto the simplex, caps respected.
	x = projectSimplex([]float64{0.9, 0.9, 0.9}, caps)
	var sum float64
	for _, w := range x {
		assert.LessOrEqual(t, w, 0.4+1e-9)
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.LessOrEqual(t, sum, 1.0+1e-6)

	// Negative entries clip to zero.
	x = projectSimplex([]float64{-0.5, 0.2, 0.1}, caps)
	assert.Zero(t, x[0])
}
