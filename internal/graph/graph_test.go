package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantavo/arbscan/internal/domain"
)

// triangularSnapshot prices three pairs so that USDT -> BTC -> ETH -> USDT
// multiplies out above one: 1/50000 * 1/0.05 * 2600 = 1.04 before costs.
func triangularSnapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		Tickers: map[string]domain.SpotTicker{
			"BTC/USDT": {Symbol: "BTC/USDT", Bid: 49_990, Ask: 50_000},
			"ETH/BTC":  {Symbol: "ETH/BTC", Bid: 0.0499, Ask: 0.05},
			"ETH/USDT": {Symbol: "ETH/USDT", Bid: 2_600, Ask: 2_601},
		},
		Books: map[string]domain.OrderBook{},
	}
	for sym, t := range snap.Tickers {
		mid := t.Mid()
		size := 500_000 / mid
		snap.Books[sym] = domain.OrderBook{
			Symbol: sym,
			Bids:   []domain.BookLevel{{Price: t.Bid, Size: size}},
			Asks:   []domain.BookLevel{{Price: t.Ask, Size: size}},
		}
	}
	return snap
}

func TestEnumerateCyclesFindsProfitableTriangle(t *testing.T) {
	g := Build(triangularSnapshot(), BuildParams{TakerFee: 0.001, SlippageEst: 0})
	cycles := g.EnumerateCycles(context.Background(), "USDT", 5, 10_000)
	require.Len(t, cycles, 1)

	c := cycles[0]
	assert.Equal(t, 3, c.Hops)
	assert.Equal(t, "USDT", c.Edges[0].From)
	assert.Equal(t, "USDT", c.Edges[len(c.Edges)-1].To)

	// Raw product 1.04 less three 0.1% haircuts lands near 3.7%.
	assert.InDelta(t, 0.0369, c.ROI, 0.002)
	assert.Greater(t, c.MinLiquidity, 10_000.0)
}

func TestEnumerateCyclesROIFromUnroundedRates(t *testing.T) {
	g := Build(triangularSnapshot(), BuildParams{TakerFee: 0.001, SlippageEst: 0})
	cycles := g.EnumerateCycles(context.Background(), "USDT", 5, 0)
	require.NotEmpty(t, cycles)

	product := 1.0
	for _, e := range cycles[0].Edges {
		product *= e.Rate
	}
	assert.InDelta(t, product-1, cycles[0].ROI, 1e-12)
}

func TestEnumerateCyclesPrunesUnprofitable(t *testing.T) {
	// Fair pricing: every direction loses the fee, so no cycle survives.
	snap := &domain.Snapshot{
		Tickers: map[string]domain.SpotTicker{
			"BTC/USDT": {Symbol: "BTC/USDT", Bid: 49_999, Ask: 50_001},
			"ETH/BTC":  {Symbol: "ETH/BTC", Bid: 0.04999, Ask: 0.05001},
			"ETH/USDT": {Symbol: "ETH/USDT", Bid: 2_499, Ask: 2_501},
		},
	}
	g := Build(snap, BuildParams{TakerFee: 0.001, SlippageEst: 0})
	assert.Empty(t, g.EnumerateCycles(context.Background(), "USDT", 5, 0))
}

func TestEnumerateCyclesIsolatedStart(t *testing.T) {
	g := Build(triangularSnapshot(), BuildParams{TakerFee: 0.001})
	assert.Empty(t, g.EnumerateCycles(context.Background(), "XRP", 5, 0))
}

func TestEnumerateCyclesLiquidityFloor(t *testing.T) {
	g := Build(triangularSnapshot(), BuildParams{TakerFee: 0.001})
	// Floor above every book's depth filters all edges out.
	assert.Empty(t, g.EnumerateCycles(context.Background(), "USDT", 5, 1e9))
}

func TestEnumerateCyclesAmongRestrictsNodes(t *testing.T) {
	g := Build(triangularSnapshot(), BuildParams{TakerFee: 0.001})
	// ETH excluded: the only profitable cycle needs it.
	allowed := map[string]bool{"USDT": true, "BTC": true}
	assert.Empty(t, g.EnumerateCyclesAmong(context.Background(), "USDT", 5, 0, allowed))

	full := map[string]bool{"USDT": true, "BTC": true, "ETH": true}
	assert.Len(t, g.EnumerateCyclesAmong(context.Background(), "USDT", 5, 0, full), 1)
}

func TestEnumerateCyclesHonorsContext(t *testing.T) {
	g := Build(triangularSnapshot(), BuildParams{TakerFee: 0.001})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, g.EnumerateCycles(ctx, "USDT", 5, 0))
}

func TestBuildSkipsCrossedAndEmptyQuotes(t *testing.T) {
	snap := &domain.Snapshot{
		Tickers: map[string]domain.SpotTicker{
			"BAD/USDT":  {Symbol: "BAD/USDT", Bid: 0, Ask: 0},
			"GOOD/USDT": {Symbol: "GOOD/USDT", Bid: 9.99, Ask: 10.01},
		},
	}
	g := Build(snap, BuildParams{TakerFee: 0.001})
	assert.Empty(t, g.EdgesFrom("BAD"))
	assert.Len(t, g.EdgesFrom("GOOD"), 1)
}

func TestEdgeWeightIsNegativeLogRate(t *testing.T) {
	g := Build(triangularSnapshot(), BuildParams{TakerFee: 0.001})
	for _, node := range g.Nodes() {
		for _, e := range g.EdgesFrom(node) {
			if e.Rate > 1 {
				assert.Negative(t, e.Weight)
			} else if e.Rate < 1 {
				assert.Positive(t, e.Weight)
			}
		}
	}
}
