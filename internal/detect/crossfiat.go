package detect

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
	"github.com/quantavo/arbscan/internal/graph"
)

// CrossFiatDetector runs the cycle search confined to one fiat pair plus the
// USDT bridge: fiat_A -> USDT -> fiat_B -> fiat_A. It also checks the
// four-leg double-bridge variant (back through USDT) explicitly, since that
// path revisits the bridge and a simple-cycle search cannot see it.
type CrossFiatDetector struct {
	Log zerolog.Logger
}

func NewCrossFiatDetector(log zerolog.Logger) *CrossFiatDetector {
	return &CrossFiatDetector{Log: log.With().Str("detector", "cross_fiat").Logger()}
}

func (d *CrossFiatDetector) Name() domain.Strategy { return domain.StrategyCrossFiat }

const bridgeAsset = "USDT"

func (d *CrossFiatDetector) Scan(ctx context.Context, snap *domain.Snapshot, cfg *config.Config) ([]domain.Opportunity, error) {
	takerFee := 0.001
	slipPerHop := 0.00025
	tri := &TriangleDetector{Log: d.Log}
	g := graph.Build(snap, graph.BuildParams{
		TakerFee:    takerFee,
		SlippageEst: slipPerHop,
		P2PMinScore: cfg.SpotP2P.MerchantMinScore,
	})

	seen := map[string]bool{}
	var out []domain.Opportunity
	for _, cross := range cfg.Universe.FiatCrosses {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fiatA, fiatB := cross[0], cross[1]
		if fiatA == bridgeAsset || fiatB == bridgeAsset {
			continue
		}
		pairKey := fiatA + ">" + fiatB
		if seen[pairKey] {
			continue
		}
		seen[pairKey] = true

		allowed := map[string]bool{fiatA: true, fiatB: true, bridgeAsset: true}
		cycles := g.EnumerateCyclesAmong(ctx, fiatA, 4, cfg.Triangle.MinEdgeLiquidity, allowed)
		for _, c := range cycles {
			opp, ok := tri.evaluate(snap, cfg, c, takerFee, slipPerHop, domain.StrategyCrossFiat)
			if !ok {
				continue
			}
			out = append(out, opp)
		}

		if opp, ok := d.doubleBridge(snap, cfg, g, fiatA, fiatB, takerFee, slipPerHop); ok {
			out = append(out, opp)
		}
	}
	return out, nil
}

// doubleBridge evaluates fiat_A -> USDT -> fiat_B -> USDT -> fiat_A, buying
// the bridge in A's market, cashing out to B, then re-entering through B's
// market to close in A.
func (d *CrossFiatDetector) doubleBridge(snap *domain.Snapshot, cfg *config.Config, g *graph.Graph, fiatA, fiatB string, takerFee, slipPerHop float64) (domain.Opportunity, bool) {
	intoBridgeA, ok1 := findEdge(g, fiatA, bridgeAsset)
	outToB, ok2 := findEdge(g, bridgeAsset, fiatB)
	intoBridgeB, ok3 := findEdge(g, fiatB, bridgeAsset)
	outToA, ok4 := findEdge(g, bridgeAsset, fiatA)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return domain.Opportunity{}, false
	}

	edges := []graph.Edge{intoBridgeA, outToB, intoBridgeB, outToA}
	product := 1.0
	minLiq := edges[0].LiquidityUSD
	for _, e := range edges {
		product *= e.Rate
		if e.LiquidityUSD < minLiq {
			minLiq = e.LiquidityUSD
		}
	}
	cycle := graph.Cycle{Edges: edges, ROI: product - 1, MinLiquidity: minLiq, Hops: len(edges)}
	if cycle.ROI <= 0 {
		return domain.Opportunity{}, false
	}
	tri := &TriangleDetector{Log: d.Log}
	return tri.evaluate(snap, cfg, cycle, takerFee, slipPerHop, domain.StrategyCrossFiat)
}

// findEdge picks the deepest edge between two nodes.
func findEdge(g *graph.Graph, from, to string) (graph.Edge, bool) {
	var best graph.Edge
	found := false
	for _, e := range g.EdgesFrom(from) {
		if e.To != to {
			continue
		}
		if !found || e.LiquidityUSD > best.LiquidityUSD {
			best = e
			found = true
		}
	}
	return best, found
}
