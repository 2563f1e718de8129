// Package graph builds the directed price graph over assets and fiats and
// enumerates arbitrage cycles on it. Edge weights are negative log effective
// rates, so a cycle with product of rates > 1 has negative total weight.
package graph

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/quantavo/arbscan/internal/domain"
)

// Edge is one directed conversion between two currencies.
type Edge struct {
	From         string
	To           string
	Rate         float64 // effective units of To per unit of From, fees applied
	Weight       float64 // -ln(Rate)
	LiquidityUSD float64
	Venue        domain.Venue
	Symbol       string // originating instrument, FROM/TO orientation
}

// Cycle is a closed path through the start currency.
type Cycle struct {
	Edges        []Edge
	ROI          float64 // product of unrounded rates minus one
	MinLiquidity float64
	Hops         int
}

// Graph is the directed price graph for one pinned snapshot.
type Graph struct {
	adj map[string][]Edge

	// minWeight is the most negative edge weight present, the per-hop
	// best case used by the search's admissible prune bound.
	minWeight float64
}

// BuildParams carries the cost assumptions applied to every edge.
type BuildParams struct {
	TakerFee    float64 // default taker fee fraction when the snapshot has none
	SlippageEst float64 // expected slippage fraction per conversion
	P2PMinScore float64 // merchant reputation floor for P2P edges
}

// Build constructs the graph from the pinned snapshot. Nodes are every asset
// and fiat seen in a ticker, P2P ad or fiat rate.
func Build(snap *domain.Snapshot, p BuildParams) *Graph {
	g := &Graph{adj: make(map[string][]Edge)}

	for sym, t := range snap.Tickers {
		base, quote, ok := splitPair(sym)
		if !ok || t.Bid <= 0 || t.Ask <= 0 {
			continue
		}
		fee := snap.Fee(sym, p.TakerFee)
		haircut := 1 - fee - p.SlippageEst
		if haircut <= 0 {
			continue
		}
		liq := bookLiquidity(snap, sym, t)

		// Selling base hits the bid; buying base lifts the ask.
		g.addEdge(Edge{
			From: base, To: quote,
			Rate:         t.Bid * haircut,
			LiquidityUSD: liq,
			Venue:        domain.VenueSpot,
			Symbol:       base + "/" + quote,
		})
		g.addEdge(Edge{
			From: quote, To: base,
			Rate:         haircut / t.Ask,
			LiquidityUSD: liq,
			Venue:        domain.VenueSpot,
			Symbol:       quote + "/" + base,
		})
	}

	for key, ads := range snap.P2P {
		asset, fiat, side, ok := splitP2PKey(key)
		if !ok {
			continue
		}
		best := bestAd(ads, side, p.P2PMinScore)
		if best == nil {
			continue
		}
		price, _ := best.Price.Float64()
		if price <= 0 {
			continue
		}
		liq := best.MaxQty * assetUSD(snap, asset)
		if side == domain.P2PBuy {
			// Merchant buys the asset: we can sell asset for fiat.
			g.addEdge(Edge{
				From: asset, To: fiat,
				Rate:         price * (1 - p.SlippageEst),
				LiquidityUSD: liq,
				Venue:        domain.VenueP2P,
				Symbol:       asset + "/" + fiat,
			})
		} else {
			// Merchant sells the asset: we can buy asset with fiat.
			g.addEdge(Edge{
				From: fiat, To: asset,
				Rate:         (1 - p.SlippageEst) / price,
				LiquidityUSD: liq,
				Venue:        domain.VenueP2P,
				Symbol:       fiat + "/" + asset,
			})
		}
	}

	for key, r := range snap.Fiat {
		base, quote, ok := splitPair(key)
		if !ok {
			continue
		}
		rate, _ := r.Rate.Float64()
		if rate <= 0 {
			continue
		}
		g.addEdge(Edge{
			From: base, To: quote,
			Rate:         rate,
			LiquidityUSD: fiatRailLiquidity,
			Venue:        domain.VenueFiatRail,
			Symbol:       base + "/" + quote,
		})
	}

	return g
}

// fiatRailLiquidity is the depth assumed for official fiat crosses; rails do
// not publish order books.
const fiatRailLiquidity = 1_000_000

func (g *Graph) addEdge(e Edge) {
	if e.Rate <= 0 {
		return
	}
	e.Weight = -math.Log(e.Rate)
	if e.Weight < g.minWeight {
		g.minWeight = e.Weight
	}
	g.adj[e.From] = append(g.adj[e.From], e)
}

// Nodes returns every currency in the graph.
func (g *Graph) Nodes() []string {
	seen := map[string]bool{}
	for from, edges := range g.adj {
		seen[from] = true
		for _, e := range edges {
			seen[e.To] = true
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// EdgesFrom returns the out-edges of a node.
func (g *Graph) EdgesFrom(node string) []Edge { return g.adj[node] }

// EnumerateCycles yields simple cycles through start with hop count in
// [3, maxHops], pruning edges under minLiquidity and partial paths whose
// cumulative weight plus a best-case bound on the remaining hops is already
// non-negative (such a path can never close profitably). An isolated start
// yields an empty slice, never an error.
func (g *Graph) EnumerateCycles(ctx context.Context, start string, maxHops int, minLiquidity float64) []Cycle {
	return g.EnumerateCyclesAmong(ctx, start, maxHops, minLiquidity, nil)
}

// EnumerateCyclesAmong is EnumerateCycles restricted to an allowed node set.
// A nil set allows every node. The cross-fiat detector uses this to confine
// the search to one fiat pair plus the stable bridge.
func (g *Graph) EnumerateCyclesAmong(ctx context.Context, start string, maxHops int, minLiquidity float64, allowed map[string]bool) []Cycle {
	if maxHops < 3 {
		maxHops = 3
	}
	var (
		cycles  []Cycle
		path    []Edge
		visited = map[string]bool{start: true}
	)

	var dfs func(node string, weight float64)
	dfs = func(node string, weight float64) {
		if ctx.Err() != nil {
			return
		}
		for _, e := range g.adj[node] {
			if e.LiquidityUSD < minLiquidity {
				continue
			}
			next := weight + e.Weight
			if e.To == start {
				if len(path)+1 >= 3 && next < 0 {
					cycles = append(cycles, closeCycle(append(append([]Edge{}, path...), e)))
				}
				continue
			}
			if visited[e.To] || len(path)+1 >= maxHops {
				continue
			}
			if allowed != nil && !allowed[e.To] {
				continue
			}
			// Negative-sum prune: a profitable closure needs total weight
			// < 0. The best case for the remaining hops is the graph's most
			// negative edge weight taken at every hop; when no rate exceeds
			// one that bound is zero and the prune is exact.
			remaining := float64(maxHops-len(path)-1) * g.minWeight
			if next+remaining >= 0 {
				continue
			}
			visited[e.To] = true
			path = append(path, e)
			dfs(e.To, next)
			path = path[:len(path)-1]
			delete(visited, e.To)
		}
	}
	dfs(start, 0)

	// Higher minimum-leg liquidity first, then fewer hops.
	sort.Slice(cycles, func(i, j int) bool {
		if cycles[i].MinLiquidity != cycles[j].MinLiquidity {
			return cycles[i].MinLiquidity > cycles[j].MinLiquidity
		}
		return cycles[i].Hops < cycles[j].Hops
	})
	return cycles
}

// closeCycle recomputes ROI from the unrounded rates instead of exp(-Σw) to
// avoid accumulating log-space precision loss.
func closeCycle(edges []Edge) Cycle {
	product := 1.0
	minLiq := math.Inf(1)
	for _, e := range edges {
		product *= e.Rate
		if e.LiquidityUSD < minLiq {
			minLiq = e.LiquidityUSD
		}
	}
	return Cycle{
		Edges:        edges,
		ROI:          product - 1,
		MinLiquidity: minLiq,
		Hops:         len(edges),
	}
}

func splitPair(sym string) (base, quote string, ok bool) {
	parts := strings.SplitN(sym, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func splitP2PKey(key string) (asset, fiat string, side domain.P2PSide, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], domain.P2PSide(parts[2]), true
}

// bestAd picks the most favorable reputable ad: highest price for merchant
// BUY ads (we sell), lowest price for merchant SELL ads (we buy).
func bestAd(ads []domain.P2PAd, side domain.P2PSide, minScore float64) *domain.P2PAd {
	var best *domain.P2PAd
	for i := range ads {
		ad := &ads[i]
		if ad.MerchantScore < minScore {
			continue
		}
		if best == nil {
			best = ad
			continue
		}
		if side == domain.P2PBuy && ad.Price.GreaterThan(best.Price) {
			best = ad
		}
		if side == domain.P2PSell && ad.Price.LessThan(best.Price) {
			best = ad
		}
	}
	return best
}

func bookLiquidity(snap *domain.Snapshot, sym string, t domain.SpotTicker) float64 {
	if b, ok := snap.Books[sym]; ok {
		bid, ask := b.BidDepthUSD(), b.AskDepthUSD()
		if bid < ask {
			return bid
		}
		return ask
	}
	// No book: assume a thin fraction of daily volume is accessible.
	return t.Volume24h * t.Mid() * 0.001
}

func assetUSD(snap *domain.Snapshot, asset string) float64 {
	switch asset {
	case "USDT", "USDC", "USD":
		return 1
	}
	if t, ok := snap.Tickers[asset+"/USDT"]; ok {
		return t.Mid()
	}
	return 1
}
