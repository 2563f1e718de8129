package detect

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
	"github.com/quantavo/arbscan/internal/graph"
)

// TriangleDetector finds multi-hop currency cycles whose product of
// effective rates exceeds one. Cycle candidates come from the price graph;
// evaluation of the candidates fans out across goroutines since every lookup
// is a read on the pinned snapshot.
type TriangleDetector struct {
	Log zerolog.Logger
}

func NewTriangleDetector(log zerolog.Logger) *TriangleDetector {
	return &TriangleDetector{Log: log.With().Str("detector", "triangle").Logger()}
}

func (d *TriangleDetector) Name() domain.Strategy { return domain.StrategyTriangle }

func (d *TriangleDetector) Scan(ctx context.Context, snap *domain.Snapshot, cfg *config.Config) ([]domain.Opportunity, error) {
	takerFee := 0.001
	slip := 0.001 / float64(cfg.Triangle.MaxHops) // slippage budget spread over hops
	g := graph.Build(snap, graph.BuildParams{
		TakerFee:    takerFee,
		SlippageEst: slip,
		P2PMinScore: cfg.SpotP2P.MerchantMinScore,
	})

	var (
		mu  sync.Mutex
		out []domain.Opportunity
	)
	eg, ectx := errgroup.WithContext(ctx)
	for _, start := range cfg.Triangle.StartAssets {
		start := start
		eg.Go(func() error {
			cycles := g.EnumerateCycles(ectx, start, cfg.Triangle.MaxHops, cfg.Triangle.MinEdgeLiquidity)
			for _, c := range cycles {
				if ectx.Err() != nil {
					return ectx.Err()
				}
				opp, ok := d.evaluate(snap, cfg, c, takerFee, slip, domain.StrategyTriangle)
				if !ok {
					continue
				}
				mu.Lock()
				out = append(out, opp)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// evaluate turns a cycle into an opportunity. Edge rates are already net of
// fees and slippage; the gross figure reported here adds those costs back so
// the normalizer's net computation round-trips.
func (d *TriangleDetector) evaluate(snap *domain.Snapshot, cfg *config.Config, c graph.Cycle, takerFee, slipPerHop float64, strategy domain.Strategy) (domain.Opportunity, bool) {
	if c.MinLiquidity < cfg.Scanning.MinLiquidityUSD {
		return domain.Opportunity{}, false
	}

	hops := float64(c.Hops)
	fees := takerFee * hops
	slippage := slipPerHop * hops
	gross := c.ROI + fees + slippage
	if gross <= 0 {
		return domain.Opportunity{}, false
	}

	notional := c.MinLiquidity
	if cfg.Scanning.NotionalCapUSD < notional {
		notional = cfg.Scanning.NotionalCapUSD
	}

	legs := make([]domain.Leg, 0, c.Hops)
	amount := notional // in start-currency units; start assets are USD-pegged
	for _, e := range c.Edges {
		legs = append(legs, domain.Leg{
			Venue:  e.Venue,
			Action: domain.ActionSell, // each hop sells FROM for TO
			Symbol: e.From + "/" + e.To,
			Size:   amount,
			Price:  e.Rate,
		})
		amount *= e.Rate
	}

	risk := cycleRisk(c)

	// Native cycle score: ROI, depth, risk and hop count, per the scanner's
	// weighting. Stored as confidence; the normalizer builds the global score.
	roiNorm := clamp(c.ROI/0.01*100, 0, 100)
	liqNorm := clamp(c.MinLiquidity/cfg.Normalizer.LiquidityRef*100, 0, 100)
	hopNorm := clamp(100-hops*cfg.Triangle.HopPenalty, 0, 100)
	confidence := clamp(0.4*roiNorm+0.3*liqNorm+0.2*(100-risk)+0.1*hopNorm, 0, 100)

	return domain.Opportunity{
		Strategy:       strategy,
		Legs:           legs,
		ExpectedReturn: gross,
		Horizon:        0, // cycles complete immediately once executed
		RiskScore:      risk,
		Confidence:     confidence,
		LiquidityUSD:   c.MinLiquidity,
		SlippageEst:    slippage,
		FeesEst:        fees,
		Anomalous:      cycleTouchesAnomalousRate(snap, c),
		CreatedAt:      snap.PinnedAt,
		TTL:            cfg.Scanning.OpportunityTTL,
	}, true
}

// cycleRisk grows with hop count and with P2P or fiat-rail legs, which clear
// slower than exchange legs.
func cycleRisk(c graph.Cycle) float64 {
	risk := 10.0 + float64(c.Hops-3)*8
	for _, e := range c.Edges {
		switch e.Venue {
		case domain.VenueP2P:
			risk += 15
		case domain.VenueFiatRail:
			risk += 8
		}
	}
	return clamp(risk, 0, 100)
}

func cycleTouchesAnomalousRate(snap *domain.Snapshot, c graph.Cycle) bool {
	for _, e := range c.Edges {
		if e.Venue != domain.VenueFiatRail {
			continue
		}
		if r, ok := snap.Fiat[e.Symbol]; ok && r.Anomalous {
			return true
		}
	}
	return false
}
