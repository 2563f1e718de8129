// Package scan coordinates one full discovery pass: pin a snapshot, fan the
// detectors out concurrently, normalize, rank, and allocate.
package scan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/detect"
	"github.com/quantavo/arbscan/internal/domain"
	"github.com/quantavo/arbscan/internal/gateway"
	"github.com/quantavo/arbscan/internal/metrics"
	"github.com/quantavo/arbscan/internal/normalize"
	"github.com/quantavo/arbscan/internal/portfolio"
	"github.com/quantavo/arbscan/internal/rank"
	"github.com/quantavo/arbscan/internal/risk"
)

// Status summarizes how much of a scan completed.
type Status string

const (
	StatusOK         Status = "OK"      // every detector finished
	StatusPartial    Status = "PARTIAL" // some detectors failed or timed out
	StatusEmpty      Status = "EMPTY"   // scan ran clean but found nothing
	StatusInfeasible Status = "INFEASIBLE"
)

// DetectorDiag records one detector's outcome inside a scan.
type DetectorDiag struct {
	Strategy domain.Strategy
	Found    int
	Duration time.Duration
	Err      string
}

// Result is the output of one scan.
type Result struct {
	ScanID        string
	StartedAt     time.Time
	Duration      time.Duration
	Status        Status
	Opportunities []domain.Opportunity // normalized, ranked, truncated
	Portfolio     *domain.Portfolio
	Diagnostics   []DetectorDiag
}

// StrategyStats aggregates one strategy's output for comparison views.
type StrategyStats struct {
	Strategy   domain.Strategy
	Count      int
	AvgReturn  float64
	BestReturn float64
	AvgRisk    float64
	AvgSharpe  *float64 // nil when no member carries a Sharpe
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	gw        *gateway.Gateway
	cfg       *config.Config
	norm      *normalize.Normalizer
	optimizer *portfolio.Optimizer
	detectors []detect.Detector
	log       zerolog.Logger
	met       *metrics.Registry
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithDetectors replaces the default detector set.
func WithDetectors(ds ...detect.Detector) Option {
	return func(o *Orchestrator) { o.detectors = ds }
}

// WithMetrics attaches a metric registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.met = m }
}

func New(gw *gateway.Gateway, cfg *config.Config, log zerolog.Logger, opts ...Option) *Orchestrator {
	analyzer := risk.New(cfg.Risk, log)
	o := &Orchestrator{
		gw:        gw,
		cfg:       cfg,
		norm:      normalize.New(cfg.Normalizer, log),
		optimizer: portfolio.New(cfg, analyzer, log),
		detectors: []detect.Detector{
			detect.NewFundingDetector(log),
			detect.NewStatArbDetector(log),
			detect.NewBasisDetector(log),
			detect.NewTriangleDetector(log),
			detect.NewSpotP2PDetector(log),
			detect.NewCrossFiatDetector(log),
		},
		log: log.With().Str("component", "orchestrator").Logger(),
		met: metrics.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Scan runs one full discovery pass: pin, detect concurrently, normalize,
// rank under policy, and optimize capitalUSD across the survivors. Detector
// failures degrade the scan to PARTIAL rather than failing it; only a failed
// pin or a canceled context is fatal.
func (o *Orchestrator) Scan(ctx context.Context, policy rank.Policy, capitalUSD float64) (*Result, error) {
	if !policy.Valid() {
		policy = rank.ByScore
	}
	scanID := uuid.NewString()
	started := time.Now()
	log := o.log.With().Str("scan_id", scanID).Logger()

	o.met.ActiveScans.Inc()
	defer o.met.ActiveScans.Dec()

	// The scan deadline bounds I/O and detection only; a truncated pin
	// degrades the scan rather than failing it. Caller cancellation aborts.
	sctx, cancel := context.WithTimeout(ctx, o.cfg.Scanning.ScanDeadline)
	defer cancel()

	snap, pinErr := o.gw.Pin(sctx, o.cfg.Universe, o.cfg.StatArb.Lookback)
	if pinErr != nil {
		if snap == nil || ctx.Err() != nil {
			return nil, pinErr
		}
		log.Warn().Err(pinErr).Msg("pin truncated, scanning partial snapshot")
	}
	if snap.Empty() {
		log.Warn().Msg("snapshot pinned empty, no market data reachable")
	}

	raw, diags := o.runDetectors(sctx, snap)

	normalized := o.norm.Normalize(raw)
	ranked := rank.Rank(normalized, policy, o.cfg.Scanning.MaxCandidates)

	port, err := o.optimizer.Optimize(ctx, ranked, capitalUSD)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ScanID:        scanID,
		StartedAt:     started,
		Duration:      time.Since(started),
		Opportunities: ranked,
		Portfolio:     port,
		Diagnostics:   diags,
	}
	res.Status = statusOf(ranked, diags, port, pinErr)

	o.met.ScanDuration.WithLabelValues(string(res.Status)).Observe(res.Duration.Seconds())
	log.Info().
		Str("status", string(res.Status)).
		Int("opportunities", len(ranked)).
		Dur("took", res.Duration).
		Msg("scan complete")
	return res, nil
}

// runDetectors fans the detector set out with a shared deadline per detector.
// Each detector sees the same pinned snapshot; one detector's failure does
// not cancel the siblings.
func (o *Orchestrator) runDetectors(ctx context.Context, snap *domain.Snapshot) ([]domain.Opportunity, []DetectorDiag) {
	var mu sync.Mutex
	var all []domain.Opportunity
	diags := make([]DetectorDiag, len(o.detectors))

	g, ctx := errgroup.WithContext(ctx)
	for i, d := range o.detectors {
		i, d := i, d
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, o.cfg.Scanning.PerDetectorDeadline)
			defer cancel()

			t0 := time.Now()
			opps, err := d.Scan(dctx, snap, o.cfg)
			took := time.Since(t0)

			diag := DetectorDiag{Strategy: d.Name(), Found: len(opps), Duration: took}
			result := "ok"
			if err != nil {
				diag.Err = err.Error()
				result = "error"
				o.log.Warn().Err(err).Str("detector", string(d.Name())).Msg("detector failed")
			}
			o.met.DetectorDuration.WithLabelValues(string(d.Name()), result).Observe(took.Seconds())
			o.met.Opportunities.WithLabelValues(string(d.Name())).Add(float64(len(opps)))

			mu.Lock()
			diags[i] = diag
			all = append(all, opps...)
			mu.Unlock()
			return nil // failures are diagnostics, not scan errors
		})
	}
	_ = g.Wait() // error path unused; detectors report through diags

	// Stable order regardless of goroutine completion.
	sort.SliceStable(all, func(a, b int) bool {
		if all[a].Strategy != all[b].Strategy {
			return all[a].Strategy < all[b].Strategy
		}
		return all[a].ExpectedReturn > all[b].ExpectedReturn
	})
	return all, diags
}

func statusOf(opps []domain.Opportunity, diags []DetectorDiag, port *domain.Portfolio, pinErr error) Status {
	failed := 0
	for _, d := range diags {
		if d.Err != "" {
			failed++
		}
	}
	switch {
	case failed > 0 || pinErr != nil:
		return StatusPartial
	case len(opps) == 0:
		return StatusEmpty
	case port != nil && port.Infeasible:
		return StatusInfeasible
	}
	return StatusOK
}

// CompareStrategies aggregates scan output per strategy family, sorted by
// average return descending.
func CompareStrategies(opps []domain.Opportunity) []StrategyStats {
	type acc struct {
		count     int
		retSum    float64
		best      float64
		riskSum   float64
		sharpeSum float64
		sharpeN   int
	}
	byStrat := map[domain.Strategy]*acc{}
	for _, o := range opps {
		a := byStrat[o.Strategy]
		if a == nil {
			a = &acc{best: o.ExpectedReturn}
			byStrat[o.Strategy] = a
		}
		a.count++
		a.retSum += o.ExpectedReturn
		if o.ExpectedReturn > a.best {
			a.best = o.ExpectedReturn
		}
		a.riskSum += o.RiskScore
		if o.Sharpe != nil {
			a.sharpeSum += *o.Sharpe
			a.sharpeN++
		}
	}

	out := make([]StrategyStats, 0, len(byStrat))
	for s, a := range byStrat {
		st := StrategyStats{
			Strategy:   s,
			Count:      a.count,
			AvgReturn:  a.retSum / float64(a.count),
			BestReturn: a.best,
			AvgRisk:    a.riskSum / float64(a.count),
		}
		if a.sharpeN > 0 {
			v := a.sharpeSum / float64(a.sharpeN)
			st.AvgSharpe = &v
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvgReturn > out[j].AvgReturn })
	return out
}
