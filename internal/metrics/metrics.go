// Package metrics holds the Prometheus instruments for the discovery engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all Prometheus metrics for arbscan.
type Registry struct {
	// Gateway cache performance
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	StaleServes *prometheus.CounterVec

	// Upstream health
	SourceErrors      *prometheus.CounterVec
	BreakerTrips      *prometheus.CounterVec
	SingleFlightWaits prometheus.Counter

	// Scan pipeline
	ScanDuration     *prometheus.HistogramVec
	DetectorDuration *prometheus.HistogramVec
	Opportunities    *prometheus.CounterVec
	ActiveScans      prometheus.Gauge
}

// NewRegistry creates the metric set and registers it on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid global-registry collisions.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbscan_cache_hits_total",
				Help: "Gateway cache hits by data category",
			},
			[]string{"category"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbscan_cache_misses_total",
				Help: "Gateway cache misses by data category",
			},
			[]string{"category"},
		),
		StaleServes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbscan_cache_stale_serves_total",
				Help: "Reads answered from the stale-fallback window",
			},
			[]string{"category"},
		),
		SourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbscan_source_errors_total",
				Help: "Upstream read failures by source",
			},
			[]string{"source"},
		),
		BreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbscan_breaker_transitions_total",
				Help: "Circuit breaker state transitions by source and target state",
			},
			[]string{"source", "state"},
		),
		SingleFlightWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbscan_singleflight_waits_total",
				Help: "Callers that coalesced onto an in-flight upstream request",
			},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbscan_scan_duration_seconds",
				Help:    "End-to-end scan duration",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"status"},
		),
		DetectorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbscan_detector_duration_seconds",
				Help:    "Per-detector scan duration",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"strategy", "result"},
		),
		Opportunities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbscan_opportunities_total",
				Help: "Opportunities emitted by strategy",
			},
			[]string{"strategy"},
		),
		ActiveScans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbscan_active_scans",
				Help: "Scans currently in flight",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			r.CacheHits, r.CacheMisses, r.StaleServes,
			r.SourceErrors, r.BreakerTrips, r.SingleFlightWaits,
			r.ScanDuration, r.DetectorDuration, r.Opportunities, r.ActiveScans,
		)
	}
	return r
}

// Nop returns an unregistered metric set, handy for tests and library use
// where no scrape endpoint exists.
func Nop() *Registry { return NewRegistry(nil) }
