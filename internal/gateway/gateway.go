// Package gateway is the market-data access layer: a pull-based read
// interface over venue adapters with TTL caching, single-flight fills,
// per-source circuit breakers and rate limits, and stale-fallback serving.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
	"github.com/quantavo/arbscan/internal/metrics"
)

// Gateway hides venue I/O behind cached, breaker-guarded reads. It is the
// only shared mutable state in the core; one instance is owned per scanner.
type Gateway struct {
	src         MarketDataSource
	fiatSources []FiatSource

	cache    *TTLCache
	warm     *WarmTier
	breakers *BreakerSet
	flight   singleflight.Group
	inflight atomic.Int64

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	cfg   config.GatewayConfig
	clock Clock
	log   zerolog.Logger
	met   *metrics.Registry
}

// Option customizes gateway construction.
type Option func(*Gateway)

// WithWarmTier attaches a Redis warm tier behind the hot cache.
func WithWarmTier(w *WarmTier) Option { return func(g *Gateway) { g.warm = w } }

// WithClock substitutes the time source.
func WithClock(c Clock) Option { return func(g *Gateway) { g.clock = c } }

// WithMetrics attaches a metrics registry.
func WithMetrics(m *metrics.Registry) Option { return func(g *Gateway) { g.met = m } }

// New builds a gateway over one venue source and an ordered fiat source
// chain (official anchor first, market validator second).
func New(src MarketDataSource, fiat []FiatSource, cfg config.GatewayConfig, log zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		src:         src,
		fiatSources: fiat,
		cache:       NewTTLCache(time.Minute),
		limiters:    make(map[string]*rate.Limiter),
		cfg:         cfg,
		clock:       SystemClock{},
		log:         log.With().Str("component", "gateway").Logger(),
		met:         metrics.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.breakers = NewBreakerSet(cfg.BreakerFailures, cfg.BreakerOpenFor, g.log, g.met)
	return g
}

// Close releases cache resources.
func (g *Gateway) Close() { g.cache.Close() }

// InFlight returns the number of upstream fills currently executing. Used by
// cancellation tests to verify the single-flight discipline drains.
func (g *Gateway) InFlight() int64 { return g.inflight.Load() }

// SpotTicker returns the cached or freshly fetched ticker for a symbol.
// A ticker served from the fallback window carries Stale=true.
func (g *Gateway) SpotTicker(ctx context.Context, symbol string) (domain.SpotTicker, error) {
	v, stale, err := g.fetch(ctx, fetchSpec{
		source:   g.src.Name(),
		category: "spot",
		key:      Fingerprint("spot", symbol),
		ttl:      g.cfg.SpotTTL,
		call: func(ctx context.Context) (interface{}, error) {
			t, err := g.src.SpotTicker(ctx, symbol)
			if err != nil {
				return nil, err
			}
			if t.Bid <= 0 || t.Ask <= 0 || t.Bid > t.Ask {
				return nil, fmt.Errorf("%w: crossed or non-positive quote for %s", domain.ErrInvalidInput, symbol)
			}
			return t, nil
		},
		warmGet: func(ctx context.Context, key string) (interface{}, bool) {
			var t domain.SpotTicker
			if g.warm.Get(ctx, key, &t) {
				return t, true
			}
			return nil, false
		},
	})
	if err != nil {
		return domain.SpotTicker{}, err
	}
	t := v.(domain.SpotTicker)
	t.Stale = stale
	return t, nil
}

// OrderBook returns an L2 snapshot truncated to depth levels per side.
func (g *Gateway) OrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	v, stale, err := g.fetch(ctx, fetchSpec{
		source:   g.src.Name(),
		category: "book",
		key:      Fingerprint("book", symbol, fmt.Sprint(depth)),
		ttl:      g.cfg.BookTTL,
		call: func(ctx context.Context) (interface{}, error) {
			return g.src.OrderBook(ctx, symbol, depth)
		},
		warmGet: func(ctx context.Context, key string) (interface{}, bool) {
			var b domain.OrderBook
			if g.warm.Get(ctx, key, &b) {
				return b, true
			}
			return nil, false
		},
	})
	if err != nil {
		return domain.OrderBook{}, err
	}
	b := v.(domain.OrderBook)
	b.Stale = stale
	return b, nil
}

// FundingRates returns the current funding sample for every perpetual.
func (g *Gateway) FundingRates(ctx context.Context) ([]domain.FundingRateSample, error) {
	v, stale, err := g.fetch(ctx, fetchSpec{
		source:   g.src.Name(),
		category: "funding",
		key:      Fingerprint("funding", "all"),
		ttl:      g.cfg.FundingTTL,
		call: func(ctx context.Context) (interface{}, error) {
			return g.src.FundingRates(ctx)
		},
		warmGet: func(ctx context.Context, key string) (interface{}, bool) {
			var s []domain.FundingRateSample
			if g.warm.Get(ctx, key, &s) {
				return s, true
			}
			return nil, false
		},
	})
	if err != nil {
		return nil, err
	}
	samples := v.([]domain.FundingRateSample)
	if stale {
		// Copy before annotating so the cached slice stays untouched.
		samples = append([]domain.FundingRateSample(nil), samples...)
		for i := range samples {
			samples[i].Stale = true
		}
	}
	return samples, nil
}

// FuturesBasis returns the spot/futures basis for one instrument.
func (g *Gateway) FuturesBasis(ctx context.Context, symbol string) (domain.FuturesBasis, error) {
	v, stale, err := g.fetch(ctx, fetchSpec{
		source:   g.src.Name(),
		category: "basis",
		key:      Fingerprint("basis", symbol),
		ttl:      g.cfg.BasisTTL,
		call: func(ctx context.Context) (interface{}, error) {
			return g.src.FuturesBasis(ctx, symbol)
		},
		warmGet: func(ctx context.Context, key string) (interface{}, bool) {
			var b domain.FuturesBasis
			if g.warm.Get(ctx, key, &b) {
				return b, true
			}
			return nil, false
		},
	})
	if err != nil {
		return domain.FuturesBasis{}, err
	}
	fb := v.(domain.FuturesBasis)
	fb.Stale = stale
	return fb, nil
}

// P2PAds returns the ad book for one asset/fiat market side.
func (g *Gateway) P2PAds(ctx context.Context, asset, fiat string, side domain.P2PSide) ([]domain.P2PAd, error) {
	v, stale, err := g.fetch(ctx, fetchSpec{
		source:   g.src.Name(),
		category: "p2p",
		key:      Fingerprint("p2p", asset, fiat, string(side)),
		ttl:      g.cfg.P2PTTL,
		call: func(ctx context.Context) (interface{}, error) {
			return g.src.P2PAds(ctx, asset, fiat, side)
		},
		warmGet: func(ctx context.Context, key string) (interface{}, bool) {
			var ads []domain.P2PAd
			if g.warm.Get(ctx, key, &ads) {
				return ads, true
			}
			return nil, false
		},
	})
	if err != nil {
		return nil, err
	}
	ads := v.([]domain.P2PAd)
	if stale {
		ads = append([]domain.P2PAd(nil), ads...)
		for i := range ads {
			ads[i].Stale = true
		}
	}
	return ads, nil
}

// PriceHistory returns up to window closes for a symbol, oldest first.
func (g *Gateway) PriceHistory(ctx context.Context, symbol string, window int) ([]domain.PricePoint, error) {
	v, _, err := g.fetch(ctx, fetchSpec{
		source:   g.src.Name(),
		category: "history",
		key:      Fingerprint("history", symbol, fmt.Sprint(window)),
		ttl:      g.cfg.HistoryTTL,
		call: func(ctx context.Context) (interface{}, error) {
			return g.src.PriceHistory(ctx, symbol, window)
		},
		warmGet: func(ctx context.Context, key string) (interface{}, bool) {
			var pts []domain.PricePoint
			if g.warm.Get(ctx, key, &pts) {
				return pts, true
			}
			return nil, false
		},
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.PricePoint), nil
}

// FiatRate resolves a cross-fiat rate through the source chain. When two
// independent sources answer and diverge beyond the configured bound, the
// returned rate is flagged Anomalous; the first (highest-priority) quote is
// still served.
func (g *Gateway) FiatRate(ctx context.Context, base, quote string) (domain.FiatRate, error) {
	v, stale, err := g.fetch(ctx, fetchSpec{
		source:   "fiat",
		category: "fiat",
		key:      Fingerprint("fiat", base, quote),
		ttl:      g.cfg.FiatTTL,
		call: func(ctx context.Context) (interface{}, error) {
			return g.resolveFiat(ctx, base, quote)
		},
		warmGet: func(ctx context.Context, key string) (interface{}, bool) {
			var r domain.FiatRate
			if g.warm.Get(ctx, key, &r) {
				return r, true
			}
			return nil, false
		},
	})
	if err != nil {
		return domain.FiatRate{}, err
	}
	r := v.(domain.FiatRate)
	r.Stale = stale
	return r, nil
}

func (g *Gateway) resolveFiat(ctx context.Context, base, quote string) (interface{}, error) {
	var quotes []domain.FiatRate
	for _, src := range g.fiatSources {
		r, err := src.Rate(ctx, base, quote)
		if err != nil {
			g.log.Debug().Err(err).Str("source", src.Name()).
				Str("pair", base+"/"+quote).Msg("fiat source failed")
			continue
		}
		if r.Rate.Sign() <= 0 {
			continue
		}
		quotes = append(quotes, r)
		if len(quotes) == 2 {
			break
		}
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: no fiat source for %s/%s", domain.ErrDataUnavailable, base, quote)
	}

	best := quotes[0]
	if len(quotes) > 1 {
		// Divergence check in exact decimal: |a-b| / a.
		a, b := quotes[0].Rate, quotes[1].Rate
		div := a.Sub(b).Abs().Div(a)
		if div.GreaterThan(decimal.NewFromFloat(g.cfg.FiatDivergence)) {
			best.Anomalous = true
			g.log.Warn().
				Str("pair", base+"/"+quote).
				Str("primary", quotes[0].Source).
				Str("validator", quotes[1].Source).
				Str("divergence", div.StringFixed(4)).
				Msg("cross-source fiat divergence")
		}
	}
	return best, nil
}

// fetchSpec describes one cached read.
type fetchSpec struct {
	source   string
	category string
	key      string
	ttl      time.Duration
	call     func(context.Context) (interface{}, error)
	warmGet  func(context.Context, string) (interface{}, bool)
}

// fetch implements the shared read path: hot cache, warm tier, single-flight
// upstream fill under breaker and rate limit, stale fallback on failure. The
// second return reports whether the value came from the stale window rather
// than a fresh fill; accessors annotate the served value with it.
func (g *Gateway) fetch(ctx context.Context, spec fetchSpec) (interface{}, bool, error) {
	if v, fresh, ok := g.cache.Get(spec.key); ok && fresh {
		g.met.CacheHits.WithLabelValues(spec.category).Inc()
		return v, false, nil
	}
	g.met.CacheMisses.WithLabelValues(spec.category).Inc()

	staleBound := time.Duration(float64(spec.ttl) * g.staleFactor())

	// Breaker open: serve last-good within the stale bound, no upstream call.
	if g.breakers.Open(spec.source) {
		if v, _, ok := g.cache.Get(spec.key); ok {
			g.met.StaleServes.WithLabelValues(spec.category).Inc()
			return v, true, nil
		}
		return nil, false, fmt.Errorf("%w: %s breaker open, no cached value for %s",
			domain.ErrDataUnavailable, spec.source, spec.key)
	}

	v, err, shared := g.flight.Do(spec.key, func() (interface{}, error) {
		g.inflight.Add(1)
		defer g.inflight.Add(-1)

		res, err := g.breakers.Execute(spec.source, func() (interface{}, error) {
			if spec.warmGet != nil && g.warm != nil {
				if wv, ok := spec.warmGet(ctx, spec.key); ok {
					return wv, nil
				}
			}
			return g.callWithRetries(ctx, spec)
		})
		if err != nil {
			return nil, err
		}
		g.cache.Set(spec.key, res, spec.ttl, staleBound)
		if g.warm != nil {
			g.warm.Set(ctx, spec.key, res, staleBound)
		}
		return res, nil
	})
	if shared {
		g.met.SingleFlightWaits.Inc()
	}
	if err == nil {
		return v, false, nil
	}

	g.met.SourceErrors.WithLabelValues(spec.source).Inc()

	// Stale fallback: last-good value still within the secondary bound.
	if v, _, ok := g.cache.Get(spec.key); ok {
		g.met.StaleServes.WithLabelValues(spec.category).Inc()
		g.log.Debug().Str("key", spec.key).Msg("serving stale value after fetch failure")
		return v, true, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	return nil, false, fmt.Errorf("%w: %s (%v)", domain.ErrDataUnavailable, spec.key, err)
}

func (g *Gateway) callWithRetries(ctx context.Context, spec fetchSpec) (interface{}, error) {
	if err := g.limiter(spec.source).Wait(ctx); err != nil {
		return nil, err
	}

	retries := g.cfg.Retries
	if retries < 0 {
		retries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		cctx := ctx
		var cancel context.CancelFunc
		if g.cfg.CallDeadline > 0 {
			cctx, cancel = context.WithTimeout(ctx, g.cfg.CallDeadline)
		}
		v, err := spec.call(cctx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (g *Gateway) limiter(source string) *rate.Limiter {
	g.limMu.Lock()
	defer g.limMu.Unlock()
	lim, ok := g.limiters[source]
	if !ok {
		rps := g.cfg.RatePerSecond
		if rps <= 0 {
			rps = 10
		}
		burst := g.cfg.RateBurst
		if burst <= 0 {
			burst = int(rps)
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
		g.limiters[source] = lim
	}
	return lim
}

func (g *Gateway) staleFactor() float64 {
	if g.cfg.StaleFactor <= 1 {
		return 3
	}
	return g.cfg.StaleFactor
}

// Fingerprint joins read parameters into the cache key for that read.
func Fingerprint(parts ...string) string {
	key := parts[0]
	for _, p := range parts[1:] {
		key += ":" + p
	}
	return key
}
