package gateway

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/quantavo/arbscan/internal/metrics"
)

// BreakerSet manages one circuit breaker per upstream source. Five
// consecutive failures open a breaker; the open state lasts the configured
// timeout, then a single probe is admitted (gobreaker half-open).
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker

	failures uint32
	openFor  time.Duration
	log      zerolog.Logger
	met      *metrics.Registry
}

// NewBreakerSet creates the per-source breaker registry.
func NewBreakerSet(failures uint32, openFor time.Duration, log zerolog.Logger, met *metrics.Registry) *BreakerSet {
	if failures == 0 {
		failures = 5
	}
	if openFor <= 0 {
		openFor = 60 * time.Second
	}
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		failures: failures,
		openFor:  openFor,
		log:      log,
		met:      met,
	}
}

// Execute runs fn under the breaker for the named source, creating the
// breaker on first use.
func (bs *BreakerSet) Execute(source string, fn func() (interface{}, error)) (interface{}, error) {
	return bs.breaker(source).Execute(fn)
}

// Open reports whether the source's breaker is currently open.
func (bs *BreakerSet) Open(source string) bool {
	return bs.breaker(source).State() == gobreaker.StateOpen
}

// State returns the breaker state string for diagnostics.
func (bs *BreakerSet) State(source string) string {
	return bs.breaker(source).State().String()
}

func (bs *BreakerSet) breaker(source string) *gobreaker.CircuitBreaker {
	bs.mu.RLock()
	cb, ok := bs.breakers[source]
	bs.mu.RUnlock()
	if ok {
		return cb
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if cb, ok = bs.breakers[source]; ok {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: 1, // one probe in half-open
		Timeout:     bs.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			bs.log.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			if bs.met != nil {
				bs.met.BreakerTrips.WithLabelValues(name, to.String()).Inc()
			}
		},
	})
	bs.breakers[source] = cb
	return cb
}
