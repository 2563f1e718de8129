package domain

import "errors"

// Error kinds shared across the core. Detectors never abort a scan on these;
// the orchestrator aggregates them into diagnostics instead.
var (
	// ErrDataUnavailable means an upstream read failed after retries and the
	// stale-fallback window has also been exhausted.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrNotFound means the requested key does not exist upstream.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited means the upstream rejected the call for quota reasons.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput means a malformed snapshot or configuration. Fatal to
	// the scan that observes it.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInfeasible is returned as a value by the optimizer when no
	// allocation satisfies the configured risk limits.
	ErrInfeasible = errors.New("portfolio infeasible")
)

// IsDataUnavailable reports whether err is (or wraps) ErrDataUnavailable.
func IsDataUnavailable(err error) bool { return errors.Is(err, ErrDataUnavailable) }
