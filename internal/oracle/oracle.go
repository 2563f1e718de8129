// Package oracle defines the optional ML prediction port. Detectors consult
// an Oracle when one is wired; absent an oracle they proceed with defaults.
package oracle

import "context"

// Features is the flat feature vector handed to the predictor.
type Features map[string]float64

// Prediction is a short-horizon spread or timing estimate.
type Prediction struct {
	Value      float64
	Confidence float64 // 0..1
}

// Oracle supplements detectors with model output. Implementations must be
// safe for concurrent use; errors are treated as "no prediction".
type Oracle interface {
	Predict(ctx context.Context, f Features) (Prediction, error)
}
