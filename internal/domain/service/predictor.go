package service

import "context"

// StepPredictor produces the next normalized value from a normalized window,
// oldest value first.
type StepPredictor interface {
	Predict(ctx context.Context, window []float64) (float64, error)
	Name() string
}
