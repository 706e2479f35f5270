package analytics

import (
	"context"
	"errors"

	domsvc "StockCast/internal/domain/service"
)

var errEmptyWindow = errors.New("empty window")

// LastValuePredictor repeats the newest value (persistence forecast).
type LastValuePredictor struct{}

func (LastValuePredictor) Predict(_ context.Context, window []float64) (float64, error) {
	if len(window) == 0 {
		return 0, errEmptyWindow
	}
	return window[len(window)-1], nil
}

func (LastValuePredictor) Name() string { return "last" }

// DriftPredictor extends the newest value by the window's mean step change.
type DriftPredictor struct{}

func (DriftPredictor) Predict(_ context.Context, window []float64) (float64, error) {
	n := len(window)
	if n == 0 {
		return 0, errEmptyWindow
	}
	if n == 1 {
		return window[0], nil
	}
	drift := (window[n-1] - window[0]) / float64(n-1)
	return window[n-1] + drift, nil
}

func (DriftPredictor) Name() string { return "drift" }

var (
	_ domsvc.StepPredictor = LastValuePredictor{}
	_ domsvc.StepPredictor = DriftPredictor{}
)
