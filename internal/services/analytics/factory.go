package analytics

import (
	"fmt"

	domsvc "StockCast/internal/domain/service"
	"StockCast/pkg/config"
)

// NewPredictor selects the step predictor named by predictor.type.
func NewPredictor(cfg *config.Config) (domsvc.StepPredictor, error) {
	switch cfg.Predictor.Type {
	case "http", "":
		return NewHTTPStepPredictor(cfg), nil
	case "last":
		return LastValuePredictor{}, nil
	case "drift":
		return DriftPredictor{}, nil
	default:
		return nil, fmt.Errorf("unknown predictor type %q", cfg.Predictor.Type)
	}
}
