package analytics

import (
	"context"
	"fmt"
	"math"

	domsvc "StockCast/internal/domain/service"
	"StockCast/pkg/config"
)

// HTTPStepPredictor asks a remote model server for the next normalized value.
type HTTPStepPredictor struct {
	base *HTTPServiceBase
	name string
}

func NewHTTPStepPredictor(cfg *config.Config) *HTTPStepPredictor {
	return &HTTPStepPredictor{
		base: NewHTTPServiceBase(cfg),
		name: cfg.Predictor.Name,
	}
}

type stepReq struct {
	Window []float64 `json:"window"`
}

type stepResp struct {
	Value float64 `json:"value"`
	Model string  `json:"model"`
}

func (p *HTTPStepPredictor) Predict(ctx context.Context, window []float64) (float64, error) {
	var sr stepResp
	if err := p.base.PostJSON(ctx, "/lstm/predict", stepReq{Window: window}, &sr); err != nil {
		return 0, fmt.Errorf("post lstm: %w", err)
	}
	if math.IsNaN(sr.Value) || math.IsInf(sr.Value, 0) {
		return 0, fmt.Errorf("lstm returned non-finite value")
	}
	return sr.Value, nil
}

func (p *HTTPStepPredictor) Name() string { return p.name }

var _ domsvc.StepPredictor = (*HTTPStepPredictor)(nil)
