package forecast

import (
	"context"
	"errors"
	"math"

	"StockCast/internal/domain/models"
)

// Predictor maps a normalized window (oldest first) to the next normalized value.
type Predictor interface {
	Predict(ctx context.Context, window []float64) (float64, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, window []float64) (float64, error)

func (f PredictorFunc) Predict(ctx context.Context, window []float64) (float64, error) {
	return f(ctx, window)
}

// RolloutInput holds everything one rollout needs. Window is mutated.
type RolloutInput struct {
	Window     *Window
	Scaler     Scaler
	Horizon    int
	Predictor  Predictor
	Actuals    []float64
	Constraint PriceConstraint
	Clock      *Clock
	// OnStep, when set, is called synchronously after each step is recorded.
	OnStep func(models.ForecastStep)
}

// Rollout produces Horizon steps by feeding each constrained prediction (or the
// known actual for that step) back into the window. On predictor failure it
// returns the steps completed so far together with a *PredictorError.
func Rollout(ctx context.Context, in RolloutInput) ([]models.ForecastStep, error) {
	if in.Window == nil || in.Predictor == nil || in.Clock == nil {
		return nil, errors.New("rollout: window, predictor and clock are required")
	}
	if in.Horizon < 0 {
		return nil, errors.New("rollout: horizon must be >= 0")
	}
	for i, a := range in.Actuals {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return nil, &InvalidActualError{Index: i, Value: a}
		}
	}

	steps := make([]models.ForecastStep, 0, in.Horizon)
	for i := 0; i < in.Horizon; i++ {
		if err := ctx.Err(); err != nil {
			return steps, &PredictorError{Step: i, Err: err}
		}
		p, err := in.Predictor.Predict(ctx, in.Window.Snapshot())
		if err != nil {
			return steps, &PredictorError{Step: i, Err: err}
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return steps, &PredictorError{Step: i, Value: p}
		}

		value := in.Constraint.Apply(in.Scaler.Denormalize(p))
		step := models.ForecastStep{
			Index:     i,
			Timestamp: in.Clock.LabelFor(i),
			Value:     value,
		}
		feedback := value
		if i < len(in.Actuals) {
			a := in.Actuals[i]
			step.Actual = &a
			feedback = a
		}
		steps = append(steps, step)
		if in.OnStep != nil {
			in.OnStep(step)
		}
		in.Window.Push(in.Scaler.Normalize(feedback))
	}
	return steps, nil
}
