package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockCast/internal/domain/models"
)

// FitSample selects the values the scaler is fit on.
type FitSample string

const (
	FitWindow  FitSample = "window"
	FitHistory FitSample = "history"
)

// Config is the engine's fixed configuration.
type Config struct {
	WindowSize     int
	MaxHorizon     int
	Step           time.Duration
	FitSample      FitSample
	UpperFactor    float64
	LowerFactor    float64
	StayInBand     bool
	Ticks          TickTable
	Session        Session
	PredictTimeout time.Duration
}

// DefaultConfig mirrors the 5-minute, 60-bar setup.
func DefaultConfig() Config {
	return Config{
		WindowSize:  60,
		MaxHorizon:  500,
		Step:        5 * time.Minute,
		FitSample:   FitWindow,
		UpperFactor: DefaultUpperFactor,
		LowerFactor: DefaultLowerFactor,
		Ticks:       DefaultTickTable,
		Session:     DefaultSession(),
	}
}

func (c Config) validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be > 0")
	}
	if c.Step <= 0 {
		return fmt.Errorf("step must be > 0")
	}
	switch c.FitSample {
	case FitWindow, FitHistory:
	default:
		return fmt.Errorf("unknown fit sample %q", c.FitSample)
	}
	return c.Ticks.Validate()
}

// Request is one forecast over a history.
type Request struct {
	History []models.Observation
	Horizon int
	// Actuals are known observations for the first len(Actuals) steps, at
	// most Horizon of them.
	Actuals []float64
	// ReferencePrice overrides the last observed value when > 0.
	ReferencePrice float64
	// Step overrides the configured bar interval when > 0.
	Step   time.Duration
	OnStep func(models.ForecastStep)
}

// Result is what Engine.Forecast produced. Steps may be partial when err is a
// *PredictorError.
type Result struct {
	Steps          []models.ForecastStep
	Scaler         Scaler
	ReferencePrice float64
	Anchor         time.Time
}

// Engine wires scaler, window, constraint and clock around a predictor.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	cfg       Config
	predictor Predictor
}

// NewEngine validates cfg.
func NewEngine(cfg Config, predictor Predictor) (*Engine, error) {
	if predictor == nil {
		return nil, errors.New("forecast engine: predictor is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("forecast engine: %w", err)
	}
	return &Engine{cfg: cfg, predictor: predictor}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// NewClock builds a clock on the engine's session.
func (e *Engine) NewClock(anchor time.Time, step time.Duration) (*Clock, error) {
	if step <= 0 {
		step = e.cfg.Step
	}
	return NewClock(anchor, step, e.cfg.Session)
}

// Forecast runs one rollout over req.History.
func (e *Engine) Forecast(ctx context.Context, req Request) (Result, error) {
	if req.Horizon < 1 || (e.cfg.MaxHorizon > 0 && req.Horizon > e.cfg.MaxHorizon) {
		return Result{}, fmt.Errorf("horizon %d out of range [1,%d]", req.Horizon, e.cfg.MaxHorizon)
	}
	if len(req.Actuals) > req.Horizon {
		return Result{}, fmt.Errorf("%d actuals for horizon %d: %w", len(req.Actuals), req.Horizon, ErrInvalidActual)
	}
	hist := req.History
	if len(hist) < e.cfg.WindowSize {
		return Result{}, &InsufficientHistoryError{Have: len(hist), Need: e.cfg.WindowSize}
	}
	for i := 1; i < len(hist); i++ {
		if !hist[i].Time.After(hist[i-1].Time) {
			return Result{}, fmt.Errorf("observation %d: %w", i, ErrUnorderedHistory)
		}
	}

	values := models.Values(hist)
	sample := values[len(values)-e.cfg.WindowSize:]
	if e.cfg.FitSample == FitHistory {
		sample = values
	}
	scaler, err := Fit(sample)
	if err != nil {
		return Result{}, err
	}
	window, err := NewWindow(scaler.NormalizeAll(values[len(values)-e.cfg.WindowSize:]), e.cfg.WindowSize)
	if err != nil {
		return Result{}, err
	}

	last := hist[len(hist)-1]
	ref := last.Value
	if req.ReferencePrice > 0 {
		ref = req.ReferencePrice
	}
	constraint := PriceConstraint{
		ReferencePrice: ref,
		UpperFactor:    e.cfg.UpperFactor,
		LowerFactor:    e.cfg.LowerFactor,
		Ticks:          e.cfg.Ticks,
		StayInBand:     e.cfg.StayInBand,
	}
	if err := constraint.Validate(); err != nil {
		return Result{}, fmt.Errorf("price constraint: %w", err)
	}
	clock, err := e.NewClock(last.Time, req.Step)
	if err != nil {
		return Result{}, err
	}

	steps, err := Rollout(ctx, RolloutInput{
		Window:     window,
		Scaler:     scaler,
		Horizon:    req.Horizon,
		Predictor:  e.timed(),
		Actuals:    req.Actuals,
		Constraint: constraint,
		Clock:      clock,
		OnStep:     req.OnStep,
	})
	return Result{Steps: steps, Scaler: scaler, ReferencePrice: ref, Anchor: last.Time}, err
}

func (e *Engine) timed() Predictor {
	if e.cfg.PredictTimeout <= 0 {
		return e.predictor
	}
	return PredictorFunc(func(ctx context.Context, w []float64) (float64, error) {
		ctx, cancel := context.WithTimeout(ctx, e.cfg.PredictTimeout)
		defer cancel()
		return e.predictor.Predict(ctx, w)
	})
}
