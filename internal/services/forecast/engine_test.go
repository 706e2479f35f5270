package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockCast/internal/domain/models"
)

func series(start time.Time, step time.Duration, values ...float64) []models.Observation {
	out := make([]models.Observation, len(values))
	for i, v := range values {
		out[i] = models.Observation{Time: start.Add(time.Duration(i) * step), Value: v}
	}
	return out
}

func testEngine(t *testing.T, mutate func(*Config), p Predictor) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WindowSize = 4
	cfg.MaxHorizon = 50
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, p)
	require.NoError(t, err)
	return e
}

var anchorUTC = time.Date(2024, 10, 14, 3, 0, 0, 0, time.UTC) // 10:00 in Ho Chi Minh

func TestEngineForecast(t *testing.T) {
	t.Parallel()

	var windows [][]float64
	p := PredictorFunc(func(_ context.Context, w []float64) (float64, error) {
		windows = append(windows, w)
		return 1, nil
	})
	e := testEngine(t, nil, p)

	hist := series(anchorUTC, 5*time.Minute, 5, 23000, 23400, 23200, 23600)
	res, err := e.Forecast(context.Background(), Request{History: hist, Horizon: 3})
	require.NoError(t, err)

	// fit on the trailing window only, so the outlier 5 is ignored
	assert.Equal(t, Scaler{Min: 23000, Max: 23600}, res.Scaler)
	assert.Equal(t, 23600.0, res.ReferencePrice)
	assert.True(t, res.Anchor.Equal(hist[4].Time))
	require.Len(t, res.Steps, 3)
	for _, st := range res.Steps {
		assert.Equal(t, 23600.0, st.Value)
	}
	assert.InDeltaSlice(t, []float64{0, 2.0 / 3, 1.0 / 3, 1}, windows[0], 1e-9)
	assert.True(t, res.Steps[0].Timestamp.Equal(anchorUTC.Add(25*time.Minute)))
}

func TestEngineFitHistory(t *testing.T) {
	t.Parallel()

	e := testEngine(t, func(c *Config) { c.FitSample = FitHistory }, PredictorFunc(func(context.Context, []float64) (float64, error) {
		return 0.5, nil
	}))
	hist := series(anchorUTC, 5*time.Minute, 22000, 23000, 23400, 23200, 24000)
	res, err := e.Forecast(context.Background(), Request{History: hist, Horizon: 1})
	require.NoError(t, err)
	assert.Equal(t, Scaler{Min: 22000, Max: 24000}, res.Scaler)
	assert.Equal(t, 23000.0, res.Steps[0].Value)
}

func TestEngineReferencePriceOverride(t *testing.T) {
	t.Parallel()

	e := testEngine(t, nil, PredictorFunc(func(context.Context, []float64) (float64, error) {
		return 1, nil
	}))
	hist := series(anchorUTC, 5*time.Minute, 23000, 23400, 23200, 23600)
	res, err := e.Forecast(context.Background(), Request{History: hist, Horizon: 1, ReferencePrice: 20000})
	require.NoError(t, err)
	assert.Equal(t, 20000.0, res.ReferencePrice)
	assert.Equal(t, 21400.0, res.Steps[0].Value)
}

func TestEngineErrors(t *testing.T) {
	t.Parallel()

	constant := PredictorFunc(func(context.Context, []float64) (float64, error) { return 0.5, nil })
	e := testEngine(t, nil, constant)

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{
			name:    "short history",
			req:     Request{History: series(anchorUTC, time.Minute, 1, 2, 3), Horizon: 1},
			wantErr: ErrInsufficientHistory,
		},
		{
			name:    "flat window",
			req:     Request{History: series(anchorUTC, time.Minute, 1, 5, 5, 5, 5), Horizon: 1},
			wantErr: ErrDegenerateRange,
		},
		{
			name: "unordered",
			req: Request{History: []models.Observation{
				{Time: anchorUTC, Value: 1},
				{Time: anchorUTC.Add(2 * time.Minute), Value: 2},
				{Time: anchorUTC.Add(time.Minute), Value: 3},
				{Time: anchorUTC.Add(3 * time.Minute), Value: 4},
			}, Horizon: 1},
			wantErr: ErrUnorderedHistory,
		},
		{
			name:    "more actuals than steps",
			req:     Request{History: series(anchorUTC, time.Minute, 1, 2, 3, 4), Horizon: 1, Actuals: []float64{3, 4}},
			wantErr: ErrInvalidActual,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := e.Forecast(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	_, err := e.Forecast(context.Background(), Request{History: series(anchorUTC, time.Minute, 1, 2, 3, 4), Horizon: 0})
	assert.Error(t, err)
	_, err = e.Forecast(context.Background(), Request{History: series(anchorUTC, time.Minute, 1, 2, 3, 4), Horizon: 51})
	assert.Error(t, err)
}

func TestEnginePredictTimeout(t *testing.T) {
	t.Parallel()

	calls := 0
	slow := PredictorFunc(func(ctx context.Context, _ []float64) (float64, error) {
		calls++
		if calls == 1 {
			return 0.5, nil
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	e := testEngine(t, func(c *Config) { c.PredictTimeout = 20 * time.Millisecond }, slow)

	res, err := e.Forecast(context.Background(), Request{
		History: series(anchorUTC, 5*time.Minute, 23000, 23400, 23200, 23600),
		Horizon: 4,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPredictor))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Len(t, res.Steps, 1)
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	p := PredictorFunc(func(context.Context, []float64) (float64, error) { return 0, nil })
	_, err := NewEngine(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.WindowSize = 0
	_, err = NewEngine(cfg, p)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.FitSample = "median"
	_, err = NewEngine(cfg, p)
	assert.Error(t, err)
}
