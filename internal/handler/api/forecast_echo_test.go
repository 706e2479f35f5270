package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/service/ratelimit"
	"StockCast/internal/services/forecast"
	"StockCast/internal/usecase"
)

var (
	hcm       = time.FixedZone("ICT", 7*3600)
	barOpen   = time.Date(2024, 3, 4, 9, 0, 0, 0, hcm)
	okPredict = &models.Forecast{
		ID:        "f-1",
		Symbol:    "FPT",
		Timeframe: "5m",
		Horizon:   2,
		Steps: []models.ForecastStep{
			{Index: 0, Timestamp: barOpen.Add(5 * time.Minute), Value: 100100},
			{Index: 1, Timestamp: barOpen.Add(10 * time.Minute), Value: 100200},
		},
	}
)

type stubService struct {
	forecast func(ctx context.Context, p usecase.ForecastParams) (*models.Forecast, error)
	backfill func(ctx context.Context, req models.BackfillRequest) (*models.Forecast, error)
	stream   func(ctx context.Context, req models.BackfillRequest, onStep func(models.ForecastStep)) (*models.Forecast, error)
	enqueue  func(ctx context.Context, req models.BackfillRequest) (string, error)
	latest   func(ctx context.Context, symbol string, tf domrepo.Timeframe) (*models.Forecast, error)
	symbols  []string

	lastParams usecase.ForecastParams
	lastBatch  []string
}

func (s *stubService) Forecast(ctx context.Context, p usecase.ForecastParams) (*models.Forecast, error) {
	s.lastParams = p
	return s.forecast(ctx, p)
}

func (s *stubService) ForecastBatch(_ context.Context, symbols []string, tf domrepo.Timeframe, horizon int) *models.BatchForecast {
	s.lastBatch = symbols
	return &models.BatchForecast{
		Timeframe: string(tf),
		Horizon:   horizon,
		Forecasts: map[string]*models.Forecast{"FPT": okPredict},
		Errors:    map[string]string{"MWG": "unknown symbol"},
	}
}

func (s *stubService) Backfill(ctx context.Context, req models.BackfillRequest) (*models.Forecast, error) {
	return s.backfill(ctx, req)
}

func (s *stubService) BackfillStream(ctx context.Context, req models.BackfillRequest, onStep func(models.ForecastStep)) (*models.Forecast, error) {
	return s.stream(ctx, req, onStep)
}

func (s *stubService) EnqueueBackfill(ctx context.Context, req models.BackfillRequest) (string, error) {
	return s.enqueue(ctx, req)
}

func (s *stubService) Schedule(start time.Time, tf domrepo.Timeframe, horizon int) ([]time.Time, error) {
	out := make([]time.Time, horizon)
	for i := range out {
		out[i] = start.Add(time.Duration(i+1) * tf.Duration())
	}
	return out, nil
}

func (s *stubService) Symbols(context.Context, domrepo.Timeframe) ([]string, error) {
	return s.symbols, nil
}

func (s *stubService) Latest(ctx context.Context, symbol string, tf domrepo.Timeframe) (*models.Forecast, error) {
	return s.latest(ctx, symbol, tf)
}

func (s *stubService) Location() *time.Location { return hcm }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Code   string                 `json:"code"`
		Params map[string]interface{} `json:"params"`
	} `json:"errors"`
}

func newTestEcho(svc ForecastService, opts ...ForecastHandlerOption) *echo.Echo {
	e := echo.New()
	NewForecastEchoHandler(nil, svc, opts...).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestForecastOK(t *testing.T) {
	svc := &stubService{forecast: func(context.Context, usecase.ForecastParams) (*models.Forecast, error) {
		return okPredict, nil
	}}
	e := newTestEcho(svc)

	rec, env := do(t, e, http.MethodGet, "/api/forecast?symbol=fpt&horizon=2&ref_price=99000", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var f models.Forecast
	require.NoError(t, json.Unmarshal(env.Data, &f))
	assert.Len(t, f.Steps, 2)
	assert.Equal(t, "fpt", svc.lastParams.Symbol)
	assert.Equal(t, 2, svc.lastParams.Horizon)
	assert.Equal(t, domrepo.TF5m, svc.lastParams.Timeframe)
	assert.Equal(t, 99000.0, svc.lastParams.RefPrice)
}

func TestForecastValidation(t *testing.T) {
	e := newTestEcho(&stubService{})

	rec, _ := do(t, e, http.MethodGet, "/api/forecast?horizon=2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/forecast?symbol=FPT&tf=2m", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/forecast?symbol=FPT&anchor=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"insufficient", &forecast.InsufficientHistoryError{Have: 3, Need: 60}, http.StatusUnprocessableEntity},
		{"degenerate", &forecast.DegenerateRangeError{Min: 1, Max: 1}, http.StatusUnprocessableEntity},
		{"params", usecase.ErrInvalidParams, http.StatusBadRequest},
		{"unknown", usecase.ErrUnknownSymbol, http.StatusNotFound},
		{"locked", usecase.ErrBackfillInProgress, http.StatusConflict},
		{"other", errors.New("clickhouse down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{forecast: func(context.Context, usecase.ForecastParams) (*models.Forecast, error) {
				return nil, tc.err
			}}
			rec, _ := do(t, newTestEcho(svc), http.MethodGet, "/api/forecast?symbol=FPT", "")
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestForecastPartialOnPredictorFailure(t *testing.T) {
	partial := &models.Forecast{ID: "f-2", Symbol: "FPT", Horizon: 3, Partial: true, Steps: okPredict.Steps}
	svc := &stubService{forecast: func(context.Context, usecase.ForecastParams) (*models.Forecast, error) {
		return partial, &forecast.PredictorError{Step: 2, Err: errors.New("timeout")}
	}}

	rec, env := do(t, newTestEcho(svc), http.MethodGet, "/api/forecast?symbol=FPT&horizon=3", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "ERR_UPSTREAM", env.Errors[0].Code)
	assert.EqualValues(t, 2, env.Errors[0].Params["step"])

	var f models.Forecast
	require.NoError(t, json.Unmarshal(env.Data, &f))
	assert.True(t, f.Partial)
	assert.Len(t, f.Steps, 2)
}

func TestForecastWithAnchorRunsBackfill(t *testing.T) {
	var got models.BackfillRequest
	svc := &stubService{backfill: func(_ context.Context, req models.BackfillRequest) (*models.Forecast, error) {
		got = req
		return okPredict, nil
	}}

	rec, _ := do(t, newTestEcho(svc), http.MethodGet, "/api/forecast?symbol=FPT&horizon=2&anchor=2024-03-04%2009:00&ref_price=99000&n=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, got.Anchor.Equal(barOpen), got.Anchor)
	assert.Equal(t, "5m", got.Timeframe)
	assert.Equal(t, 99000.0, got.RefPrice)
	assert.Equal(t, 100, got.N)
}

func TestLatestNotFound(t *testing.T) {
	svc := &stubService{latest: func(context.Context, string, domrepo.Timeframe) (*models.Forecast, error) {
		return nil, domrepo.ErrNoForecast
	}}
	rec, _ := do(t, newTestEcho(svc), http.MethodGet, "/api/forecast/latest?symbol=FPT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatch(t *testing.T) {
	svc := &stubService{}
	rec, env := do(t, newTestEcho(svc), http.MethodPost, "/api/forecast/batch", `{"symbols":["FPT","MWG"],"horizon":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"FPT", "MWG"}, svc.lastBatch)

	var res batchResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Contains(t, res.Forecasts, "FPT")
	assert.Equal(t, "unknown symbol", res.Errors["MWG"])

	rec, _ = do(t, newTestEcho(svc), http.MethodPost, "/api/forecast/batch", `{"symbols":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueBackfill(t *testing.T) {
	var got models.BackfillRequest
	svc := &stubService{enqueue: func(_ context.Context, req models.BackfillRequest) (string, error) {
		got = req
		return "job-1", nil
	}}

	rec, env := do(t, newTestEcho(svc), http.MethodPost, "/api/forecast/backfill",
		`{"symbol":"FPT","anchor":"2024-03-04T09:00:00+07:00","horizon":6}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"job_id":"job-1"}`, string(env.Data))
	assert.Equal(t, 6, got.Horizon)
	assert.True(t, got.Anchor.Equal(barOpen))

	svc.enqueue = func(context.Context, models.BackfillRequest) (string, error) {
		return "", usecase.ErrJobQueueDisabled
	}
	rec, _ = do(t, newTestEcho(svc), http.MethodPost, "/api/forecast/backfill",
		`{"symbol":"FPT","anchor":"2024-03-04T09:00:00+07:00"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSchedule(t *testing.T) {
	rec, env := do(t, newTestEcho(&stubService{}), http.MethodGet, "/api/forecast/schedule?start=2024-03-04%2009:00&horizon=3&tf=15m", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res scheduleResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Labels, 3)
	assert.True(t, res.Labels[0].Equal(barOpen.Add(15*time.Minute)))
}

func TestSymbols(t *testing.T) {
	rec, env := do(t, newTestEcho(&stubService{symbols: []string{"FPT", "VNM"}}), http.MethodGet, "/api/symbols", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows":["FPT","VNM"],"total":2}`, string(env.Data))
}

func TestHealth(t *testing.T) {
	e := newTestEcho(&stubService{},
		WithHealthCheck("clickhouse", func(context.Context) error { return nil }))
	rec, env := do(t, e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"clickhouse":"ok"}`, string(env.Data))

	e = newTestEcho(&stubService{},
		WithHealthCheck("redis", func(context.Context) error { return errors.New("refused") }))
	rec, _ = do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	svc := &stubService{symbols: []string{"FPT"}}
	e := newTestEcho(svc, WithRateLimit(ratelimit.New(), 1, 0.0001))

	rec, _ := do(t, e, http.MethodGet, "/api/symbols", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/symbols", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamSendsStepsThenDone(t *testing.T) {
	svc := &stubService{forecast: func(_ context.Context, p usecase.ForecastParams) (*models.Forecast, error) {
		for _, s := range okPredict.Steps {
			p.OnStep(s)
		}
		return okPredict, nil
	}}
	srv := httptest.NewServer(newTestEcho(svc))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/forecast?symbol=FPT&horizon=2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var types []string
	for i := 0; i < 3; i++ {
		var m streamMessage
		require.NoError(t, conn.ReadJSON(&m))
		types = append(types, m.Type)
		if m.Type == "step" {
			assert.Equal(t, i, m.Step.Index)
		}
	}
	assert.Equal(t, []string{"step", "step", "done"}, types)
}

func TestStreamReportsError(t *testing.T) {
	svc := &stubService{forecast: func(context.Context, usecase.ForecastParams) (*models.Forecast, error) {
		return nil, &forecast.InsufficientHistoryError{Have: 1, Need: 60}
	}}
	srv := httptest.NewServer(newTestEcho(svc))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/forecast?symbol=FPT"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var m streamMessage
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "error", m.Type)
	require.NotNil(t, m.Error)
	assert.Equal(t, "ERR_UNPROCESSABLE", m.Error.Code)
}

func TestStreamWithAnchorRunsBackfill(t *testing.T) {
	var got models.BackfillRequest
	svc := &stubService{stream: func(_ context.Context, req models.BackfillRequest, onStep func(models.ForecastStep)) (*models.Forecast, error) {
		got = req
		for _, s := range okPredict.Steps {
			onStep(s)
		}
		return okPredict, nil
	}}
	srv := httptest.NewServer(newTestEcho(svc))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/forecast?symbol=FPT&horizon=2&anchor=2024-03-04%2009:00&ref_price=99000"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var types []string
	for i := 0; i < 3; i++ {
		var m streamMessage
		require.NoError(t, conn.ReadJSON(&m))
		types = append(types, m.Type)
	}
	assert.Equal(t, []string{"step", "step", "done"}, types)
	assert.True(t, got.Anchor.Equal(barOpen), got.Anchor)
	assert.Equal(t, 99000.0, got.RefPrice)
}

func TestStreamWithAnchorReportsBusyBackfill(t *testing.T) {
	svc := &stubService{stream: func(context.Context, models.BackfillRequest, func(models.ForecastStep)) (*models.Forecast, error) {
		return nil, usecase.ErrBackfillInProgress
	}}
	srv := httptest.NewServer(newTestEcho(svc))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/forecast?symbol=FPT&anchor=2024-03-04%2009:00"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var m streamMessage
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "error", m.Type)
	require.NotNil(t, m.Error)
	assert.Equal(t, "ERR_CONFLICT", m.Error.Code)
}
