package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/services/forecast"
	"StockCast/pkg/cache"
)

// 09:00 Asia/Ho_Chi_Minh on a Monday.
var sessionOpen = time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)

func bars(symbol string, start time.Time, closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Bucket: start.Add(time.Duration(i) * 5 * time.Minute), Symbol: symbol, Close: c}
	}
	return out
}

type fakeHistory struct {
	candles map[string][]models.Candle
	err     error
}

func (h *fakeHistory) LatestCandles(_ context.Context, symbol string, _ domrepo.Timeframe, n int, until time.Time) ([]models.Candle, error) {
	if h.err != nil {
		return nil, h.err
	}
	var out []models.Candle
	for _, c := range h.candles[symbol] {
		if until.IsZero() || !c.Bucket.After(until) {
			out = append(out, c)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (h *fakeHistory) CandlesAfter(_ context.Context, symbol string, _ domrepo.Timeframe, t time.Time, limit int) ([]models.Candle, error) {
	var out []models.Candle
	for _, c := range h.candles[symbol] {
		if c.Bucket.After(t) && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (h *fakeHistory) Symbols(context.Context, domrepo.Timeframe) ([]string, error) {
	var out []string
	for s := range h.candles {
		out = append(out, s)
	}
	return out, nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved []*models.Forecast
}

func (s *fakeStore) Save(_ context.Context, f *models.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, f)
	return nil
}

func (s *fakeStore) Latest(_ context.Context, symbol string, _ domrepo.Timeframe) (*models.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].Symbol == symbol {
			return s.saved[i], nil
		}
	}
	return nil, errors.New("none")
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.ForecastPublished
}

func (p *fakePublisher) Publish(_ context.Context, ev *models.ForecastPublished) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeMetrics struct {
	mu        sync.Mutex
	forecasts int
	errors    map[string]int
}

func (m *fakeMetrics) RecordForecast(string, string, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLastForecast(string, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64)     {}

type fakeQueue struct {
	msgType string
	payload interface{}
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.msgType, q.payload = msgType, payload
	return "job-1", nil
}

// lastValue predicts the newest normalized value, optionally failing from
// call failAt on.
type lastValue struct {
	mu     sync.Mutex
	calls  int
	failAt int
}

func (p *lastValue) Predict(_ context.Context, w []float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAt > 0 && p.calls >= p.failAt {
		return 0, errors.New("model server down")
	}
	return w[len(w)-1], nil
}

type fixture struct {
	uc        *ForecastUseCase
	history   *fakeHistory
	store     *fakeStore
	publisher *fakePublisher
	metrics   *fakeMetrics
	cache     *cache.MemoryCache
	predictor *lastValue
}

func newFixture(t *testing.T, settings ForecastSettings) *fixture {
	t.Helper()
	cfg := forecast.DefaultConfig()
	cfg.WindowSize = 3
	cfg.MaxHorizon = 50

	p := &lastValue{}
	engine, err := forecast.NewEngine(cfg, p)
	require.NoError(t, err)

	fx := &fixture{
		history: &fakeHistory{candles: map[string][]models.Candle{
			"FPT": bars("FPT", sessionOpen, 10000, 10100, 10200),
		}},
		store:     &fakeStore{},
		publisher: &fakePublisher{},
		metrics:   &fakeMetrics{},
		cache:     cache.NewMemoryCache(),
		predictor: p,
	}
	t.Cleanup(func() { _ = fx.cache.Close() })

	if settings.CacheTTL == 0 {
		settings.CacheTTL = time.Minute
	}
	fx.uc = NewForecastUseCase(engine, "last", fx.history, fx.store, fx.publisher, fx.cache, fx.metrics, nil, settings)
	fx.uc.newID = func() string { return "f-1" }
	return fx
}
