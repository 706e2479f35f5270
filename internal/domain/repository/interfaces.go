package repository

import (
	"context"
	"errors"
	"time"

	"StockCast/internal/domain/models"
)

// HistoryStore provides read-only access to closed candles.
type HistoryStore interface {
	// LatestCandles returns up to n candles at or before until (zero means no
	// bound), oldest first.
	LatestCandles(ctx context.Context, symbol string, tf Timeframe, n int, until time.Time) ([]models.Candle, error)
	// CandlesAfter returns up to limit candles strictly after t, oldest first.
	CandlesAfter(ctx context.Context, symbol string, tf Timeframe, t time.Time, limit int) ([]models.Candle, error)
	// Symbols lists symbols that have candles for tf.
	Symbols(ctx context.Context, tf Timeframe) ([]string, error)
}

// ErrNoForecast is returned by ForecastStore.Latest when nothing was stored yet.
var ErrNoForecast = errors.New("no forecast stored")

// ForecastStore persists forecast results.
type ForecastStore interface {
	Save(ctx context.Context, f *models.Forecast) error
	Latest(ctx context.Context, symbol string, tf Timeframe) (*models.Forecast, error)
}

// ForecastPublisher emits forecast events to downstream consumers.
type ForecastPublisher interface {
	Publish(ctx context.Context, ev *models.ForecastPublished) error
	Close() error
}

type Metrics interface {
	RecordForecast(symbol, predictor string, steps int, partial bool)
	RecordError(kind string)
	RecordLastForecast(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
