package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts     *prometheus.CounterVec
	forecastSteps *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	lastForecast  *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_forecasts_total",
				Help: "Total number of forecasts produced",
			},
			[]string{"symbol", "predictor", "partial"},
		),
		forecastSteps: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockcast_forecast_steps",
				Help:    "Number of steps produced per forecast",
				Buckets: []float64{1, 6, 12, 24, 48, 96, 192, 500},
			},
			[]string{"predictor"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastForecast: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockcast_last_forecast_price",
				Help: "First constrained step of the latest forecast for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordForecast counts a finished forecast.
func (r *Recorder) RecordForecast(symbol, predictor string, steps int, partial bool) {
	r.forecasts.WithLabelValues(symbol, predictor, strconv.FormatBool(partial)).Inc()
	r.forecastSteps.WithLabelValues(predictor).Observe(float64(steps))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastForecast records the next-step price for a symbol.
func (r *Recorder) RecordLastForecast(symbol string, price float64) {
	r.lastForecast.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
