package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/services/forecast"
	xhttp "StockCast/pkg/http"
	pkgkafka "StockCast/pkg/kafka"
	"StockCast/pkg/logger"
)

// ForecastRequestHandler runs forecasts requested over Kafka. Results leave
// through the regular publish path.
type ForecastRequestHandler struct {
	topic   string
	uc      *ForecastUseCase
	metrics domrepo.Metrics
	l       *logger.Logger
}

func NewForecastRequestHandler(topic string, uc *ForecastUseCase, metrics domrepo.Metrics, l *logger.Logger) *ForecastRequestHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &ForecastRequestHandler{topic: topic, uc: uc, metrics: metrics, l: l}
}

func (h *ForecastRequestHandler) Topic() string { return h.topic }

// Handle returns an error only for failures worth retrying. Bad requests and
// forecasts that cannot be computed from the stored history are dropped.
func (h *ForecastRequestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.ForecastRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.l.Warn("drop forecast request", logger.Error(err))
		return nil
	}
	if err := xhttp.SetDefaultsAndValidate(ctx, &req); err != nil {
		h.metrics.RecordError("consumer_validate")
		h.l.Warn("drop forecast request", logger.String("symbol", req.Symbol), logger.Error(err))
		return nil
	}

	var anchor time.Time
	if req.Anchor != "" {
		t, ok := xhttp.ParseTimeIn(req.Anchor, h.uc.Location())
		if !ok {
			h.l.Warn("drop forecast request", logger.String("anchor", req.Anchor))
			return nil
		}
		anchor = t
	}

	start := time.Now()
	var err error
	if anchor.IsZero() {
		_, err = h.uc.Forecast(ctx, ForecastParams{
			Symbol:    req.Symbol,
			Timeframe: domrepo.Timeframe(req.TF),
			Horizon:   req.Horizon,
			N:         req.N,
			RefPrice:  req.RefPrice,
		})
	} else {
		_, err = h.uc.Backfill(ctx, models.BackfillRequest{
			Symbol:    req.Symbol,
			Timeframe: req.TF,
			Anchor:    anchor,
			Horizon:   req.Horizon,
			RefPrice:  req.RefPrice,
			N:         req.N,
		})
	}
	h.metrics.RecordLatency("consumer_forecast", time.Since(start).Seconds())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBackfillInProgress):
		h.l.Info("forecast request skipped, backfill running", logger.String("symbol", req.Symbol))
		return nil
	case permanent(err):
		h.l.Warn("forecast request rejected", logger.String("symbol", req.Symbol), logger.Error(err))
		return nil
	default:
		return fmt.Errorf("forecast %s: %w", req.Symbol, err)
	}
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, ErrInvalidParams) ||
		errors.Is(err, ErrUnknownSymbol) ||
		errors.Is(err, forecast.ErrInsufficientHistory) ||
		errors.Is(err, forecast.ErrDegenerateRange) ||
		errors.Is(err, forecast.ErrInvalidActual) ||
		errors.Is(err, forecast.ErrUnorderedHistory)
}

var _ pkgkafka.MessageHandler = (*ForecastRequestHandler)(nil)
