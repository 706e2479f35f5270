package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"StockCast/internal/domain/models"
	"StockCast/pkg/logger"
	"StockCast/pkg/queue"
)

// BackfillJob runs queued backfills.
type BackfillJob struct {
	uc *ForecastUseCase
	l  *logger.Logger
}

func NewBackfillJob(uc *ForecastUseCase, l *logger.Logger) *BackfillJob {
	if l == nil {
		l = logger.Nop()
	}
	return &BackfillJob{uc: uc, l: l}
}

func (j *BackfillJob) Name() string { return "forecast_backfill" }
func (j *BackfillJob) Type() string { return BackfillJobType }

func (j *BackfillJob) Handle(ctx context.Context, payload json.RawMessage) error {
	var req models.BackfillRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode backfill: %w", err)
	}
	f, err := j.uc.Backfill(ctx, req)
	switch {
	case err == nil:
		j.l.Info("backfill done",
			logger.String("id", f.ID),
			logger.String("symbol", f.Symbol),
			logger.Time("anchor", req.Anchor),
			logger.Int("backfilled", f.Backfilled))
		return nil
	case errors.Is(err, ErrBackfillInProgress):
		j.l.Info("backfill skipped, already running", logger.String("symbol", req.Symbol))
		return nil
	case permanent(err):
		j.l.Warn("backfill rejected", logger.String("symbol", req.Symbol), logger.Error(err))
		return nil
	default:
		return err
	}
}

var _ queue.Job = (*BackfillJob)(nil)
