package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	pkgch "StockCast/pkg/clickhouse"
	applogger "StockCast/pkg/logger"
)

// ErrNoForecast is returned by Latest when nothing was stored yet.
var ErrNoForecast = domrepo.ErrNoForecast

const forecastColumns = "forecast_id, symbol, timeframe, created_at, anchor, reference_price, horizon, window_size, predictor, backfilled, partial, error, step, ts, value, actual"

// CHForecastStore stores one row per forecast step; forecast level columns
// repeat on every row.
type CHForecastStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHForecastStore(ch *pkgch.Client, l *applogger.Logger) *CHForecastStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHForecastStore{db: ch.DB(), table: qualified(ch.Config(), ch.Config().ForecastTable), l: l}
}

// Save inserts the forecast's steps. A forecast without steps stores nothing.
func (s *CHForecastStore) Save(ctx context.Context, f *models.Forecast) error {
	if f == nil || len(f.Steps) == 0 {
		return nil
	}
	const chunkSize = 1000
	start := time.Now()
	for lo := 0; lo < len(f.Steps); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(f.Steps) {
			hi = len(f.Steps)
		}

		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*16)
		for _, st := range f.Steps[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				f.ID,
				f.Symbol,
				f.Timeframe,
				f.CreatedAt.UTC(),
				f.Anchor.UTC(),
				f.ReferencePrice,
				f.Horizon,
				f.WindowSize,
				f.Predictor,
				f.Backfilled,
				boolToUInt8(f.Partial),
				f.Error,
				st.Index,
				st.Timestamp.UTC(),
				st.Value,
				st.Actual,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, forecastColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse save_forecast error",
				applogger.String("id", f.ID),
				applogger.String("symbol", f.Symbol),
				applogger.Error(err),
			)
			return fmt.Errorf("save forecast: %w", err)
		}
	}
	s.l.Debug("clickhouse save_forecast ok",
		applogger.String("id", f.ID),
		applogger.String("symbol", f.Symbol),
		applogger.Int("steps", len(f.Steps)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// Latest returns the most recently created forecast for (symbol, tf).
func (s *CHForecastStore) Latest(ctx context.Context, symbol string, tf domrepo.Timeframe) (*models.Forecast, error) {
	const qtpl = `
        SELECT %s
        FROM %s
        WHERE forecast_id = (
            SELECT forecast_id FROM %s
            WHERE symbol = ? AND timeframe = ?
            ORDER BY created_at DESC
            LIMIT 1
        )
        ORDER BY step ASC
    `
	q := fmt.Sprintf(qtpl, forecastColumns, s.table, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf))
	if err != nil {
		return nil, fmt.Errorf("latest forecast: %w", err)
	}
	defer rows.Close()

	var f *models.Forecast
	for rows.Next() {
		var (
			row     models.Forecast
			partial uint8
			st      models.ForecastStep
			actual  sql.NullFloat64
		)
		if err := rows.Scan(
			&row.ID, &row.Symbol, &row.Timeframe, &row.CreatedAt, &row.Anchor,
			&row.ReferencePrice, &row.Horizon, &row.WindowSize, &row.Predictor,
			&row.Backfilled, &partial, &row.Error,
			&st.Index, &st.Timestamp, &st.Value, &actual,
		); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		if f == nil {
			row.Partial = partial == 1
			f = &row
		}
		if actual.Valid {
			v := actual.Float64
			st.Actual = &v
		}
		f.Steps = append(f.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if f == nil {
		return nil, ErrNoForecast
	}
	return f, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

var _ domrepo.ForecastStore = (*CHForecastStore)(nil)
