package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	pkgch "StockCast/pkg/clickhouse"
	applogger "StockCast/pkg/logger"
)

// CHHistoryStore reads closed candles from ClickHouse.
type CHHistoryStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHHistoryStore(ch *pkgch.Client, l *applogger.Logger) *CHHistoryStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHHistoryStore{db: ch.DB(), table: qualified(ch.Config(), ch.Config().CandleTable), l: l}
}

func (s *CHHistoryStore) LatestCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, n int, until time.Time) ([]models.Candle, error) {
	start := time.Now()
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND timeframe = ?%s
        ORDER BY bucket DESC
        LIMIT ?
    `
	args := []interface{}{symbol, string(tf)}
	bound := ""
	if !until.IsZero() {
		bound = " AND bucket <= ?"
		args = append(args, until.UTC())
	}
	args = append(args, n)

	out, err := s.query(ctx, fmt.Sprintf(qtpl, s.table, bound), args...)
	if err != nil {
		s.l.Error("clickhouse latest_candles error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest candles: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHHistoryStore) CandlesAfter(ctx context.Context, symbol string, tf domrepo.Timeframe, t time.Time, limit int) ([]models.Candle, error) {
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND timeframe = ? AND bucket > ?
        ORDER BY bucket ASC
        LIMIT ?
    `
	out, err := s.query(ctx, fmt.Sprintf(qtpl, s.table), symbol, string(tf), t.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse candles_after error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Time("after", t),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("candles after: %w", err)
	}
	return out, nil
}

func (s *CHHistoryStore) Symbols(ctx context.Context, tf domrepo.Timeframe) ([]string, error) {
	q := fmt.Sprintf(`SELECT DISTINCT symbol FROM %s WHERE timeframe = ? ORDER BY symbol`, s.table)
	rows, err := s.db.QueryContext(ctx, q, string(tf))
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *CHHistoryStore) query(ctx context.Context, q string, args ...interface{}) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)
