package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "StockCast/internal/domain/repository"
	pkgch "StockCast/pkg/clickhouse"
)

func newMockClient(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pkgch.FromDB(db, pkgch.ClientConfig{Database: "sc", CandleTable: "candles", ForecastTable: "forecasts"}), mock
}

var candleCols = []string{"bucket", "symbol", "open", "high", "low", "close", "volume"}

func TestLatestCandlesReturnsAscending(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHHistoryStore(ch, nil)

	t1 := time.Date(2024, 3, 4, 2, 5, 0, 0, time.UTC)
	t0 := t1.Add(-5 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sc.candles") + `\s+WHERE symbol = \? AND timeframe = \?\s+ORDER BY bucket DESC`).
		WithArgs("FPT", "5m", 2).
		WillReturnRows(sqlmock.NewRows(candleCols).
			AddRow(t1, "FPT", 118500.0, 118700.0, 118400.0, 118600.0, 1200.0).
			AddRow(t0, "FPT", 118300.0, 118600.0, 118200.0, 118500.0, 900.0))

	got, err := s.LatestCandles(context.Background(), "FPT", domrepo.TF5m, 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Bucket.Equal(t0))
	assert.Equal(t, 118600.0, got[1].Close)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestCandlesBoundedByUntil(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHHistoryStore(ch, nil)

	until := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND bucket <= ?")).
		WithArgs("VNM", "1h", until, 60).
		WillReturnRows(sqlmock.NewRows(candleCols))

	got, err := s.LatestCandles(context.Background(), "VNM", domrepo.TF1h, 60, until)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandlesAfter(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHHistoryStore(ch, nil)

	anchor := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND bucket > ?")).
		WithArgs("HPG", "5m", anchor, 12).
		WillReturnRows(sqlmock.NewRows(candleCols).
			AddRow(anchor.Add(5*time.Minute), "HPG", 27100.0, 27200.0, 27050.0, 27150.0, 5000.0))

	got, err := s.CandlesAfter(context.Background(), "HPG", domrepo.TF5m, anchor, 12)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 27150.0, got[0].Close)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleQueryError(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHHistoryStore(ch, nil)

	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	_, err := s.LatestCandles(context.Background(), "FPT", domrepo.TF5m, 10, time.Time{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSymbols(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHHistoryStore(ch, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT symbol FROM sc.candles WHERE timeframe = ?")).
		WithArgs("5m").
		WillReturnRows(sqlmock.NewRows([]string{"symbol"}).AddRow("FPT").AddRow("VNM"))

	got, err := s.Symbols(context.Background(), domrepo.TF5m)
	require.NoError(t, err)
	assert.Equal(t, []string{"FPT", "VNM"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
