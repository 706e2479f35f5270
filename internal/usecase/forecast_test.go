package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/services/forecast"
	"StockCast/pkg/cache"
)

func TestForecastPersistsPublishesAndCaches(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})
	ctx := context.Background()

	f, err := fx.uc.Forecast(ctx, ForecastParams{Symbol: "fpt", Horizon: 3})
	require.NoError(t, err)

	assert.Equal(t, "FPT", f.Symbol)
	assert.Equal(t, "5m", f.Timeframe)
	assert.Equal(t, 10200.0, f.ReferencePrice)
	require.Len(t, f.Steps, 3)
	for i, st := range f.Steps {
		assert.Equal(t, i, st.Index)
		assert.Equal(t, 10200.0, st.Value)
		assert.Nil(t, st.Actual)
	}
	assert.True(t, f.Steps[0].Timestamp.Equal(sessionOpen.Add(15*time.Minute)))
	assert.True(t, f.Completed())

	assert.Equal(t, 1, fx.store.count())
	require.Len(t, fx.publisher.events, 1)
	assert.Equal(t, "f-1", fx.publisher.events[0].ForecastID)
	assert.Equal(t, 3, fx.publisher.events[0].Steps)
	assert.Equal(t, 1, fx.metrics.forecasts)

	// same history, same horizon: served from cache without a rollout
	again, err := fx.uc.Forecast(ctx, ForecastParams{Symbol: "FPT", Horizon: 3})
	require.NoError(t, err)
	assert.Equal(t, f.ID, again.ID)
	assert.Equal(t, 3, fx.predictor.calls)
	assert.Equal(t, 1, fx.store.count())
}

func TestForecastStreamsSteps(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})

	var seen []int
	_, err := fx.uc.Forecast(context.Background(), ForecastParams{
		Symbol:  "FPT",
		Horizon: 4,
		OnStep:  func(st models.ForecastStep) { seen = append(seen, st.Index) },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestForecastPartialOnPredictorFailure(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})
	fx.predictor.failAt = 3

	f, err := fx.uc.Forecast(context.Background(), ForecastParams{Symbol: "FPT", Horizon: 7})
	require.Error(t, err)
	var pe *forecast.PredictorError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Step)

	require.NotNil(t, f)
	assert.True(t, f.Partial)
	assert.Len(t, f.Steps, 2)
	assert.NotEmpty(t, f.Error)
	assert.Equal(t, 1, fx.store.count())
	assert.True(t, fx.publisher.events[0].Partial)
	assert.Equal(t, 1, fx.metrics.errors["predictor"])

	// partial results are not cached
	fx.predictor.failAt = 0
	f, err = fx.uc.Forecast(context.Background(), ForecastParams{Symbol: "FPT", Horizon: 7})
	require.NoError(t, err)
	assert.Len(t, f.Steps, 7)
}

func TestForecastRejections(t *testing.T) {
	fx := newFixture(t, ForecastSettings{Symbols: []string{"FPT", "VNM"}})
	ctx := context.Background()

	_, err := fx.uc.Forecast(ctx, ForecastParams{Symbol: "HPG"})
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	_, err = fx.uc.Forecast(ctx, ForecastParams{Symbol: "FPT", Horizon: 51})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = fx.uc.Forecast(ctx, ForecastParams{Symbol: "FPT", Timeframe: "7m"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = fx.uc.Forecast(ctx, ForecastParams{Symbol: "VNM"})
	assert.ErrorIs(t, err, forecast.ErrInsufficientHistory)
	assert.Equal(t, 1, fx.metrics.errors["insufficient_history"])
	assert.Zero(t, fx.store.count())

	fx.history.err = errors.New("clickhouse down")
	_, err = fx.uc.Forecast(ctx, ForecastParams{Symbol: "FPT"})
	assert.Error(t, err)
	assert.Equal(t, 1, fx.metrics.errors["history"])
}

func TestForecastFlatHistoryIsDegenerate(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})
	fx.history.candles["VNM"] = bars("VNM", sessionOpen, 68000, 68000, 68000)

	_, err := fx.uc.Forecast(context.Background(), ForecastParams{Symbol: "VNM"})
	assert.ErrorIs(t, err, forecast.ErrDegenerateRange)
}

func TestBackfillFeedsActuals(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})
	fx.history.candles["FPT"] = bars("FPT", sessionOpen, 10000, 10100, 10200, 10300, 10250)
	anchor := sessionOpen.Add(10 * time.Minute)

	f, err := fx.uc.Backfill(context.Background(), models.BackfillRequest{Symbol: "FPT", Timeframe: "5m", Anchor: anchor, Horizon: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, f.Backfilled)
	require.Len(t, f.Steps, 3)
	require.NotNil(t, f.Steps[0].Actual)
	assert.Equal(t, 10300.0, *f.Steps[0].Actual)
	assert.Equal(t, 10200.0, f.Steps[0].Value)
	assert.Equal(t, 10300.0, f.Steps[1].Value)
	assert.Equal(t, 10250.0, *f.Steps[1].Actual)
	assert.Nil(t, f.Steps[2].Actual)
	assert.Equal(t, 10250.0, f.Steps[2].Value)

	// lock released
	ok, err := fx.cache.TryLock(context.Background(), cache.Key("lock", "backfill", "FPT", "5m", anchor.Unix()), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBackfillActualsStopAtMissingBar(t *testing.T) {
	anchor := sessionOpen.Add(10 * time.Minute)

	t.Run("first label missing", func(t *testing.T) {
		fx := newFixture(t, ForecastSettings{})
		// no 09:15 bar
		fx.history.candles["FPT"] = append(bars("FPT", sessionOpen, 10000, 10100, 10200),
			bars("FPT", sessionOpen.Add(20*time.Minute), 10250)...)

		f, err := fx.uc.Backfill(context.Background(), models.BackfillRequest{Symbol: "FPT", Anchor: anchor, Horizon: 2})
		require.NoError(t, err)
		assert.Equal(t, 0, f.Backfilled)
		require.Len(t, f.Steps, 2)
		assert.Nil(t, f.Steps[0].Actual)
		assert.Nil(t, f.Steps[1].Actual)
	})

	t.Run("later label missing", func(t *testing.T) {
		fx := newFixture(t, ForecastSettings{})
		// no 09:20 bar
		fx.history.candles["FPT"] = append(bars("FPT", sessionOpen, 10000, 10100, 10200, 10300),
			bars("FPT", sessionOpen.Add(25*time.Minute), 10400)...)

		f, err := fx.uc.Backfill(context.Background(), models.BackfillRequest{Symbol: "FPT", Anchor: anchor, Horizon: 3})
		require.NoError(t, err)
		assert.Equal(t, 1, f.Backfilled)
		require.Len(t, f.Steps, 3)
		require.NotNil(t, f.Steps[0].Actual)
		assert.Equal(t, 10300.0, *f.Steps[0].Actual)
		assert.Nil(t, f.Steps[1].Actual)
		assert.Nil(t, f.Steps[2].Actual)
	})
}

func TestBackfillKeepsReferencePrice(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})
	anchor := sessionOpen.Add(10 * time.Minute)

	var steps int
	f, err := fx.uc.BackfillStream(context.Background(), models.BackfillRequest{
		Symbol:   "FPT",
		Anchor:   anchor,
		Horizon:  2,
		RefPrice: 10000,
		N:        3,
	}, func(models.ForecastStep) { steps++ })
	require.NoError(t, err)
	assert.Equal(t, 10000.0, f.ReferencePrice)
	assert.Equal(t, 2, steps)
}

func TestBackfillLocked(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})
	anchor := sessionOpen.Add(10 * time.Minute)
	_, err := fx.cache.TryLock(context.Background(), cache.Key("lock", "backfill", "FPT", "5m", anchor.Unix()), time.Minute)
	require.NoError(t, err)

	_, err = fx.uc.Backfill(context.Background(), models.BackfillRequest{Symbol: "FPT", Anchor: anchor, Horizon: 3})
	assert.ErrorIs(t, err, ErrBackfillInProgress)
	assert.Zero(t, fx.predictor.calls)
}

func TestEnqueueBackfill(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})
	req := models.BackfillRequest{Symbol: "fpt", Anchor: sessionOpen}

	_, err := fx.uc.EnqueueBackfill(context.Background(), req)
	require.ErrorIs(t, err, ErrJobQueueDisabled)

	q := &fakeQueue{}
	fx.uc.SetJobQueue(q)
	id, err := fx.uc.EnqueueBackfill(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, BackfillJobType, q.msgType)
	assert.Equal(t, models.BackfillRequest{Symbol: "FPT", Timeframe: "5m", Anchor: sessionOpen, Horizon: 12}, q.payload)

	_, err = fx.uc.EnqueueBackfill(context.Background(), models.BackfillRequest{Symbol: "FPT"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestForecastBatch(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})
	fx.history.candles["HPG"] = bars("HPG", sessionOpen, 27000, 27100, 27150)

	res := fx.uc.ForecastBatch(context.Background(), []string{"FPT", "hpg", "FPT", "MWG"}, domrepo.TF5m, 2)

	assert.Equal(t, 2, res.Horizon)
	assert.Len(t, res.Forecasts, 2)
	assert.Len(t, res.Forecasts["HPG"].Steps, 2)
	require.Contains(t, res.Errors, "MWG")
	assert.NotContains(t, res.Errors, "FPT")
}

func TestSchedule(t *testing.T) {
	fx := newFixture(t, ForecastSettings{})

	// 14:40 local: one slot left today, then the next session opens Tuesday 09:00
	labels, err := fx.uc.Schedule(sessionOpen.Add(5*time.Hour+40*time.Minute), domrepo.TF5m, 3)
	require.NoError(t, err)
	require.Len(t, labels, 3)
	assert.True(t, labels[0].Equal(sessionOpen.Add(5*time.Hour+45*time.Minute)))
	assert.True(t, labels[1].Equal(sessionOpen.Add(24*time.Hour)))
	assert.True(t, labels[2].Equal(sessionOpen.Add(24*time.Hour+5*time.Minute)))
}

func TestSymbols(t *testing.T) {
	fx := newFixture(t, ForecastSettings{Symbols: []string{"VCB"}})
	got, err := fx.uc.Symbols(context.Background(), domrepo.TF5m)
	require.NoError(t, err)
	assert.Equal(t, []string{"VCB"}, got)

	fx = newFixture(t, ForecastSettings{})
	got, err = fx.uc.Symbols(context.Background(), domrepo.TF5m)
	require.NoError(t, err)
	assert.Equal(t, []string{"FPT"}, got)
}
