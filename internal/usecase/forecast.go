package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/services/forecast"
	"StockCast/pkg/cache"
	"StockCast/pkg/logger"
	"StockCast/pkg/queue"
)

var (
	ErrInvalidParams      = errors.New("invalid forecast parameters")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrBackfillInProgress = errors.New("backfill already running")
	ErrJobQueueDisabled   = errors.New("job queue not configured")
)

// BackfillJobType is the queue message type for asynchronous backfills.
const BackfillJobType = "forecast.backfill"

// ForecastSettings are the service level knobs around the engine.
type ForecastSettings struct {
	DefaultHorizon int
	HistorySize    int
	Timeframe      domrepo.Timeframe
	CacheTTL       time.Duration
	BackfillLock   time.Duration
	BatchWorkers   int
	Symbols        []string
}

// ForecastUseCase loads history, runs the engine, then caches, persists and
// publishes the result.
type ForecastUseCase struct {
	engine    *forecast.Engine
	predictor string
	history   domrepo.HistoryStore
	store     domrepo.ForecastStore
	publisher domrepo.ForecastPublisher
	cache     cache.Service
	jobs      queue.Publisher
	metrics   domrepo.Metrics
	l         *logger.Logger
	cfg       ForecastSettings

	now   func() time.Time
	newID func() string
}

func NewForecastUseCase(
	engine *forecast.Engine,
	predictorName string,
	history domrepo.HistoryStore,
	store domrepo.ForecastStore,
	publisher domrepo.ForecastPublisher,
	c cache.Service,
	metrics domrepo.Metrics,
	l *logger.Logger,
	cfg ForecastSettings,
) *ForecastUseCase {
	if cfg.DefaultHorizon <= 0 {
		cfg.DefaultHorizon = 12
	}
	if cfg.HistorySize < engine.Config().WindowSize {
		cfg.HistorySize = engine.Config().WindowSize
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	if cfg.BackfillLock <= 0 {
		cfg.BackfillLock = 10 * time.Minute
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 4
	}
	if l == nil {
		l = logger.Nop()
	}
	return &ForecastUseCase{
		engine:    engine,
		predictor: predictorName,
		history:   history,
		store:     store,
		publisher: publisher,
		cache:     c,
		metrics:   metrics,
		l:         l,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetJobQueue enables asynchronous backfills.
func (uc *ForecastUseCase) SetJobQueue(q queue.Publisher) { uc.jobs = q }

type ForecastParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Horizon   int
	// N overrides the number of candles loaded.
	N        int
	RefPrice float64
	// Anchor, when set, forecasts from the last candle at or before it and
	// feeds the candles that followed back in as actuals.
	Anchor time.Time
	OnStep func(models.ForecastStep)
}

func (p ForecastParams) cacheable() bool {
	return p.Anchor.IsZero() && p.RefPrice <= 0 && p.N <= 0 && p.OnStep == nil
}

// Forecast runs one forecast. When the predictor fails midway it returns the
// partial forecast together with the *forecast.PredictorError.
func (uc *ForecastUseCase) Forecast(ctx context.Context, p ForecastParams) (*models.Forecast, error) {
	start := uc.now()
	p, err := uc.normalize(p)
	if err != nil {
		return nil, err
	}

	n := uc.cfg.HistorySize
	if p.N > 0 {
		n = max(p.N, uc.engine.Config().WindowSize)
	}
	candles, err := uc.history.LatestCandles(ctx, p.Symbol, p.Timeframe, n, p.Anchor)
	if err != nil {
		uc.metrics.RecordError("history")
		return nil, fmt.Errorf("load history: %w", err)
	}

	key := ""
	if p.cacheable() && uc.cache != nil && len(candles) > 0 {
		key = cache.Key("forecast", p.Symbol, string(p.Timeframe), p.Horizon, candles[len(candles)-1].Bucket.Unix())
		var cached models.Forecast
		if err := uc.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	var actuals []float64
	if !p.Anchor.IsZero() && len(candles) > 0 {
		actuals, err = uc.actualsAfter(ctx, p, candles[len(candles)-1].Bucket)
		if err != nil {
			uc.metrics.RecordError("history")
			return nil, err
		}
	}

	res, runErr := uc.engine.Forecast(ctx, forecast.Request{
		History:        models.ObservationsFromCandles(candles),
		Horizon:        p.Horizon,
		Actuals:        actuals,
		ReferencePrice: p.RefPrice,
		Step:           p.Timeframe.Duration(),
		OnStep:         p.OnStep,
	})
	var predErr *forecast.PredictorError
	if runErr != nil && !errors.As(runErr, &predErr) {
		uc.metrics.RecordError(errorKind(runErr))
		return nil, runErr
	}

	f := &models.Forecast{
		ID:             uc.newID(),
		Symbol:         p.Symbol,
		Timeframe:      string(p.Timeframe),
		CreatedAt:      uc.now().UTC(),
		Anchor:         res.Anchor,
		ReferencePrice: res.ReferencePrice,
		Horizon:        p.Horizon,
		WindowSize:     uc.engine.Config().WindowSize,
		Predictor:      uc.predictor,
		Backfilled:     min(len(actuals), len(res.Steps)),
		Steps:          res.Steps,
		Partial:        predErr != nil,
	}
	if predErr != nil {
		f.Error = predErr.Error()
		uc.metrics.RecordError("predictor")
	}

	uc.persist(ctx, f)
	if key != "" && f.Completed() && uc.cfg.CacheTTL > 0 {
		if err := uc.cache.Set(ctx, key, f, uc.cfg.CacheTTL); err != nil {
			uc.l.Warn("cache forecast", logger.String("key", key), logger.Error(err))
		}
	}

	uc.metrics.RecordForecast(f.Symbol, f.Predictor, len(f.Steps), f.Partial)
	if len(f.Steps) > 0 {
		uc.metrics.RecordLastForecast(f.Symbol, f.Steps[0].Value)
	}
	elapsed := uc.now().Sub(start)
	uc.metrics.RecordLatency("forecast", elapsed.Seconds())
	uc.l.Info("forecast done",
		logger.String("id", f.ID),
		logger.String("symbol", f.Symbol),
		logger.String("tf", f.Timeframe),
		logger.Int("steps", len(f.Steps)),
		logger.Int("backfilled", f.Backfilled),
		logger.Bool("partial", f.Partial),
		logger.Duration("duration_ms", elapsed),
	)

	if predErr != nil {
		return f, runErr
	}
	return f, nil
}

// actualsAfter returns the observed closes for the step labels that follow
// last. It stops at the first label without a candle, so a gap never shifts
// a later bar onto an earlier step.
func (uc *ForecastUseCase) actualsAfter(ctx context.Context, p ForecastParams, last time.Time) ([]float64, error) {
	clock, err := uc.engine.NewClock(last, p.Timeframe.Duration())
	if err != nil {
		return nil, err
	}
	// off-session bars can sit between labels
	after, err := uc.history.CandlesAfter(ctx, p.Symbol, p.Timeframe, last, 2*p.Horizon)
	if err != nil {
		return nil, fmt.Errorf("load actuals: %w", err)
	}
	closes := make(map[int64]float64, len(after))
	for _, c := range after {
		closes[c.Bucket.Unix()] = c.Close
	}

	actuals := make([]float64, 0, p.Horizon)
	for i := 0; i < p.Horizon; i++ {
		v, ok := closes[clock.LabelFor(i).Unix()]
		if !ok {
			break
		}
		actuals = append(actuals, v)
	}
	return actuals, nil
}

// persist stores and publishes f. Failures are logged, not returned: the
// caller still gets the forecast.
func (uc *ForecastUseCase) persist(ctx context.Context, f *models.Forecast) {
	if uc.store != nil {
		if err := uc.store.Save(ctx, f); err != nil {
			uc.metrics.RecordError("store")
			uc.l.Error("save forecast", logger.String("id", f.ID), logger.Error(err))
		}
	}
	if uc.publisher != nil {
		ev := &models.ForecastPublished{
			ForecastID: f.ID,
			Symbol:     f.Symbol,
			Timeframe:  f.Timeframe,
			Anchor:     f.Anchor,
			Steps:      len(f.Steps),
			Partial:    f.Partial,
			Forecast:   f,
		}
		if len(f.Steps) > 0 {
			ev.Last = f.Steps[len(f.Steps)-1].Value
		}
		if err := uc.publisher.Publish(ctx, ev); err != nil {
			uc.metrics.RecordError("publish")
			uc.l.Error("publish forecast", logger.String("id", f.ID), logger.Error(err))
		}
	}
}

// ForecastBatch forecasts several symbols concurrently. Per symbol failures
// land in Errors; partial forecasts are kept.
func (uc *ForecastUseCase) ForecastBatch(ctx context.Context, symbols []string, tf domrepo.Timeframe, horizon int) *models.BatchForecast {
	if horizon <= 0 {
		horizon = uc.cfg.DefaultHorizon
	}
	res := &models.BatchForecast{
		Timeframe: string(tf),
		Horizon:   horizon,
		Timestamp: uc.now(),
		Forecasts: make(map[string]*models.Forecast, len(symbols)),
		Errors:    map[string]string{},
	}

	type item struct {
		symbol string
		f      *models.Forecast
		err    error
	}
	ch := make(chan item, len(symbols))
	sem := make(chan struct{}, uc.cfg.BatchWorkers)
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		go func(sym string) {
			sem <- struct{}{}
			defer func() { <-sem }()
			f, err := uc.Forecast(ctx, ForecastParams{Symbol: sym, Timeframe: tf, Horizon: horizon})
			ch <- item{sym, f, err}
		}(s)
	}

	for i := 0; i < len(seen); i++ {
		it := <-ch
		if it.f != nil {
			res.Forecasts[it.symbol] = it.f
		}
		if it.err != nil {
			res.Errors[it.symbol] = it.err.Error()
		}
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res
}

// Backfill runs an anchored forecast under a lock so the same backfill never
// runs twice concurrently.
func (uc *ForecastUseCase) Backfill(ctx context.Context, req models.BackfillRequest) (*models.Forecast, error) {
	return uc.BackfillStream(ctx, req, nil)
}

// BackfillStream is Backfill with onStep called as each step is produced.
func (uc *ForecastUseCase) BackfillStream(ctx context.Context, req models.BackfillRequest, onStep func(models.ForecastStep)) (*models.Forecast, error) {
	if req.Anchor.IsZero() {
		return nil, fmt.Errorf("%w: backfill anchor required", ErrInvalidParams)
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if uc.cache != nil {
		key := cache.Key("lock", "backfill", symbol, string(tf), req.Anchor.Unix())
		ok, err := uc.cache.TryLock(ctx, key, uc.cfg.BackfillLock)
		if err != nil {
			return nil, fmt.Errorf("backfill lock: %w", err)
		}
		if !ok {
			return nil, ErrBackfillInProgress
		}
		defer func() {
			if err := uc.cache.Unlock(context.WithoutCancel(ctx), key); err != nil {
				uc.l.Warn("backfill unlock", logger.String("key", key), logger.Error(err))
			}
		}()
	}
	return uc.Forecast(ctx, ForecastParams{
		Symbol:    symbol,
		Timeframe: tf,
		Horizon:   req.Horizon,
		N:         req.N,
		RefPrice:  req.RefPrice,
		Anchor:    req.Anchor,
		OnStep:    onStep,
	})
}

// EnqueueBackfill schedules Backfill on the job queue and returns the job id.
func (uc *ForecastUseCase) EnqueueBackfill(ctx context.Context, req models.BackfillRequest) (string, error) {
	if uc.jobs == nil {
		return "", ErrJobQueueDisabled
	}
	if req.Anchor.IsZero() {
		return "", fmt.Errorf("%w: backfill anchor required", ErrInvalidParams)
	}
	p, err := uc.normalize(ForecastParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.NormalizeTimeframe(req.Timeframe),
		Horizon:   req.Horizon,
	})
	if err != nil {
		return "", err
	}
	req.Symbol, req.Timeframe, req.Horizon = p.Symbol, string(p.Timeframe), p.Horizon
	return uc.jobs.Enqueue(ctx, BackfillJobType, req)
}

// Schedule previews the step timestamps a forecast anchored at start would use.
func (uc *ForecastUseCase) Schedule(start time.Time, tf domrepo.Timeframe, horizon int) ([]time.Time, error) {
	if start.IsZero() {
		start = uc.now()
	}
	if horizon <= 0 {
		horizon = uc.cfg.DefaultHorizon
	}
	clock, err := uc.engine.NewClock(start, tf.Duration())
	if err != nil {
		return nil, err
	}
	return clock.Labels(horizon), nil
}

// Symbols lists the configured symbols, or those with stored candles when
// none are configured.
func (uc *ForecastUseCase) Symbols(ctx context.Context, tf domrepo.Timeframe) ([]string, error) {
	if len(uc.cfg.Symbols) > 0 {
		return uc.cfg.Symbols, nil
	}
	return uc.history.Symbols(ctx, tf)
}

// Location is the trading session's time zone; local timestamps in requests
// are read in it.
func (uc *ForecastUseCase) Location() *time.Location {
	if loc := uc.engine.Config().Session.Location; loc != nil {
		return loc
	}
	return time.UTC
}

// Latest returns the last stored forecast.
func (uc *ForecastUseCase) Latest(ctx context.Context, symbol string, tf domrepo.Timeframe) (*models.Forecast, error) {
	return uc.store.Latest(ctx, strings.ToUpper(symbol), tf)
}

func (uc *ForecastUseCase) normalize(p ForecastParams) (ForecastParams, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return p, fmt.Errorf("%w: symbol required", ErrInvalidParams)
	}
	if len(uc.cfg.Symbols) > 0 && !contains(uc.cfg.Symbols, p.Symbol) {
		return p, fmt.Errorf("%w: %s", ErrUnknownSymbol, p.Symbol)
	}
	if p.Timeframe == "" {
		p.Timeframe = uc.cfg.Timeframe
	}
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		return p, fmt.Errorf("%w: unsupported timeframe %s", ErrInvalidParams, p.Timeframe)
	}
	if p.Horizon <= 0 {
		p.Horizon = uc.cfg.DefaultHorizon
	}
	if maxH := uc.engine.Config().MaxHorizon; maxH > 0 && p.Horizon > maxH {
		return p, fmt.Errorf("%w: horizon %d exceeds %d", ErrInvalidParams, p.Horizon, maxH)
	}
	return p, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, forecast.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, forecast.ErrDegenerateRange):
		return "degenerate_range"
	case errors.Is(err, forecast.ErrInvalidActual):
		return "invalid_actual"
	default:
		return "forecast"
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
