package di

import (
	"context"
	"fmt"
	"time"

	"StockCast/internal/domain/repository"
	domsvc "StockCast/internal/domain/service"
	"StockCast/internal/handler/api"
	internalrepo "StockCast/internal/repository"
	"StockCast/internal/service/ratelimit"
	"StockCast/internal/services/analytics"
	"StockCast/internal/services/forecast"
	"StockCast/internal/usecase"
	"StockCast/pkg/cache"
	pkgch "StockCast/pkg/clickhouse"
	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
	pkgkafka "StockCast/pkg/kafka"
	"StockCast/pkg/logger"
	"StockCast/pkg/metrics"
	"StockCast/pkg/queue"
	"StockCast/pkg/server"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and, when enabled,
// creates the candle and forecast tables.
func ProvideClickHouseClient(cfg *config.Config, l *logger.Logger) (*pkgch.Client, func(), error) {
	client, err := pkgch.NewClient(pkgch.WithConfig(cfg.ClickHouse))
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse)); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	l.Info("clickhouse connected",
		logger.String("host", cfg.ClickHouse.Host),
		logger.String("database", cfg.ClickHouse.Database))

	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", logger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideHistoryStore creates the candle reader.
func ProvideHistoryStore(ch *pkgch.Client, l *logger.Logger) repository.HistoryStore {
	return internalrepo.NewCHHistoryStore(ch, l)
}

// ProvideForecastStore creates the forecast writer.
func ProvideForecastStore(ch *pkgch.Client, l *logger.Logger) repository.ForecastStore {
	return internalrepo.NewCHForecastStore(ch, l)
}

// ProvideForecastPublisher publishes forecasts to Kafka, or drops them when
// Kafka is disabled.
func ProvideForecastPublisher(cfg *config.Config, l *logger.Logger) (repository.ForecastPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		l.Info("kafka disabled, forecasts are not published")
		return internalrepo.NopForecastPublisher{}, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithProducerConfig(cfg.Kafka.Producer),
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaForecastPublisher(producer, cfg.Kafka.Topics.Published)
	cleanup := func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return pub, cleanup, nil
}

// ProvideKafkaConsumer creates the forecast request consumer. It returns nil
// when Kafka or the requests topic is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.Topics.Requests == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerConfig(cfg.Kafka.Consumer),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisCache connects to Redis.
func ProvideRedisCache(cfg *config.Config, l *logger.Logger) (*cache.RedisCache, func(), error) {
	rc, err := cache.NewRedisCache(cache.WithRedisConfig(cfg.Redis))
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	l.Info("redis connected", logger.String("addr", cfg.Redis.Addr))
	cleanup := func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close error", logger.Error(err))
		}
	}
	return rc, cleanup, nil
}

// ProvideCache returns the forecast cache, with an in-process layer in front
// of Redis when configured.
func ProvideCache(rc *cache.RedisCache, cfg *config.Config) cache.Service {
	if cfg.Redis.Layered {
		return cache.NewLayeredCache(rc, cfg.Redis.MemoryMaxSize, cfg.Forecast.CacheTTL)
	}
	return rc
}

// ProvideJobQueue creates the Redis backed job queue on the cache's client.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, l *logger.Logger) *queue.RedisQueue {
	return queue.NewRedisQueue(l, cfg.Queue, rc.Client())
}

// ProvidePredictor selects the step predictor from config.
func ProvidePredictor(cfg *config.Config) (domsvc.StepPredictor, error) {
	return analytics.NewPredictor(cfg)
}

// ProvideEngineConfig converts the forecast section into the engine config.
func ProvideEngineConfig(cfg *config.Config) (forecast.Config, error) {
	f := cfg.Forecast
	session, err := forecast.ParseSession(f.Session.Open, f.Session.Close, f.Session.Timezone, f.Session.Holidays)
	if err != nil {
		return forecast.Config{}, err
	}
	ticks := make(forecast.TickTable, 0, len(f.TickTable))
	for _, t := range f.TickTable {
		ticks = append(ticks, forecast.TickTier{Below: t.Below, Tick: t.Tick})
	}
	return forecast.Config{
		WindowSize:     f.WindowSize,
		MaxHorizon:     f.MaxHorizon,
		Step:           f.Step,
		FitSample:      forecast.FitSample(f.FitSample),
		UpperFactor:    f.UpperFactor,
		LowerFactor:    f.LowerFactor,
		StayInBand:     f.StayInBand,
		Ticks:          ticks,
		Session:        session,
		PredictTimeout: f.PredictTimeout,
	}, nil
}

// ProvideEngine builds the forecast engine around the predictor.
func ProvideEngine(fc forecast.Config, p domsvc.StepPredictor) (*forecast.Engine, error) {
	return forecast.NewEngine(fc, p)
}

// ProvideForecastUseCase creates the forecast use case and registers the
// backfill job on the queue.
func ProvideForecastUseCase(
	cfg *config.Config,
	engine *forecast.Engine,
	predictor domsvc.StepPredictor,
	history repository.HistoryStore,
	store repository.ForecastStore,
	pub repository.ForecastPublisher,
	c cache.Service,
	m repository.Metrics,
	q *queue.RedisQueue,
	l *logger.Logger,
) *usecase.ForecastUseCase {
	f := cfg.Forecast
	uc := usecase.NewForecastUseCase(engine, predictor.Name(), history, store, pub, c, m, l, usecase.ForecastSettings{
		DefaultHorizon: f.DefaultHorizon,
		HistorySize:    f.HistorySize,
		Timeframe:      repository.NormalizeTimeframe(f.Timeframe),
		CacheTTL:       f.CacheTTL,
		BackfillLock:   f.BackfillLock,
		BatchWorkers:   f.BatchWorkers,
		Symbols:        f.Symbols,
	})
	uc.SetJobQueue(q)
	q.RegisterJob(usecase.NewBackfillJob(uc, l))
	return uc
}

// ProvideForecastRequestHandler handles the Kafka requests topic.
func ProvideForecastRequestHandler(cfg *config.Config, uc *usecase.ForecastUseCase, m repository.Metrics, l *logger.Logger) *usecase.ForecastRequestHandler {
	return usecase.NewForecastRequestHandler(cfg.Kafka.Topics.Requests, uc, m, l)
}

// ProvideRateLimiter creates the per client limiter and starts pruning idle
// buckets. It returns nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) (*ratelimit.Limiter, func()) {
	if !cfg.RateLimit.Enabled {
		return nil, func() {}
	}
	rl := ratelimit.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rl.Run(ctx, cfg.RateLimit.PruneEvery, cfg.RateLimit.IdleTTL)
	}()
	cleanup := func() {
		cancel()
		<-done
	}
	return rl, cleanup
}

// ProvideHTTPHandler creates the echo handler with rate limiting and health
// checks on ClickHouse and Redis.
func ProvideHTTPHandler(cfg *config.Config, uc *usecase.ForecastUseCase, ch *pkgch.Client, rc *cache.RedisCache, rl *ratelimit.Limiter, l *logger.Logger) xhttp.Handler {
	opts := []api.ForecastHandlerOption{
		api.WithHealthCheck("clickhouse", ch.Health),
		api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}),
	}
	if rl != nil {
		opts = append(opts, api.WithRateLimit(rl, cfg.RateLimit.Burst, cfg.RateLimit.PerSec))
	}
	return api.NewForecastEchoHandler(l, uc, opts...)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *logger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{xhttp.WithServerConfig(cfg.Server)}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	return xhttp.NewServer(l, h, opts...)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	srv *xhttp.Server,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	rh *usecase.ForecastRequestHandler,
) *server.App {
	app := server.New(cfg, l, srv, q)
	if consumer != nil {
		app.SetConsumer(consumer, rh)
	}
	return app
}
