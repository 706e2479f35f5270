//go:build wireinject
// +build wireinject

package di

import (
	"StockCast/internal/domain/repository"
	"StockCast/pkg/config"
	"StockCast/pkg/metrics"
	"StockCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,

		// Metrics
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideJobQueue,
		ProvideKafkaConsumer,

		// Repositories
		ProvideHistoryStore,
		ProvideForecastStore,
		ProvideForecastPublisher,

		// Forecast core
		ProvidePredictor,
		ProvideEngineConfig,
		ProvideEngine,

		// Use cases
		ProvideForecastUseCase,
		ProvideForecastRequestHandler,

		// HTTP
		ProvideRateLimiter,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
