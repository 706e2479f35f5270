package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
	pkgkafka "StockCast/pkg/kafka"
	"StockCast/pkg/logger"
	"StockCast/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *logger.Logger
	httpServer *xhttp.Server
	queue      *queue.RedisQueue
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *logger.Logger, srv *xhttp.Server, q *queue.RedisQueue) *App {
	if l == nil {
		l = logger.Nop()
	}
	return &App{cfg: cfg, l: l, httpServer: srv, queue: q}
}

// SetConsumer enables the Kafka request consumer.
func (a *App) SetConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer, a.kh = c, h
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	a.l.Info("shutdown signal received", logger.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(ctx)
}

// Start launches the job queue, the Kafka consumer and the HTTP server.
func (a *App) Start() error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("job queue: %w", err)
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.l.Info("kafka consumer started", logger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", logger.Error(err))
		return err
	}
	a.l.Info("stockcast started",
		logger.Int("window_size", a.cfg.Forecast.WindowSize),
		logger.String("predictor", a.cfg.Predictor.Type),
		logger.Strings("symbols", a.cfg.Forecast.Symbols))
	return nil
}

// Shutdown stops intake first, then background workers. Infrastructure
// clients are closed by the DI cleanup.
func (a *App) Shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")
	start := time.Now()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", logger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", logger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("job queue stop error", logger.Error(err))
		}
	}

	a.l.Info("shutdown complete", logger.Duration("elapsed_ms", time.Since(start)))
	return nil
}
