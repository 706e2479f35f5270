package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/service/ratelimit"
	"StockCast/internal/services/forecast"
	"StockCast/internal/usecase"
	xhttp "StockCast/pkg/http"
	xlogger "StockCast/pkg/logger"
)

// ForecastService is what the HTTP layer needs from the forecast use case.
type ForecastService interface {
	Forecast(ctx context.Context, p usecase.ForecastParams) (*models.Forecast, error)
	ForecastBatch(ctx context.Context, symbols []string, tf domrepo.Timeframe, horizon int) *models.BatchForecast
	Backfill(ctx context.Context, req models.BackfillRequest) (*models.Forecast, error)
	BackfillStream(ctx context.Context, req models.BackfillRequest, onStep func(models.ForecastStep)) (*models.Forecast, error)
	EnqueueBackfill(ctx context.Context, req models.BackfillRequest) (string, error)
	Schedule(start time.Time, tf domrepo.Timeframe, horizon int) ([]time.Time, error)
	Symbols(ctx context.Context, tf domrepo.Timeframe) ([]string, error)
	Latest(ctx context.Context, symbol string, tf domrepo.Timeframe) (*models.Forecast, error)
	Location() *time.Location
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// ForecastEchoHandler serves the forecast API over echo.
type ForecastEchoHandler struct {
	logger *xlogger.Logger
	svc    ForecastService

	limiter *ratelimit.Limiter
	burst   float64
	perSec  float64

	checks   map[string]HealthCheck
	streamer *streamer
}

type ForecastHandlerOption func(*ForecastEchoHandler)

// WithRateLimit enables per client token buckets on the /api routes.
func WithRateLimit(l *ratelimit.Limiter, burst, perSec float64) ForecastHandlerOption {
	return func(h *ForecastEchoHandler) {
		h.limiter, h.burst, h.perSec = l, burst, perSec
	}
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) ForecastHandlerOption {
	return func(h *ForecastEchoHandler) {
		h.checks[name] = check
	}
}

func NewForecastEchoHandler(logger *xlogger.Logger, svc ForecastService, opts ...ForecastHandlerOption) *ForecastEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &ForecastEchoHandler{
		logger: logger,
		svc:    svc,
		checks: make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.streamer = newStreamer(logger, svc)
	return h
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(ratelimit.Middleware(h.limiter, h.burst, h.perSec, h.logger))
	}
	g.GET("/forecast", h.Forecast)
	g.GET("/forecast/latest", h.Latest)
	g.POST("/forecast/batch", h.Batch)
	g.POST("/forecast/backfill", h.EnqueueBackfill)
	g.GET("/forecast/schedule", h.Schedule)
	g.GET("/symbols", h.Symbols)

	e.GET("/ws/forecast", h.streamer.Serve)
}

// Forecast runs a forecast. With anchor set it becomes a synchronous backfill.
func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	var (
		f   *models.Forecast
		err error
	)
	if req.Anchor != "" {
		anchor, ok := xhttp.ParseTimeIn(req.Anchor, h.svc.Location())
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid anchor %q", req.Anchor))
		}
		f, err = h.svc.Backfill(ctx, models.BackfillRequest{
			Symbol:    req.Symbol,
			Timeframe: req.TF,
			Anchor:    anchor,
			Horizon:   req.Horizon,
			RefPrice:  req.RefPrice,
			N:         req.N,
		})
	} else {
		f, err = h.svc.Forecast(ctx, usecase.ForecastParams{
			Symbol:    req.Symbol,
			Timeframe: domrepo.Timeframe(req.TF),
			Horizon:   req.Horizon,
			N:         req.N,
			RefPrice:  req.RefPrice,
		})
	}
	if err != nil {
		return h.errorResponse(c, "forecast", f, err)
	}
	return xhttp.SuccessResponse(c, f)
}

func (h *ForecastEchoHandler) Latest(c echo.Context) error {
	req := &models.LatestForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f, err := h.svc.Latest(c.Request().Context(), req.Symbol, domrepo.Timeframe(req.TF))
	if err != nil {
		return h.errorResponse(c, "latest", nil, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, f)
}

type batchResponse struct {
	Timeframe string                      `json:"timeframe"`
	Horizon   int                         `json:"horizon"`
	Timestamp time.Time                   `json:"timestamp"`
	Forecasts map[string]*models.Forecast `json:"forecasts"`
	Errors    map[string]string           `json:"errors,omitempty"`
}

func (h *ForecastEchoHandler) Batch(c echo.Context) error {
	req := &models.BatchForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := h.svc.ForecastBatch(c.Request().Context(), req.Symbols, domrepo.Timeframe(req.TF), req.Horizon)
	return xhttp.SuccessResponse(c, &batchResponse{
		Timeframe: res.Timeframe,
		Horizon:   res.Horizon,
		Timestamp: res.Timestamp,
		Forecasts: res.Forecasts,
		Errors:    res.Errors,
	})
}

// EnqueueBackfill queues an anchored forecast and answers 202 with the job id.
func (h *ForecastEchoHandler) EnqueueBackfill(c echo.Context) error {
	req := &models.BackfillHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	anchor, ok := xhttp.ParseTimeIn(req.Anchor, h.svc.Location())
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid anchor %q", req.Anchor))
	}
	id, err := h.svc.EnqueueBackfill(c.Request().Context(), models.BackfillRequest{
		Symbol:    req.Symbol,
		Timeframe: req.TF,
		Anchor:    anchor,
		Horizon:   req.Horizon,
	})
	if err != nil {
		return h.errorResponse(c, "backfill", nil, err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"job_id": id})
}

type scheduleResponse struct {
	Timeframe string      `json:"timeframe"`
	Start     time.Time   `json:"start"`
	Labels    []time.Time `json:"labels"`
}

func (h *ForecastEchoHandler) Schedule(c echo.Context) error {
	req := &models.ScheduleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var start time.Time
	if req.Start != "" {
		t, ok := xhttp.ParseTimeIn(req.Start, h.svc.Location())
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid start %q", req.Start))
		}
		start = t
	}
	tf := domrepo.Timeframe(req.TF)
	labels, err := h.svc.Schedule(start, tf, req.Horizon)
	if err != nil {
		return h.errorResponse(c, "schedule", nil, err)
	}
	return xhttp.SuccessResponse(c, &scheduleResponse{Timeframe: string(tf), Start: start, Labels: labels})
}

func (h *ForecastEchoHandler) Symbols(c echo.Context) error {
	req := &models.SymbolsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols, err := h.svc.Symbols(c.Request().Context(), domrepo.Timeframe(req.TF))
	if err != nil {
		return h.errorResponse(c, "symbols", nil, err)
	}
	return xhttp.ListResponse(c, symbols, int64(len(symbols)))
}

// Health runs every registered check; any failure answers 503.
func (h *ForecastEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	return xhttp.DataResponse(c, status, deps)
}

// errorResponse maps use case and engine errors onto HTTP statuses. A
// predictor failure still returns the steps produced before it.
func (h *ForecastEchoHandler) errorResponse(c echo.Context, op string, partial *models.Forecast, err error) error {
	appErr := toAppError(err)
	if appErr == nil {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	if partial != nil {
		return xhttp.PartialResponse(c, appErr, partial)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var (
		predErr *forecast.PredictorError
		histErr *forecast.InsufficientHistoryError
	)
	switch {
	case errors.As(err, &predErr):
		return xhttp.BadGatewayError("predictor failed").
			WithParam("step", predErr.Step).
			WithError(err)
	case errors.As(err, &histErr):
		return xhttp.UnprocessableError("not enough history for the window").
			WithParams(map[string]interface{}{"have": histErr.Have, "need": histErr.Need}).
			WithError(err)
	case errors.Is(err, forecast.ErrDegenerateRange),
		errors.Is(err, forecast.ErrInvalidActual),
		errors.Is(err, forecast.ErrUnorderedHistory):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrInvalidParams):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrUnknownSymbol):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrNoForecast):
		return xhttp.NotFoundError("no forecast stored").WithError(err)
	case errors.Is(err, usecase.ErrBackfillInProgress):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrJobQueueDisabled):
		return xhttp.NewAppError("ERR_UNAVAILABLE", "", err.Error(), http.StatusServiceUnavailable).WithError(err)
	default:
		return nil
	}
}
