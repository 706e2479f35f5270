package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	models "StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/usecase"
	xhttp "StockCast/pkg/http"
	xlogger "StockCast/pkg/logger"
)

const (
	streamWriteWait = 10 * time.Second
	streamReadLimit = 512
)

// streamMessage is one frame on /ws/forecast: a "step" per produced value,
// then a final "done" or "error".
type streamMessage struct {
	Type     string               `json:"type"`
	Step     *models.ForecastStep `json:"step,omitempty"`
	Forecast *models.Forecast     `json:"forecast,omitempty"`
	Error    *xhttp.AppError      `json:"error,omitempty"`
}

// streamer pushes forecast steps to a websocket as the rollout produces them.
type streamer struct {
	logger   *xlogger.Logger
	svc      ForecastService
	upgrader websocket.Upgrader
}

func newStreamer(l *xlogger.Logger, svc ForecastService) *streamer {
	return &streamer{
		logger: l,
		svc:    svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *streamer) Serve(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// The client sends nothing; reading only detects that it went away.
	conn.SetReadLimit(streamReadLimit)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	var mu sync.Mutex
	send := func(m streamMessage) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(m)
	}

	onStep := func(step models.ForecastStep) {
		if err := send(streamMessage{Type: "step", Step: &step}); err != nil {
			cancel()
		}
	}

	var (
		f     *models.Forecast
		start = time.Now()
	)
	if req.Anchor != "" {
		anchor, ok := xhttp.ParseTimeIn(req.Anchor, s.svc.Location())
		if !ok {
			_ = send(streamMessage{Type: "error", Error: xhttp.BadRequestErrorf("invalid anchor %q", req.Anchor)})
			return nil
		}
		f, err = s.svc.BackfillStream(ctx, models.BackfillRequest{
			Symbol:    req.Symbol,
			Timeframe: req.TF,
			Anchor:    anchor,
			Horizon:   req.Horizon,
			RefPrice:  req.RefPrice,
			N:         req.N,
		}, onStep)
	} else {
		f, err = s.svc.Forecast(ctx, usecase.ForecastParams{
			Symbol:    req.Symbol,
			Timeframe: domrepo.Timeframe(req.TF),
			Horizon:   req.Horizon,
			N:         req.N,
			RefPrice:  req.RefPrice,
			OnStep:    onStep,
		})
	}
	msg := streamMessage{Type: "done", Forecast: f}
	if err != nil {
		appErr := toAppError(err)
		if appErr == nil {
			appErr = xhttp.InternalError("forecast failed")
			s.logger.Error("stream forecast error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		}
		msg.Type, msg.Error = "error", appErr
	}
	if err := send(msg); err != nil {
		s.logger.Debug("stream closed early", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return nil
	}
	s.logger.Debug("stream finished",
		xlogger.String("symbol", req.Symbol),
		xlogger.String("result", msg.Type),
		xlogger.Duration("duration_ms", time.Since(start)))

	mu.Lock()
	defer mu.Unlock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteWait))
	return nil
}
