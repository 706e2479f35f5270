package ratelimit

import (
	"github.com/labstack/echo/v4"

	xhttp "StockCast/pkg/http"
	"StockCast/pkg/logger"
)

// Middleware limits requests per client IP and route. Rejected requests get a
// 429 with Retry-After.
func Middleware(l *Limiter, burst, perSec float64, lgr *logger.Logger) echo.MiddlewareFunc {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP() + ":" + c.Path()
			if !l.Allow(key, burst, perSec) {
				lgr.Warn("rate limited",
					logger.String("remote", c.RealIP()),
					logger.String("path", c.Path()))
				c.Response().Header().Set("Retry-After", "1")
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
			}
			return next(c)
		}
	}
}
