package middleware

import (
	"github.com/labstack/echo/v4"

	"TradeSync/internal/service/ratelimit"
	xhttp "TradeSync/pkg/http"
)

// RateLimit rejects requests from a client IP that exhausted its bucket.
func RateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many training requests"))
			}
			return next(c)
		}
	}
}
