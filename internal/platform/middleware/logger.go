package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
	"github.com/patientdesk/patientdesk/internal/platform/logging"
)

// RequestLogger emits one structured record per request with method,
// path, status, and latency. The trace id is attached by the logger.
// Errors themselves are logged by the error handler, not here, so each
// failure appears exactly once.
func RequestLogger(log *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				// The central error handler has not written the
				// response yet; classify for an accurate log line.
				status = apperror.Classify(err).Status
			}
			log.Info(req.Context(), "request", map[string]interface{}{
				"method":    req.Method,
				"path":      req.URL.Path,
				"status":    status,
				"latencyMs": time.Since(start).Milliseconds(),
				"remoteIp":  c.RealIP(),
			})
			return err
		}
	}
}
