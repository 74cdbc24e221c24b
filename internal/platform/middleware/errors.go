package middleware

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
	"github.com/patientdesk/patientdesk/internal/platform/logging"
)

// ErrorEnvelope is the uniform JSON body written for every failed HTTP
// request.
type ErrorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	Message    string `json:"message"`
}

// ErrorHandler returns the central echo error handler. It classifies the
// error, logs it once with severity by status class (5xx error with
// stack, 4xx warn, else info), and writes the envelope. GraphQL resolver
// errors never reach this handler; the engine formats those itself after
// the same logging contract.
func ErrorHandler(log *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := classify(err)
		LogException(log, c.Request(), "http", status, message, err)

		envelope := ErrorEnvelope{
			StatusCode: status,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Path:       c.Request().URL.Path,
			Message:    message,
		}
		if writeErr := c.JSON(status, envelope); writeErr != nil {
			log.Error(c.Request().Context(), "failed to write error response", map[string]interface{}{
				"error": writeErr.Error(),
			})
		}
	}
}

// classify resolves status and client-safe message for any error,
// including echo's own routing errors.
func classify(err error) (int, string) {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}
	ae := apperror.Classify(err)
	return ae.Status, ae.Message
}

// LogException records one error with severity chosen by status class.
// Shared by the HTTP error handler and the GraphQL dispatcher.
func LogException(log *logging.Logger, req *http.Request, contextType string, status int, message string, err error) {
	fields := map[string]interface{}{
		"contextType": contextType,
		"status":      status,
		"message":     message,
		"error":       err.Error(),
	}

	ctx := req.Context()
	switch {
	case status >= http.StatusInternalServerError:
		var stack [4096]byte
		n := runtime.Stack(stack[:], false)
		fields["stack"] = string(stack[:n])
		log.Error(ctx, "unhandled exception", fields)
	case status >= http.StatusBadRequest:
		log.Warn(ctx, "client error", fields)
	default:
		log.Info(ctx, "exception handled", fields)
	}
}
