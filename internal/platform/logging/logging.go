// Package logging provides the structured application logger. Every
// record carries the trace id from the request context, and attribute
// maps are scrubbed of patient-identifying data before they reach the
// sink.
package logging

import (
	"context"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/patientdesk/patientdesk/internal/platform/trace"
)

// piiKeys are attribute keys stripped from log fields, at any nesting
// depth, before emission.
var piiKeys = map[string]bool{
	"email":       true,
	"firstName":   true,
	"lastName":    true,
	"phone":       true,
	"ssn":         true,
	"dateOfBirth": true,
	"address":     true,
}

// errorFieldKeys name free-text fields whose values get pattern-based
// redaction rather than removal.
var errorFieldKeys = map[string]bool{
	"error":        true,
	"errorMessage": true,
}

var (
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	ssnPattern      = regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`)
	digitRunPattern = regexp.MustCompile(`\b\d{10,}\b`)
)

// Logger emits leveled JSON records tagged with the active trace id.
// Construct one per process and pass it to every component that logs.
type Logger struct {
	zl zerolog.Logger
}

// New creates a Logger writing to w at the given level. Unknown level
// strings fall back to info.
func New(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewDefault creates a Logger writing to stderr.
func NewDefault(level string) *Logger {
	return New(os.Stderr, level)
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Zerolog exposes the underlying zerolog.Logger for middleware that
// logs request lines directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.emit(ctx, l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.emit(ctx, l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.emit(ctx, l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.emit(ctx, l.zl.Error(), msg, fields)
}

func (l *Logger) emit(ctx context.Context, evt *zerolog.Event, msg string, fields map[string]interface{}) {
	if id := trace.FromContext(ctx); id != "" {
		evt = evt.Str("trace_id", id)
	}
	if len(fields) > 0 {
		evt = evt.Fields(Sanitize(fields))
	}
	evt.Msg(msg)
}

// Sanitize returns a copy of fields with PII keys removed and free-text
// error values redacted. Nested maps and slices are scrubbed
// recursively; the input is never modified.
func Sanitize(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if piiKeys[k] {
			continue
		}
		if s, ok := v.(string); ok && errorFieldKeys[k] {
			out[k] = RedactText(s)
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return Sanitize(val)
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

// RedactText replaces email-like, SSN-like, and long-digit-run
// substrings in free text.
func RedactText(s string) string {
	s = emailPattern.ReplaceAllString(s, "[EMAIL_REDACTED]")
	s = ssnPattern.ReplaceAllString(s, "[SSN_REDACTED]")
	s = digitRunPattern.ReplaceAllString(s, "[NUMBER_REDACTED]")
	return s
}
