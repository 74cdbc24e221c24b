// Package ratelimit implements per-client request budgets over named
// rolling windows. Counters are keyed by (tracking key, window name) and
// slide continuously rather than resetting on calendar boundaries.
package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
	"github.com/patientdesk/patientdesk/internal/platform/logging"
)

// UnknownKey is the shared bucket for callers with no usable address.
const UnknownKey = "unknown"

// Window is a named budget: at most Limit requests per Interval.
type Window struct {
	Name     string
	Interval time.Duration
	Limit    int
}

// DefaultWindows returns the standard short/long budget pair.
func DefaultWindows() []Window {
	return []Window{
		{Name: "short", Interval: time.Second, Limit: 3},
		{Name: "long", Interval: time.Minute, Limit: 100},
	}
}

// slidingCounter records request timestamps inside one window for one
// tracking key.
type slidingCounter struct {
	hits []time.Time
}

func (s *slidingCounter) prune(cutoff time.Time) {
	i := 0
	for i < len(s.hits) && !s.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.hits = append(s.hits[:0], s.hits[i:]...)
	}
}

// Result reports the outcome of one Allow call.
type Result struct {
	OK bool
	// Window is the first exceeded window when OK is false.
	Window Window
	// RetryAfter is how long until the exceeded window frees a slot.
	RetryAfter time.Duration
}

// Limiter counts requests per tracking key over the configured windows.
// Safe for concurrent use.
type Limiter struct {
	windows  []Window
	mu       sync.Mutex
	counters map[string]*slidingCounter // "<key>|<window>"
}

// New creates a Limiter. With no windows the limiter admits everything.
func New(windows []Window) *Limiter {
	return &Limiter{
		windows:  windows,
		counters: make(map[string]*slidingCounter),
	}
}

// Allow records one request under key and reports whether any window's
// budget is exceeded. Every request is counted, including rejected
// ones, matching throttler semantics.
func (l *Limiter) Allow(key string) Result {
	return l.allowAt(key, time.Now())
}

func (l *Limiter) allowAt(key string, now time.Time) Result {
	if key == "" {
		key = UnknownKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res := Result{OK: true}
	for _, w := range l.windows {
		ck := key + "|" + w.Name
		c := l.counters[ck]
		if c == nil {
			c = &slidingCounter{}
			l.counters[ck] = c
		}
		c.prune(now.Add(-w.Interval))
		c.hits = append(c.hits, now)
		if len(c.hits) > w.Limit && res.OK {
			res.OK = false
			res.Window = w
			res.RetryAfter = c.hits[0].Add(w.Interval).Sub(now)
			if res.RetryAfter < 0 {
				res.RetryAfter = 0
			}
		}
	}
	return res
}

// Sweep drops counters whose every hit has aged out of its window,
// bounding memory across many one-off clients.
func (l *Limiter) Sweep() {
	now := time.Now()
	byName := make(map[string]time.Duration, len(l.windows))
	for _, w := range l.windows {
		byName[w.Name] = w.Interval
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for ck, c := range l.counters {
		interval := windowInterval(ck, byName)
		c.prune(now.Add(-interval))
		if len(c.hits) == 0 {
			delete(l.counters, ck)
		}
	}
}

// windowInterval recovers the window from a composite counter key. The
// window name is everything after the last separator; tracking keys may
// themselves contain one.
func windowInterval(counterKey string, byName map[string]time.Duration) time.Duration {
	if i := strings.LastIndex(counterKey, "|"); i >= 0 {
		if interval, ok := byName[counterKey[i+1:]]; ok {
			return interval
		}
	}
	return time.Minute
}

// Run sweeps idle counters until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

// TrackingKey derives the rate-limit bucket for a client address.
func TrackingKey(realIP string) string {
	if realIP == "" {
		return UnknownKey
	}
	return realIP
}

// Middleware throttles plain HTTP routes. GraphQL operations are
// checked at dispatch instead, where operation and field names are
// known.
func Middleware(l *Limiter, log *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := TrackingKey(c.RealIP())
			res := l.Allow(key)
			if !res.OK {
				retry := int(res.RetryAfter.Seconds()) + 1
				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				log.Warn(c.Request().Context(), "rate limit exceeded", map[string]interface{}{
					"trackingKey":   key,
					"userAgent":     c.Request().UserAgent(),
					"operationName": c.Request().Method,
					"fieldName":     c.Path(),
					"window":        res.Window.Name,
				})
				return apperror.RateLimited("too many requests")
			}
			return next(c)
		}
	}
}
