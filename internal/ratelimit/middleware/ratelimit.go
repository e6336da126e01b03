// Package middleware enforces per-class request budgets keyed by wallet when
// a session is present and by client IP otherwise.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deepname/internal/ratelimit/models"
	"deepname/pkg/platform/httputil"
	"deepname/pkg/requestcontext"
)

type Limiter interface {
	AllowN(ctx context.Context, key string, cost int, limit models.Limit) (models.Result, error)
}

// Observer is notified of every rejected request.
type Observer interface {
	IncrementRateLimited(class string)
}

type Middleware struct {
	limiter  Limiter
	limits   map[models.Class]models.Limit
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

type Option func(*Middleware)

func WithObserver(o Observer) Option {
	return func(m *Middleware) { m.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(m *Middleware) { m.now = now }
}

func New(limiter Limiter, limits map[models.Class]models.Limit, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RateLimit checks the class budget before the handler runs. Store failures
// let the request through.
func (m *Middleware) RateLimit(class models.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limit, ok := m.limits[class]
		if !ok || !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.allow(w, r, class, limit) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Routes applies budgets to the requests named in table, keyed by
// "METHOD /path". Other requests pass through unchecked.
func (m *Middleware) Routes(table map[string]models.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class, ok := table[r.Method+" "+r.URL.Path]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			limit, ok := m.limits[class]
			if !ok || !limit.Enabled() || m.allow(w, r, class, limit) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// allow reports whether the request may proceed. A rejected request has
// already been answered with 429.
func (m *Middleware) allow(w http.ResponseWriter, r *http.Request, class models.Class, limit models.Limit) bool {
	ctx := r.Context()
	result, err := m.limiter.AllowN(ctx, subjectKey(ctx, class), 1, limit)
	if err != nil {
		m.logger.ErrorContext(ctx, "rate limit check failed",
			"error", err,
			"class", class,
			"request_id", requestcontext.RequestID(ctx),
		)
		return true
	}

	addHeaders(w, result)
	if result.Allowed {
		return true
	}
	if m.observer != nil {
		m.observer.IncrementRateLimited(string(class))
	}
	m.logger.WarnContext(ctx, "rate limit exceeded",
		"class", class,
		"request_id", requestcontext.RequestID(ctx),
	)
	retry := result.RetryAfter(m.now())
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: retry,
	})
	return false
}

func subjectKey(ctx context.Context, class models.Class) string {
	if wallet := requestcontext.Wallet(ctx); wallet != "" {
		return string(class) + ":wallet:" + strings.ToLower(wallet)
	}
	ip := requestcontext.ClientIP(ctx)
	if ip == "" {
		ip = "unknown"
	}
	return string(class) + ":ip:" + ip
}

func addHeaders(w http.ResponseWriter, result models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
