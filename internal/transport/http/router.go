// Package httptransport assembles the public HTTP surface: the middleware
// stack and every handler's routes. Handlers stay in their domain packages.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deepname/internal/ratelimit/models"
	"deepname/pkg/platform/middleware/auth"
	"deepname/pkg/platform/middleware/device"
	"deepname/pkg/platform/middleware/request"
)

// Routes is implemented by every domain handler.
type Routes interface {
	Register(r chi.Router)
}

// AuthenticatedRoutes is implemented by handlers with routes that need a
// wallet session.
type AuthenticatedRoutes interface {
	RegisterAuthenticated(r chi.Router)
}

// Config carries the router's own knobs.
type Config struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	TrustProxy     bool
}

// RateLimitedRoutes names the requests that spend a rate limit budget.
var RateLimitedRoutes = map[string]models.Class{
	"POST /api/verify":        models.ClassProof,
	"POST /api/worldid":       models.ClassProof,
	"POST /api/self":          models.ClassProof,
	"GET /api/nonce":          models.ClassSession,
	"POST /api/complete-siwe": models.ClassSession,
	"POST /api/mint":          models.ClassMint,
	"POST /api/media/encode":  models.ClassMedia,
}

// Deps groups what the router composes.
type Deps struct {
	Logger   *slog.Logger
	Sessions auth.SessionValidator
	Latency  request.LatencyObserver
	// RateLimit runs after session resolution so budgets follow the wallet.
	// Nil disables rate limiting.
	RateLimit func(http.Handler) http.Handler

	Health       Routes
	Auth         Routes
	Verification interface {
		Routes
		AuthenticatedRoutes
	}
	Mint  Routes
	Media Routes
}

// NewRouter wires all public endpoints with middleware.
//
// JSON routes run under the request timeout and body limit. Media routes skip
// both: uploads are capped by the media handler itself and artifact downloads
// stream, which http.TimeoutHandler would buffer.
func NewRouter(cfg Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.ClientIP(cfg.TrustProxy))
	r.Use(request.Logger(d.Logger))
	r.Use(request.Time)

	if d.Health != nil {
		d.Health.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.Latency(d.Latency))
		r.Use(request.Timeout(cfg.RequestTimeout))
		r.Use(request.BodyLimit(cfg.MaxBodyBytes))
		r.Use(request.ContentTypeJSON)

		// Sessions are optional on the flow routes: a wallet-less visitor can
		// still prove humanity before connecting.
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalWallet(d.Sessions, d.Logger))
			useIfSet(r, d.RateLimit)
			d.Auth.Register(r)
			d.Verification.Register(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireWallet(d.Sessions, d.Logger))
			useIfSet(r, d.RateLimit)
			d.Verification.RegisterAuthenticated(r)
			d.Mint.Register(r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Latency(d.Latency))
		r.Use(auth.OptionalWallet(d.Sessions, d.Logger))
		r.Use(device.Middleware)
		useIfSet(r, d.RateLimit)
		d.Media.Register(r)
	})

	return r
}

func useIfSet(r chi.Router, mw func(http.Handler) http.Handler) {
	if mw != nil {
		r.Use(mw)
	}
}
