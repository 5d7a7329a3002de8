package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gst3d/pushserver/internal/auth"
	"github.com/gst3d/pushserver/internal/middleware"
	"github.com/gst3d/pushserver/pkg/response"
)

// endpoints is listed by the 404 fallback
var endpoints = []string{
	"GET /health",
	"GET /api/test",
	"GET /api/status",
	"POST /api/push/token",
	"GET /api/push/tokens",
	"GET /api/push/tokens/info",
	"POST /api/push/send",
	"POST /api/push/test",
	"GET /api/logs",
	"GET /api/logs/stream",
	"GET /metrics",
}

// RouterOptions carries the optional cross-cutting pieces
type RouterOptions struct {
	AllowedOrigins []string
	// RateLimiter guards /api/*; nil disables it.
	RateLimiter *middleware.RateLimiter
	// Metrics serves /metrics; nil disables the route.
	Metrics  http.Handler
	Observer middleware.HTTPObserver
}

// Router holds all handlers and creates the chi router
type Router struct {
	pushHandler   *PushHandler
	healthHandler *HealthHandler
	auditHub      *AuditHub
	tokens        *auth.StaticTokens
	opts          RouterOptions
	logger        *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	pushHandler *PushHandler,
	healthHandler *HealthHandler,
	auditHub *AuditHub,
	tokens *auth.StaticTokens,
	opts RouterOptions,
	logger *zap.Logger,
) *Router {
	return &Router{
		pushHandler:   pushHandler,
		healthHandler: healthHandler,
		auditHub:      auditHub,
		tokens:        tokens,
		opts:          opts,
		logger:        logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger, rt.opts.Observer))
	r.Use(middleware.CORSMiddleware(rt.opts.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "route not found",
			map[string]interface{}{
				"path":               r.URL.Path,
				"availableEndpoints": endpoints,
			})
	})

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	r.Route("/api", func(r chi.Router) {
		if rt.opts.RateLimiter != nil {
			r.Use(rt.opts.RateLimiter.Limit)
		}

		r.Get("/test", rt.healthHandler.Ping)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.tokens, rt.logger))

			r.Get("/status", rt.healthHandler.Status)

			r.Route("/push", func(r chi.Router) {
				r.Post("/token", rt.pushHandler.RegisterToken)
				r.Get("/tokens", rt.pushHandler.ListTokens)
				r.Get("/tokens/info", rt.pushHandler.TokenInfo)
				r.Post("/send", rt.pushHandler.Send)
				r.Post("/test", rt.pushHandler.Test)
			})

			r.Get("/logs", rt.pushHandler.Logs)
			if rt.auditHub != nil {
				r.Get("/logs/stream", rt.auditHub.ServeWS)
			}
		})
	})

	if rt.opts.Metrics != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.tokens, rt.logger))
			r.Method(http.MethodGet, "/metrics", rt.opts.Metrics)
		})
	}

	return r
}
