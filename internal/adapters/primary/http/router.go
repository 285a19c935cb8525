package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/lorrc/notification-relay/internal/adapters/primary/http/middleware"
)

// RouterConfig holds the cross-cutting pieces of the HTTP surface.
type RouterConfig struct {
	Logger         *slog.Logger
	TokenValidator mw.TokenValidator
	// CORSAllowedOrigins enables CORS when non-empty.
	CORSAllowedOrigins []string
	// Limiters are optional.
	GeneralLimiter *mw.RateLimiter
	TicketLimiter  *mw.RateLimiter
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// Handlers groups the primary adapters mounted on the router.
type Handlers struct {
	Health    *HealthHandler
	Notify    *NotifyHandler
	Ticket    *WSTicketHandler
	WebSocket *WebSocketHandler
}

// NewRouter builds the relay's HTTP routes.
func NewRouter(cfg RouterConfig, h Handlers) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger, mw.DefaultSkipPaths...))
	r.Use(mw.RecoveryLogger(cfg.Logger))

	// Preflight requests are answered here, before routing rejects the OPTIONS method.
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", mw.RequestIDHeader},
			ExposedHeaders:   []string{mw.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health checks and metrics are not rate limited.
	h.Health.RegisterRoutes(r)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.GeneralLimiter != nil {
			r.Use(cfg.GeneralLimiter.Middleware)
		}

		// Authentication happens inside the connection via ticket
		r.Get("/ws", h.WebSocket.ServeHTTP)

		// Bearer-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(cfg.TokenValidator))

			h.Notify.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				if cfg.TicketLimiter != nil {
					r.Use(cfg.TicketLimiter.Middleware)
				}
				h.Ticket.RegisterRoutes(r)
			})
		})
	})

	return r
}
