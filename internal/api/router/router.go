package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/lead-qualifier/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/lead-qualifier/internal/http/middleware"
	"github.com/wolfman30/lead-qualifier/internal/leads"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	MessagesHandler      *handlers.MessagesHandler
	ConversationsHandler *handlers.ConversationsHandler
	LeadsHandler         *leads.Handler
	MetricsHandler       http.Handler

	// AdminAuthSecret enables HMAC JWT auth on /admin. Empty leaves /admin open.
	AdminAuthSecret string

	// RateLimiter throttles /v1/messages per client IP when set.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", handlers.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.MessagesHandler != nil {
		r.Route("/v1", func(v1 chi.Router) {
			if cfg.RateLimiter != nil {
				v1.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			v1.Post("/messages", cfg.MessagesHandler.Post)
		})
	}

	r.Route("/admin", func(admin chi.Router) {
		if cfg.AdminAuthSecret != "" {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		}
		if cfg.ConversationsHandler != nil {
			admin.Route("/conversations/{sender}", func(c chi.Router) {
				c.Get("/", cfg.ConversationsHandler.GetStatus)
				c.Delete("/", cfg.ConversationsHandler.Reset)
				c.Get("/archive", cfg.ConversationsHandler.ListArchived)
			})
		}
		if cfg.LeadsHandler != nil {
			admin.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
		}
	})

	return r
}
