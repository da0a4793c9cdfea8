package router

import (
	"capture-relay-api/internal/handler"
	"capture-relay-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	CaptureHandler *handler.CaptureHandler
	AccountHandler *handler.AccountHandler
	AdminHandler   *handler.AdminHandler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC status route for uptime monitoring
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check endpoints
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		// Account + capture endpoints
		if cfg.AccountHandler != nil {
			r.Post("/accounts", cfg.AccountHandler.Register)
		}
		r.Route("/accounts/{account_id}", func(r chi.Router) {
			if cfg.AccountHandler != nil {
				r.Get("/", cfg.AccountHandler.Get)
			}
			if cfg.CaptureHandler != nil {
				r.Post("/images", cfg.CaptureHandler.Upload)
				r.Get("/images", cfg.CaptureHandler.List)
				r.Get("/images/{image_id}/content", cfg.CaptureHandler.Content)
				r.Get("/usage", cfg.CaptureHandler.Usage)
				r.Post("/grace-unlock", cfg.CaptureHandler.GraceUnlock)
			}
		})

		// Admin endpoints
		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Get("/stats", cfg.AdminHandler.GetStats)
				r.Get("/health", cfg.AdminHandler.GetHealth)
				r.Post("/sweep", cfg.AdminHandler.TriggerSweep)
			})
		}
	})

	return r
}
