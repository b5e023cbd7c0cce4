package api

import (
	"time"

	"burnbox.dev/config"
	"burnbox.dev/internal/ratelimit"
	"burnbox.dev/internal/secrets"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(svc *secrets.Service, cfg *config.Config, trigger ratelimit.Trigger) *chi.Mux {
	h := NewHandler(svc, cfg, trigger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(CORS(CORSConfig{
		AllowedOrigins: []string{"127.0.0.1"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	// Health
	r.Get("/health", h.Health)

	// API routes; per-action throttling happens inside the service, not
	// here, so every entry point shares the same counters.
	r.Route("/api", func(r chi.Router) {
		r.Use(JSONOnly)

		r.Route("/secrets", func(r chi.Router) {
			r.Post("/", h.CreateSecret)
			r.Get("/{id}", h.RevealSecret)
			r.Get("/{id}/status", h.GetStatus)
		})
	})

	return r
}
