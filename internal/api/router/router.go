// Package router assembles the HTTP surface of the booking platform.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avalon-labs/booking-ai-platform/internal/conversation"
	"github.com/avalon-labs/booking-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/avalon-labs/booking-ai-platform/internal/http/middleware"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	AdminBookings       *handlers.AdminBookingsHandler
	MetricsHandler      http.Handler
	AdminAuthSecret     string
	CORSAllowedOrigins  []string

	// RateLimitPerSecond throttles the public conversation endpoints per IP.
	// Zero disables throttling.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		if cfg.ConversationHandler != nil {
			public.Route("/api/conversation", func(api chi.Router) {
				if cfg.RateLimitPerSecond > 0 {
					api.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
				}
				api.Post("/message", cfg.ConversationHandler.Message)
				api.Post("/clear", cfg.ConversationHandler.Clear)
				api.Get("/history", cfg.ConversationHandler.History)
			})
		}
	})

	// Admin endpoints, JWT-protected.
	if cfg.AdminBookings != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/bookings", cfg.AdminBookings.List)
			admin.Get("/bookings/{bookingID}", cfg.AdminBookings.Get)
			admin.Post("/bookings/{bookingID}/cancel", cfg.AdminBookings.Cancel)
			admin.Get("/availability", cfg.AdminBookings.Availability)
		})
	}

	return r
}
