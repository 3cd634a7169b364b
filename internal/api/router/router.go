package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/teletherapy-platform/internal/auth"
	"github.com/wolfman30/teletherapy-platform/internal/availability"
	"github.com/wolfman30/teletherapy-platform/internal/booking"
	"github.com/wolfman30/teletherapy-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/teletherapy-platform/internal/http/middleware"
	"github.com/wolfman30/teletherapy-platform/internal/payments"
	"github.com/wolfman30/teletherapy-platform/internal/slots"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	MetricsHandler     http.Handler
	HealthCheck        http.HandlerFunc

	Availability   *availability.Handler
	Slots          *slots.Handler
	Booking        *booking.Handler
	StripeWebhook  *payments.StripeWebhookHandler
	Reconciliation *handlers.AdminReconciliationHandler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		health := cfg.HealthCheck
		if health == nil {
			health = healthOK
		}
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
	})

	// Authenticated API
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.Authenticate(cfg.JWTSecret))
		if cfg.RateLimitRPS > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}

		if cfg.Availability != nil {
			api.Route("/availability", func(r chi.Router) {
				r.Use(httpmiddleware.RequireRole(auth.RoleCounselor))
				r.Get("/", cfg.Availability.GetWeek)
				r.Post("/", cfg.Availability.Set)
			})
		}
		if cfg.Slots != nil {
			api.Get("/sessions/available", cfg.Slots.Available)
		}
		if cfg.Booking != nil {
			api.With(httpmiddleware.RequireRole(auth.RolePatient)).Post("/booking", cfg.Booking.Book)
			api.With(httpmiddleware.RequireRole(auth.RolePatient, auth.RoleAdmin)).Post("/payment/intent", cfg.Booking.CreateIntent)
			api.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", cfg.Booking.GetSession)
				r.Post("/meeting", cfg.Booking.ProvisionMeeting)
				r.With(httpmiddleware.RequireRole(auth.RoleCounselor, auth.RoleAdmin)).Put("/meeting", cfg.Booking.RescheduleMeeting)
			})
			api.With(httpmiddleware.RequireRole(auth.RoleCounselor, auth.RoleAdmin)).Delete("/meetings/{meetingId}", cfg.Booking.DeleteMeeting)
		}
		if cfg.Reconciliation != nil {
			api.Route("/admin", func(admin chi.Router) {
				admin.Use(httpmiddleware.RequireRole(auth.RoleAdmin))
				admin.Get("/reconciliation/unpaid", cfg.Reconciliation.ListUnpaid)
			})
		}
	})

	return r
}

func healthOK(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
