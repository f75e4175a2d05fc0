package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	// AllowedOrigins enables CORS for the listed origins. Empty means same-origin only.
	AllowedOrigins []string
	RequestTimeout time.Duration
	// TrustProxyHeaders rewrites RemoteAddr from X-Real-IP / X-Forwarded-For.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// NewRouter wires the public routes. protect may be nil, which disables rate
// limiting and bot detection.
func NewRouter(h *Handler, protect *Protector, opts RouterOptions, logger *slog.Logger) *chi.Mux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	if len(opts.AllowedOrigins) > 0 {
		// Auth is a bearer header, so cookies are never needed cross-origin.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Link", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Welcome to the Subscription Tracker API"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if protect != nil {
			r.Use(protect.Middleware)
		}

		r.Post("/auth/sign-up", h.signUp)
		r.Post("/auth/sign-in", h.signIn)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.tokens, h.users, logger))

			r.Get("/users/{id}", h.getUser)

			r.Post("/subscriptions", h.createSubscription)
			r.Get("/subscriptions/upcoming-renewals", h.upcomingRenewals)
			r.Get("/subscriptions/user/{id}", h.listUserSubscriptions)
			r.Get("/subscriptions/{id}", h.getSubscription)
			r.Put("/subscriptions/{id}/cancel", h.cancelSubscription)
			r.Delete("/subscriptions/{id}", h.deleteSubscription)

			r.Post("/workflows/subscription/reminder", h.triggerReminder)
			r.Get("/workflows/runs/{id}", h.getRun)
		})
	})

	return r
}
