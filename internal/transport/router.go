// Package transport exposes the billing workflow over HTTP.
package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/heartlink/billing/internal/billing"
	"github.com/heartlink/billing/pkg/ratelimiter"
)

// Config holds transport settings. The three redirect URLs are where the
// browser lands after checkout; the callback endpoint always redirects to
// one of them, never renders an error page.
type Config struct {
	AuthSecret string `env:"AUTH_TOKEN_SECRET,required"`
	SuccessURL string `env:"BILLING_SUCCESS_URL,required"`
	FailureURL string `env:"BILLING_FAILURE_URL,required"`
	PendingURL string `env:"BILLING_PENDING_URL,required"`
}

// Options carries the collaborators the router mounts.
type Options struct {
	Service  *billing.Service
	Provider billing.PaymentProvider
	Limiter  *ratelimiter.Bucket // nil disables poll rate limiting
	Log      *slog.Logger
	Health   func(context.Context) error // nil disables readiness probing
}

// Router assembles the HTTP surface.
func Router(cfg Config, opts Options) chi.Router {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &handlers{
		svc:      opts.Service,
		provider: opts.Provider,
		limiter:  opts.Limiter,
		log:      log,
		cfg:      cfg,
		health:   opts.Health,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.healthcheck)
	r.Get("/plans", h.listPlans)
	r.Get("/subscriptions/callback", h.callback)
	r.Post("/payments/webhook", h.webhook)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.AuthSecret))
		r.Post("/subscriptions", h.createSubscription)
		r.Post("/subscriptions/verify", h.verifySubscription)
	})

	return r
}

// healthcheck reports readiness; wired to the database probe in main.
func (h *handlers) healthcheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
