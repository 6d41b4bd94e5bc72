package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/heartlink/billing/internal/billing"
	"github.com/heartlink/billing/pkg/ratelimiter"
)

// maxWebhookBody bounds how much of a webhook payload is read; Paystack
// events are a few KB.
const maxWebhookBody = 1 << 20

type handlers struct {
	svc      *billing.Service
	provider billing.PaymentProvider
	limiter  *ratelimiter.Bucket
	log      *slog.Logger
	cfg      Config
	health   func(context.Context) error
}

type planView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tier        string `json:"tier"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	PeriodDays  int    `json:"period_days"`
}

func (h *handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.svc.Plans()
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Tier:        p.Tier,
			Price:       p.Price,
			Currency:    p.Currency,
			PeriodDays:  p.PeriodDays,
		})
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *handlers) createSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	var req struct {
		PlanID      string `json:"plan_id"`
		Email       string `json:"email"`
		CountryCode string `json:"country_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.PlanID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "plan_id is required")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "invalid_request", "a valid email is required")
		return
	}

	intent, err := h.svc.Subscribe(r.Context(), billing.SubscribeRequest{
		UserID:  userID,
		PlanID:  req.PlanID,
		Email:   req.Email,
		Country: req.CountryCode,
	})
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrPlanNotFound):
		respondError(w, http.StatusNotFound, "plan_not_found", "plan does not exist")
		return
	case errors.Is(err, billing.ErrPlanInactive):
		respondError(w, http.StatusUnprocessableEntity, "plan_inactive", "plan is not open for new subscriptions")
		return
	case errors.Is(err, billing.ErrUnknownUser):
		respondError(w, http.StatusNotFound, "user_not_found", "account no longer exists")
		return
	case errors.Is(err, billing.ErrInvalidChargeRequest):
		respondError(w, http.StatusUnprocessableEntity, "invalid_charge", "payment gateway rejected the charge")
		return
	case errors.Is(err, billing.ErrGatewayUnavailable):
		respondError(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway is unavailable, try again")
		return
	default:
		h.log.ErrorContext(r.Context(), "subscription creation failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"subscription_id":   intent.SubscriptionID.String(),
		"reference":         intent.Reference,
		"authorization_url": intent.AuthorizationURL,
	})
}

// callback is the browser's return path from the hosted checkout. It runs
// outside any authenticated session: the reference alone identifies the
// attempt. It always ends in a redirect.
func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		// Paystack sends trxref alongside reference; accept either.
		reference = r.URL.Query().Get("trxref")
	}
	if reference == "" {
		h.redirect(w, r, h.cfg.FailureURL, "")
		return
	}

	outcome, err := h.svc.Reconcile(r.Context(), reference)
	if err != nil {
		if errors.Is(err, billing.ErrGatewayUnavailable) {
			// Settlement unknown, not failed; the pending page keeps polling.
			h.redirect(w, r, h.cfg.PendingURL, reference)
			return
		}
		h.log.WarnContext(r.Context(), "callback reconciliation failed", "reference", reference, "error", err)
		h.redirect(w, r, h.cfg.FailureURL, reference)
		return
	}

	switch outcome {
	case billing.OutcomeActivated, billing.OutcomeAlreadyActive:
		h.redirect(w, r, h.cfg.SuccessURL, reference)
	case billing.OutcomePending:
		h.redirect(w, r, h.cfg.PendingURL, reference)
	default:
		h.redirect(w, r, h.cfg.FailureURL, reference)
	}
}

// webhook is the provider's server-to-server notification. Authenticity
// comes first: an unsigned or mis-signed payload is dropped before any
// of its contents are read. An authentic webhook always gets 200 so the
// provider stops redelivering.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}

	signature := r.Header.Get("x-paystack-signature")
	if err := h.provider.VerifyWebhookSignature(payload, signature); err != nil {
		h.log.WarnContext(r.Context(), "webhook signature rejected", "error", err)
		respondError(w, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
		return
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil || event.Data.Reference == "" {
		// Authentic but not something we act on.
		w.WriteHeader(http.StatusOK)
		return
	}

	if strings.HasPrefix(event.Event, "charge.") {
		outcome, err := h.svc.Reconcile(r.Context(), event.Data.Reference)
		if err != nil {
			// Still 200: redelivery would hit the same condition, and any
			// other entry point can finish the reconciliation later.
			h.log.WarnContext(r.Context(), "webhook reconciliation failed",
				"event", event.Event, "reference", event.Data.Reference, "error", err)
		} else {
			h.log.InfoContext(r.Context(), "webhook reconciled",
				"event", event.Event, "reference", event.Data.Reference, "outcome", string(outcome))
		}
	}

	w.WriteHeader(http.StatusOK)
}

// verifySubscription is the authenticated poll endpoint. Ownership is
// checked before anything about the ledger entry is revealed.
func (h *handlers) verifySubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	var req struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reference == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "reference is required")
		return
	}

	if err := h.svc.OwnsReference(userID, req.Reference); err != nil {
		if errors.Is(err, billing.ErrInvalidReference) {
			respondError(w, http.StatusBadRequest, "invalid_reference", "reference is not valid")
			return
		}
		respondError(w, http.StatusForbidden, "forbidden", "reference belongs to another account")
		return
	}

	if h.limiter != nil {
		result, err := h.limiter.Allow(r.Context(), "verify:"+req.Reference)
		if err == nil && !result.Allowed() {
			if retryAfter := int(result.RetryAfter().Seconds()); retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
			respondError(w, http.StatusTooManyRequests, "rate_limited", "polling too fast, slow down")
			return
		}
	}

	outcome, err := h.svc.Reconcile(r.Context(), req.Reference)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrSubscriptionNotFound):
		respondError(w, http.StatusNotFound, "subscription_not_found", "no subscription for reference")
		return
	case errors.Is(err, billing.ErrGatewayUnavailable):
		respondError(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway is unavailable, try again")
		return
	default:
		h.log.ErrorContext(r.Context(), "verification failed", "reference", req.Reference, "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

// redirect sends the browser to base, tagging the reference so the
// landing page can resume polling or show a receipt.
func (h *handlers) redirect(w http.ResponseWriter, r *http.Request, base, reference string) {
	target := base
	if reference != "" {
		if u, err := url.Parse(base); err == nil {
			q := u.Query()
			q.Set("reference", reference)
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}
