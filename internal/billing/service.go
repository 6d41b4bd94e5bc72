package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal report of one reconciliation call. All values
// are expected workflow results, not errors; pollers stop on anything
// except OutcomePending.
type Outcome string

const (
	OutcomeActivated     Outcome = "activated"
	OutcomeAlreadyActive Outcome = "already_active"
	OutcomeRejected      Outcome = "rejected"
	OutcomePending       Outcome = "pending"
)

// CheckoutIntent is what the client needs to complete payment.
type CheckoutIntent struct {
	SubscriptionID   uuid.UUID
	Reference        string
	AuthorizationURL string
}

// PriceResolver lets deployments adjust the charged price per request,
// e.g. country-specific pricing. The default charges the plan price.
type PriceResolver func(ctx context.Context, plan Plan, country string) (amount int64, currency string)

// Config holds workflow settings.
type Config struct {
	ReferenceSecret string        `env:"BILLING_REFERENCE_SECRET,required"`
	CallbackURL     string        `env:"BILLING_CALLBACK_URL,required"`
	PlansPath       string        `env:"BILLING_PLANS_PATH" envDefault:"configs/plans.yaml"`
	SweepInterval   time.Duration `env:"BILLING_SWEEP_INTERVAL" envDefault:"10m"`
	PendingTTL      time.Duration `env:"BILLING_PENDING_TTL" envDefault:"24h"`
}

// Service orchestrates checkout creation and payment reconciliation.
// Reconcile is the single convergence point for the redirect callback,
// the provider webhook, and client polling.
type Service struct {
	catalog  *Catalog
	provider PaymentProvider
	store    SubscriptionStore
	log      *slog.Logger

	secret      string
	callbackURL string

	resolvePrice   PriceResolver
	verifyAttempts int
	verifyBackoff  time.Duration
	now            func() time.Time
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithPriceResolver overrides the default plan-price resolution.
func WithPriceResolver(r PriceResolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolvePrice = r
		}
	}
}

// WithVerifyRetry tunes the retry budget for transient gateway failures
// during verification.
func WithVerifyRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.verifyAttempts = attempts
		}
		if backoff > 0 {
			s.verifyBackoff = backoff
		}
	}
}

// WithClock fixes the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService panics on nil required dependencies to fail fast at startup.
func NewService(catalog *Catalog, provider PaymentProvider, store SubscriptionStore, cfg Config, log *slog.Logger, opts ...Option) *Service {
	if catalog == nil {
		panic("billing: catalog is required")
	}
	if provider == nil {
		panic("billing: payment provider is required")
	}
	if store == nil {
		panic("billing: subscription store is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Service{
		catalog:     catalog,
		provider:    provider,
		store:       store,
		log:         log,
		secret:      cfg.ReferenceSecret,
		callbackURL: cfg.CallbackURL,
		resolvePrice: func(_ context.Context, plan Plan, _ string) (int64, string) {
			return plan.Price, plan.Currency
		},
		verifyAttempts: 3,
		verifyBackoff:  500 * time.Millisecond,
		now:            func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plans returns the active plan catalog.
func (s *Service) Plans() []Plan {
	return s.catalog.List()
}

// OwnsReference reports whether userID is the user embedded in reference.
// Returns ErrInvalidReference for unparseable references and ErrNotOwner
// on mismatch, revealing nothing about the ledger entry either way.
func (s *Service) OwnsReference(userID uuid.UUID, reference string) error {
	claims, err := ParseReference(reference, s.secret)
	if err != nil {
		return err
	}
	if claims.UserID != userID {
		return ErrNotOwner
	}
	return nil
}

// SubscribeRequest carries the caller's checkout parameters. Country is
// an optional ISO 3166-1 alpha-2 code consumed by the price resolver.
type SubscribeRequest struct {
	UserID  uuid.UUID
	PlanID  string
	Email   string
	Country string
}

// Subscribe creates a pending ledger entry and a gateway checkout for it.
// If gateway initialization fails, the entry is marked failed before the
// error is returned so nothing dangles in pending.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (*CheckoutIntent, error) {
	plan, err := s.catalog.Get(req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanInactive
	}

	amount, currency := s.resolvePrice(ctx, plan, req.Country)

	reference, err := MintReference(req.UserID, req.PlanID, s.secret)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:        uuid.New(),
		UserID:    req.UserID,
		PlanID:    req.PlanID,
		Amount:    amount,
		Currency:  currency,
		Reference: reference,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	checkout, err := s.provider.Initialize(ctx, InitializeRequest{
		Reference:   reference,
		Amount:      amount,
		Currency:    currency,
		Email:       req.Email,
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"user_id": req.UserID.String(),
			"plan_id": req.PlanID,
		},
	})
	if err != nil {
		if markErr := s.store.MarkFailed(ctx, reference, FailureGatewayInit); markErr != nil {
			s.log.ErrorContext(ctx, "failed to mark ledger entry after init failure",
				"reference", reference, "error", markErr)
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "checkout created",
		"subscription_id", sub.ID, "user_id", req.UserID, "plan_id", req.PlanID, "reference", reference)

	return &CheckoutIntent{
		SubscriptionID:   sub.ID,
		Reference:        reference,
		AuthorizationURL: checkout.AuthorizationURL,
	}, nil
}

// Reconcile confirms settlement for a reference and activates entitlement
// exactly once. It is idempotent on ledger status: concurrent calls for
// the same reference race on the store's conditional pending -> active
// update, one wins and the rest observe the settled state.
func (s *Service) Reconcile(ctx context.Context, reference string) (Outcome, error) {
	sub, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return "", err
	}

	switch sub.Status {
	case StatusActive:
		return OutcomeAlreadyActive, nil
	case StatusFailed, StatusExpired:
		return OutcomeRejected, nil
	}

	result, err := s.verifyWithRetry(ctx, reference)
	if err != nil {
		// Ledger stays pending; any entry point may retry later.
		return "", err
	}

	switch result.Status {
	case SettlementSuccess:
		if result.AmountPaid != sub.Amount {
			// Never activate on a mismatched amount; keep the entry for
			// manual audit.
			s.log.ErrorContext(ctx, "settled amount does not match ledger",
				"reference", reference, "expected", sub.Amount, "paid", result.AmountPaid)
			if err := s.store.MarkFailed(ctx, reference, FailureAmountMismatch); err != nil {
				return "", err
			}
			return OutcomeRejected, nil
		}
		return s.activate(ctx, sub)

	case SettlementFailed:
		if err := s.store.MarkFailed(ctx, reference, FailureDeclined); err != nil {
			return "", err
		}
		return OutcomeRejected, nil

	case SettlementAbandoned:
		if err := s.store.MarkFailed(ctx, reference, FailureAbandoned); err != nil {
			return "", err
		}
		return OutcomeRejected, nil

	default:
		// Not yet settled at the provider; the poller should come back.
		return OutcomePending, nil
	}
}

func (s *Service) activate(ctx context.Context, sub *Subscription) (Outcome, error) {
	plan, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return "", err
	}

	now := s.now()
	activated, err := s.store.Activate(ctx, sub.Reference, Activation{
		Tier:        plan.Tier,
		ActivatedAt: now,
		ExpiresAt:   now.AddDate(0, 0, plan.PeriodDays),
	})
	if err != nil {
		return "", err
	}
	if !activated {
		// Lost the race: another entry point settled this reference
		// between our status read and the conditional update.
		current, err := s.store.GetByReference(ctx, sub.Reference)
		if err != nil {
			return "", err
		}
		if current.Status == StatusActive {
			return OutcomeAlreadyActive, nil
		}
		return OutcomeRejected, nil
	}

	s.log.InfoContext(ctx, "subscription activated",
		"reference", sub.Reference, "user_id", sub.UserID, "plan_id", sub.PlanID)
	return OutcomeActivated, nil
}

// verifyWithRetry retries transient gateway failures with doubling pauses
// before giving up. Permanent errors surface immediately.
func (s *Service) verifyWithRetry(ctx context.Context, reference string) (*VerificationResult, error) {
	backoff := s.verifyBackoff

	var lastErr error
	for attempt := 0; attempt < s.verifyAttempts; attempt++ {
		result, err := s.provider.Verify(ctx, reference)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrGatewayUnavailable) {
			return nil, err
		}
		lastErr = err

		if attempt == s.verifyAttempts-1 {
			break
		}
		s.log.WarnContext(ctx, "gateway verification failed, retrying",
			"reference", reference, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrGatewayUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, lastErr
}
