package billing

import (
	"context"
	"time"
)

// SettlementStatus is the gateway's normalized verdict on a transaction.
type SettlementStatus string

const (
	SettlementSuccess   SettlementStatus = "success"
	SettlementFailed    SettlementStatus = "failed"
	SettlementAbandoned SettlementStatus = "abandoned"
	SettlementPending   SettlementStatus = "pending"
)

// InitializeRequest describes the checkout transaction to create at the
// gateway.
type InitializeRequest struct {
	Reference   string
	Amount      int64 // minor currency units
	Currency    string
	Email       string
	CallbackURL string
	Metadata    map[string]string
}

// Checkout is the hosted payment page the client gets redirected to.
type Checkout struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerificationResult is the gateway's settlement report for a reference.
// Transient; only the reconciliation routine consumes it.
type VerificationResult struct {
	Reference  string
	Status     SettlementStatus
	AmountPaid int64
	Currency   string
	PaidAt     *time.Time
}

// PaymentProvider is the translation layer to the external payment
// gateway. Implementations must have no side effects beyond the outbound
// network call; any substitute provider has to honor this contract for
// the reconciliation workflow to stay correct.
//
// Initialize fails with ErrInvalidChargeRequest on malformed input and
// ErrGatewayUnavailable on network errors, timeouts, or provider 5xx.
// Verify fails with ErrReferenceNotFound when the provider has no record
// of the reference and ErrGatewayUnavailable on transient errors, which
// the caller retries with backoff.
type PaymentProvider interface {
	Initialize(ctx context.Context, req InitializeRequest) (*Checkout, error)
	Verify(ctx context.Context, reference string) (*VerificationResult, error)

	// VerifyWebhookSignature authenticates a raw webhook payload before
	// any of its contents are trusted. Returns ErrInvalidSignature on
	// mismatch.
	VerifyWebhookSignature(payload []byte, signature string) error
}
