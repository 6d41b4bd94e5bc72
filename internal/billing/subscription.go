package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a ledger entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// Failure reasons recorded on the ledger for audit.
const (
	FailureGatewayInit     = "gateway_init_failed"
	FailureDeclined        = "declined"
	FailureAbandoned       = "abandoned"
	FailureAmountMismatch  = "amount_mismatch"
	FailureCheckoutExpired = "checkout_expired"
)

// validTransitions is the full set of allowed status changes. Active and
// failed are terminal for reconciliation; only the time-based sweep moves
// active entries onward to expired.
var validTransitions = map[[2]Status]bool{
	{StatusPending, StatusActive}: true,
	{StatusPending, StatusFailed}: true,
	{StatusActive, StatusExpired}: true,
}

// CanTransition reports whether a ledger entry may move from one status
// to another.
func CanTransition(from, to Status) bool {
	return validTransitions[[2]Status{from, to}]
}

// Subscription is one ledger entry: a single checkout attempt and its
// outcome. Entries are never deleted; superseded and failed attempts are
// retained for audit.
type Subscription struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	PlanID        string
	Amount        int64 // minor currency units, fixed at creation
	Currency      string
	Reference     string // unique across all entries
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	ActivatedAt   *time.Time
	ExpiresAt     *time.Time
}

// IsSettled reports whether reconciliation has nothing left to do.
func (s *Subscription) IsSettled() bool {
	return s.Status != StatusPending
}

// Entitlement is the subscription-related slice of a user record that
// gates paid features. It is written only by the activation transaction
// and the expiry sweep, never directly by request handlers.
type Entitlement struct {
	UserID     uuid.UUID
	Subscribed bool
	Tier       string
	ExpiresAt  *time.Time
}
