package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Activation carries the values written when a pending entry becomes
// active. The ledger transition and the entitlement update happen in one
// transaction; they are never split.
type Activation struct {
	Tier        string
	ActivatedAt time.Time
	ExpiresAt   time.Time
}

// SubscriptionStore persists the ledger and the user entitlement fields.
//
// Activate is the mandatory mutual-exclusion point of the whole workflow:
// it must transition the entry from pending to active with a conditional
// (compare-and-set) update and apply the entitlement write in the same
// transaction. It returns false without error when the entry was not in
// pending state, which is how a losing racer learns it lost.
type SubscriptionStore interface {
	// Create inserts a new pending ledger entry.
	// Returns ErrReferenceTaken if the reference already exists.
	Create(ctx context.Context, sub *Subscription) error

	// GetByReference returns the ledger entry for a reference.
	// Returns ErrSubscriptionNotFound if absent.
	GetByReference(ctx context.Context, reference string) (*Subscription, error)

	// MarkFailed moves a pending entry to failed with an audit reason.
	// A no-op if the entry is no longer pending.
	MarkFailed(ctx context.Context, reference, reason string) error

	// Activate atomically moves a pending entry to active and updates the
	// owner's entitlement. Returns false if the entry was not pending.
	Activate(ctx context.Context, reference string, act Activation) (bool, error)

	// GetEntitlement returns the user's current entitlement fields.
	GetEntitlement(ctx context.Context, userID uuid.UUID) (*Entitlement, error)

	// ExpireLapsed moves active entries whose window has closed to
	// expired and clears entitlement for users left without an active
	// subscription. Returns the number of expired entries.
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)

	// FailStalePending fails pending entries created before cutoff so the
	// ledger cannot grow without bound. Returns the number failed.
	FailStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}
