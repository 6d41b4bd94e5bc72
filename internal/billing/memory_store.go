package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory SubscriptionStore. It mirrors the pg
// store's conditional-update semantics so workflow tests exercise the
// same race behavior the production store has.
type MemoryStore struct {
	mu           sync.Mutex
	byReference  map[string]*Subscription
	entitlements map[uuid.UUID]*Entitlement
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byReference:  make(map[string]*Subscription),
		entitlements: make(map[uuid.UUID]*Entitlement),
	}
}

func (m *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byReference[sub.Reference]; exists {
		return ErrReferenceTaken
	}
	cp := *sub
	m.byReference[sub.Reference] = &cp
	return nil
}

func (m *MemoryStore) GetByReference(_ context.Context, reference string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.byReference[reference]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, reference, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.byReference[reference]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if !CanTransition(sub.Status, StatusFailed) {
		return nil
	}
	sub.Status = StatusFailed
	sub.FailureReason = reason
	return nil
}

func (m *MemoryStore) Activate(_ context.Context, reference string, act Activation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.byReference[reference]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if sub.Status != StatusPending {
		return false, nil
	}

	activatedAt := act.ActivatedAt
	expiresAt := act.ExpiresAt
	sub.Status = StatusActive
	sub.ActivatedAt = &activatedAt
	sub.ExpiresAt = &expiresAt

	m.entitlements[sub.UserID] = &Entitlement{
		UserID:     sub.UserID,
		Subscribed: true,
		Tier:       act.Tier,
		ExpiresAt:  &expiresAt,
	}
	return true, nil
}

func (m *MemoryStore) GetEntitlement(_ context.Context, userID uuid.UUID) (*Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ent, ok := m.entitlements[userID]; ok {
		cp := *ent
		return &cp, nil
	}
	return &Entitlement{UserID: userID}, nil
}

func (m *MemoryStore) ExpireLapsed(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	lapsedUsers := make(map[uuid.UUID]struct{})
	for _, sub := range m.byReference {
		if sub.Status == StatusActive && sub.ExpiresAt != nil && !sub.ExpiresAt.After(now) {
			sub.Status = StatusExpired
			lapsedUsers[sub.UserID] = struct{}{}
			count++
		}
	}

	for userID := range lapsedUsers {
		if m.hasActiveLocked(userID) {
			continue
		}
		m.entitlements[userID] = &Entitlement{UserID: userID}
	}
	return count, nil
}

func (m *MemoryStore) FailStalePending(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, sub := range m.byReference {
		if sub.Status == StatusPending && sub.CreatedAt.Before(cutoff) {
			sub.Status = StatusFailed
			sub.FailureReason = FailureCheckoutExpired
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) hasActiveLocked(userID uuid.UUID) bool {
	for _, sub := range m.byReference {
		if sub.UserID == userID && sub.Status == StatusActive {
			return true
		}
	}
	return false
}
