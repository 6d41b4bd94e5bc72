package billing

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Sweeper is the time-based counterpart of reconciliation: it closes
// subscription windows that lapsed and fails checkouts that were never
// completed, keeping ledger growth bounded.
type Sweeper struct {
	store      SubscriptionStore
	log        *slog.Logger
	interval   time.Duration
	pendingTTL time.Duration
	now        func() time.Time
}

// NewSweeper returns a Sweeper running every interval; pending entries
// older than pendingTTL are failed with reason checkout_expired.
func NewSweeper(store SubscriptionStore, log *slog.Logger, interval, pendingTTL time.Duration) *Sweeper {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sweeper{
		store:      store,
		log:        log,
		interval:   interval,
		pendingTTL: pendingTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks sweeping until ctx is cancelled. One sweep runs immediately
// so a restarted service does not wait a full interval to catch up.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep executes one pass. Failures are logged, not returned: the next
// tick retries and a broken sweep must not stop the loop.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	expired, err := s.store.ExpireLapsed(ctx, now)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to expire lapsed subscriptions", "error", err)
	} else if expired > 0 {
		s.log.InfoContext(ctx, "expired lapsed subscriptions", "count", expired)
	}

	failed, err := s.store.FailStalePending(ctx, now.Add(-s.pendingTTL))
	if err != nil {
		s.log.ErrorContext(ctx, "failed to close stale pending checkouts", "error", err)
	} else if failed > 0 {
		s.log.InfoContext(ctx, "closed stale pending checkouts", "count", failed)
	}
}
