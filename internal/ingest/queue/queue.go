package queue

import (
	"context"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

// Queue is the public surface the orchestrator and cmd/mediaforge's
// workers bind to.
// It adds nothing over Store except a fixed clock source, so callers
// never have to thread `now` through every call.
type Queue struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// NewWithClock is used by tests that need a controllable clock.
func NewWithClock(store Store, now func() time.Time) *Queue {
	return &Queue{store: store, now: now}
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	return q.store.Enqueue(ctx, req, q.now)
}

func (q *Queue) Dequeue(ctx context.Context, req DequeueRequest) (*Lease, error) {
	return q.store.Dequeue(ctx, req, q.now)
}

func (q *Queue) Renew(ctx context.Context, req RenewRequest) (Lease, error) {
	return q.store.Renew(ctx, req, q.now)
}

func (q *Queue) Complete(ctx context.Context, leaseID ids.LeaseID) error {
	return q.store.Complete(ctx, leaseID)
}

func (q *Queue) Fail(ctx context.Context, leaseID ids.LeaseID, retryable bool, errMsg string) error {
	return q.store.Fail(ctx, leaseID, retryable, errMsg, q.now)
}

// RunReaper reaps expired leases once and returns the number resurrected
// to Ready. Callers typically drive this from a time.Ticker.
func (q *Queue) RunReaper(ctx context.Context) (int, error) {
	return q.store.ReapExpiredLeases(ctx, q.now)
}

func (q *Queue) MetricsSnapshot(ctx context.Context) (MetricsSnapshot, error) {
	return q.store.MetricsSnapshot(ctx)
}

// StartReaper runs RunReaper on interval until ctx is cancelled, mirroring
// the teacher's internal/scheduler.Scheduler ticker+stop-channel shape.
func (q *Queue) StartReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.RunReaper(ctx)
			}
		}
	}()
}
