package queue

import (
	"context"
	"errors"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

// ErrNotFound is returned by Renew/Fail when the lease doesn't match any
// currently-leased row. Complete returns nil for an unknown lease.
var ErrNotFound = errors.New("queue: lease not found")

// Store is the persistence seam Queue drives. MemoryStore and
// PostgresStore both satisfy it and each implements the job state machine
// itself; Queue adds no logic of its own beyond supplying the clock.
type Store interface {
	// Enqueue performs the full dedupe/insert/elevate decision in one
	// atomic unit and returns the resulting job id and acceptance flag.
	Enqueue(ctx context.Context, req EnqueueRequest, now func() time.Time) (EnqueueResult, error)

	// Dequeue atomically selects and leases the next eligible Ready row
	// for kind, or returns (nil, nil) if none is available.
	Dequeue(ctx context.Context, req DequeueRequest, now func() time.Time) (*Lease, error)

	// Renew extends an active lease matched by (lease_id, worker_id).
	Renew(ctx context.Context, req RenewRequest, now func() time.Time) (Lease, error)

	// Complete marks a leased job Completed. Idempotent.
	Complete(ctx context.Context, leaseID ids.LeaseID) error

	// Fail transitions a leased job back to Ready (with backoff) or to
	// DeadLetter, per spec.md §4.4.5.
	Fail(ctx context.Context, leaseID ids.LeaseID, retryable bool, errMsg string, now func() time.Time) error

	// ReapExpiredLeases transitions every Leased row whose lease has
	// expired back to Ready (or DeadLetter past MaxAttempts) and returns
	// the count restored to Ready.
	ReapExpiredLeases(ctx context.Context, now func() time.Time) (int, error)

	// MetricsSnapshot reports per-state counts without mutating anything.
	MetricsSnapshot(ctx context.Context) (MetricsSnapshot, error)
}
