// Package queue implements the persistent job queue at the heart of the
// ingestion core: a single table holding the job state machine, row-level
// leases, deterministic dedupe, and a reaper for expired leases.
//
// Grounded directly on spec.md §4.4 (no original_source equivalent — the
// Rust side drove scans from an in-process scheduler, not a persisted
// queue); the SQL shape follows the same idiom as folder_inventory.rs's
// upsert (ON CONFLICT, UPDATE ... RETURNING).
package queue

import (
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

// State is a job's position in the queue state machine (spec.md §4.4.8).
type State string

const (
	StateReady      State = "ready"
	StateDeferred   State = "deferred"
	StateLeased     State = "leased"
	StateCompleted  State = "completed"
	StateDeadLetter State = "dead_letter"
)

// MaxAttempts caps retries before a job is dead-lettered. Overridable at
// startup from config.QueueConfig.MaxAttempts (queue.max_attempts).
var MaxAttempts = 10

// BackoffCap is the upper bound on the exponential backoff delay.
// Overridable at startup from config.QueueConfig.BackoffCapS
// (queue.backoff_cap_s).
var BackoffCap = 120 * time.Second

// Job is a persisted row in orchestrator_jobs.
type Job struct {
	ID             ids.JobID
	Kind           string
	DedupeKey      string
	Priority       int
	Payload        []byte
	State          State
	Attempts       int
	AvailableAt    time.Time
	LeaseID        *ids.LeaseID
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	Renewals       int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EnqueueRequest is the input to Enqueue.
type EnqueueRequest struct {
	Kind      string
	DedupeKey string
	Priority  int
	Payload   []byte
}

// EnqueueResult reports whether a fresh row was created or an existing
// active job was matched (and possibly elevated).
type EnqueueResult struct {
	JobID    ids.JobID
	Accepted bool
}

// DequeueRequest selects the next job to lease.
type DequeueRequest struct {
	Kind     string
	WorkerID string
	LeaseTTL time.Duration
}

// Lease is the bundle returned by a successful Dequeue/Renew.
type Lease struct {
	JobID          ids.JobID
	LeaseID        ids.LeaseID
	Kind           string
	Payload        []byte
	Attempts       int
	LeaseExpiresAt time.Time
}

// RenewRequest extends an existing lease.
type RenewRequest struct {
	LeaseID  ids.LeaseID
	WorkerID string
	ExtendBy time.Duration
}

// MetricsSnapshot reports per-state counts (spec.md §4.4.7).
type MetricsSnapshot struct {
	Ready      int
	Deferred   int
	Leased     int
	Completed  int
	DeadLetter int
}
