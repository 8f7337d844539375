package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/lib/pq"
)

// PostgresStore is the Store backed by the orchestrator_jobs table, whose
// partial unique index on dedupe_key (restricted to the active-state set)
// enforces the dedupe invariant the in-memory store enforces with a mutex.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Enqueue runs the dedupe lookup and insert/elevate inside one
// transaction, retrying the elevation branch on a unique-violation race
// against a concurrent enqueuer (spec.md §4.4.1).
func (s *PostgresStore) Enqueue(ctx context.Context, req EnqueueRequest, now func() time.Time) (EnqueueResult, error) {
	for attempt := 0; attempt < 3; attempt++ {
		result, retry, err := s.tryEnqueue(ctx, req, now())
		if err != nil {
			return EnqueueResult{}, err
		}
		if !retry {
			return result, nil
		}
	}
	return EnqueueResult{}, errors.New("queue: enqueue contention exceeded retry budget")
}

func (s *PostgresStore) tryEnqueue(ctx context.Context, req EnqueueRequest, ts time.Time) (EnqueueResult, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return EnqueueResult{}, false, err
	}
	defer tx.Rollback()

	var existingID ids.JobID
	var existingPriority int
	var existingAvailableAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT id, priority, available_at FROM orchestrator_jobs
		WHERE dedupe_key = $1 AND state IN ('ready', 'deferred', 'leased')
		FOR UPDATE`, req.DedupeKey,
	).Scan(&existingID, &existingPriority, &existingAvailableAt)

	switch {
	case err == sql.ErrNoRows:
		jobID := ids.NewJobID()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orchestrator_jobs (id, kind, dedupe_key, priority, payload, state, available_at, attempts)
			VALUES ($1, $2, $3, $4, $5, 'ready', $6, 0)`,
			jobID, req.Kind, req.DedupeKey, req.Priority, req.Payload, ts)
		if isUniqueViolation(err) {
			return EnqueueResult{}, true, nil
		}
		if err != nil {
			return EnqueueResult{}, false, err
		}
		return EnqueueResult{JobID: jobID, Accepted: true}, false, tx.Commit()

	case err != nil:
		return EnqueueResult{}, false, err
	}

	if req.Priority < existingPriority {
		newAvailableAt := existingAvailableAt
		if existingAvailableAt.After(ts) {
			newAvailableAt = ts
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE orchestrator_jobs SET priority = $2, available_at = $3 WHERE id = $1`,
			existingID, req.Priority, newAvailableAt); err != nil {
			return EnqueueResult{}, false, err
		}
	}

	return EnqueueResult{JobID: existingID, Accepted: false}, false, tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Dequeue uses SELECT ... FOR UPDATE SKIP LOCKED to pick exactly one
// Ready row without blocking on concurrent workers, then assigns the
// lease with an UPDATE in the same transaction.
func (s *PostgresStore) Dequeue(ctx context.Context, req DequeueRequest, now func() time.Time) (*Lease, error) {
	ts := now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var jobID ids.JobID
	var payload []byte
	var attempts int
	err = tx.QueryRowContext(ctx, `
		SELECT id, payload, attempts FROM orchestrator_jobs
		WHERE kind = $1 AND state = 'ready' AND available_at <= $2
		ORDER BY priority ASC, available_at ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, req.Kind, ts,
	).Scan(&jobID, &payload, &attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	leaseID := ids.NewLeaseID()
	expires := ts.Add(req.LeaseTTL)
	_, err = tx.ExecContext(ctx, `
		UPDATE orchestrator_jobs SET
			state = 'leased', lease_id = $2, lease_owner = $3, lease_expires_at = $4, updated_at = $5
		WHERE id = $1`, jobID, leaseID, req.WorkerID, expires, ts)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Lease{JobID: jobID, LeaseID: leaseID, Kind: req.Kind, Payload: payload, Attempts: attempts, LeaseExpiresAt: expires}, nil
}

func (s *PostgresStore) Renew(ctx context.Context, req RenewRequest, now func() time.Time) (Lease, error) {
	ts := now()
	query := `
		UPDATE orchestrator_jobs SET
			lease_expires_at = lease_expires_at + $4 * interval '1 second',
			renewals = renewals + 1,
			updated_at = $3
		WHERE lease_id = $1 AND lease_owner = $2 AND lease_expires_at > $3
		RETURNING id, kind, payload, attempts, lease_expires_at`

	var l Lease
	err := s.db.QueryRowContext(ctx, query, req.LeaseID, req.WorkerID, ts, req.ExtendBy.Seconds()).
		Scan(&l.JobID, &l.Kind, &l.Payload, &l.Attempts, &l.LeaseExpiresAt)
	if err == sql.ErrNoRows {
		return Lease{}, ErrNotFound
	}
	if err != nil {
		return Lease{}, err
	}
	l.LeaseID = req.LeaseID
	return l, nil
}

func (s *PostgresStore) Complete(ctx context.Context, leaseID ids.LeaseID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orchestrator_jobs SET
			state = 'completed', lease_id = NULL, lease_owner = '', lease_expires_at = NULL, updated_at = now()
		WHERE lease_id = $1 AND state != 'completed'`, leaseID)
	return err
}

func (s *PostgresStore) Fail(ctx context.Context, leaseID ids.LeaseID, retryable bool, errMsg string, now func() time.Time) error {
	ts := now()

	var attempts int
	err := s.db.QueryRowContext(ctx, `SELECT attempts FROM orchestrator_jobs WHERE lease_id = $1`, leaseID).Scan(&attempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	nextAttempts := attempts + 1
	if !retryable || nextAttempts > MaxAttempts {
		_, err := s.db.ExecContext(ctx, `
			UPDATE orchestrator_jobs SET
				state = 'dead_letter', attempts = $2, last_error = $3,
				lease_id = NULL, lease_owner = '', lease_expires_at = NULL, updated_at = $4
			WHERE lease_id = $1`, leaseID, nextAttempts, errMsg, ts)
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE orchestrator_jobs SET
			state = 'ready', attempts = $2, last_error = $3, available_at = $4,
			lease_id = NULL, lease_owner = '', lease_expires_at = NULL, updated_at = $5
		WHERE lease_id = $1`, leaseID, nextAttempts, errMsg, ts.Add(Backoff(nextAttempts)), ts)
	return err
}

// ReapExpiredLeases computes per-row backoff in SQL (capped exponential
// with +/-25% jitter via random()) so a single UPDATE handles every
// expired row without a round trip per job.
func (s *PostgresStore) ReapExpiredLeases(ctx context.Context, now func() time.Time) (int, error) {
	ts := now()
	capSeconds := BackoffCap.Seconds()

	resurrectRes, err := s.db.ExecContext(ctx, `
		UPDATE orchestrator_jobs SET
			state = 'ready',
			attempts = attempts + 1,
			available_at = $2 + (
				LEAST(power(2, attempts + 1), $3) * (1 + (random() * 0.5 - 0.25))
			) * interval '1 second',
			lease_id = NULL, lease_owner = '', lease_expires_at = NULL, updated_at = $2
		WHERE state = 'leased' AND lease_expires_at < $2 AND attempts <= $4`,
		ts, ts, capSeconds, MaxAttempts)
	if err != nil {
		return 0, err
	}
	n, err := resurrectRes.RowsAffected()
	if err != nil {
		return 0, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE orchestrator_jobs SET
			state = 'dead_letter', lease_id = NULL, lease_owner = '', lease_expires_at = NULL, updated_at = $2
		WHERE state = 'leased' AND lease_expires_at < $2 AND attempts > $3`, ts, ts, MaxAttempts)
	if err != nil {
		return int(n), err
	}

	return int(n), nil
}

func (s *PostgresStore) MetricsSnapshot(ctx context.Context) (MetricsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, count(*) FROM orchestrator_jobs GROUP BY state`)
	if err != nil {
		return MetricsSnapshot{}, err
	}
	defer rows.Close()

	var m MetricsSnapshot
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return MetricsSnapshot{}, err
		}
		switch State(state) {
		case StateReady:
			m.Ready = count
		case StateDeferred:
			m.Deferred = count
		case StateLeased:
			m.Leased = count
		case StateCompleted:
			m.Completed = count
		case StateDeadLetter:
			m.DeadLetter = count
		}
	}
	return m, rows.Err()
}
