package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

// MemoryStore is an in-process Store guarded by a single mutex — the
// whole point of the real table is row-level SQL locking, which a mutex
// reproduces exactly for single-process tests.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[ids.JobID]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[ids.JobID]*Job)}
}

func isActive(s State) bool {
	return s == StateReady || s == StateDeferred || s == StateLeased
}

func (s *MemoryStore) Enqueue(ctx context.Context, req EnqueueRequest, now func() time.Time) (EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	for _, j := range s.jobs {
		if j.DedupeKey != req.DedupeKey || !isActive(j.State) {
			continue
		}
		if req.Priority < j.Priority {
			j.Priority = req.Priority
			if j.AvailableAt.After(ts) {
				j.AvailableAt = ts
			}
		}
		return EnqueueResult{JobID: j.ID, Accepted: false}, nil
	}

	job := &Job{
		ID:          ids.NewJobID(),
		Kind:        req.Kind,
		DedupeKey:   req.DedupeKey,
		Priority:    req.Priority,
		Payload:     req.Payload,
		State:       StateReady,
		AvailableAt: ts,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	s.jobs[job.ID] = job
	return EnqueueResult{JobID: job.ID, Accepted: true}, nil
}

func (s *MemoryStore) Dequeue(ctx context.Context, req DequeueRequest, now func() time.Time) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	var candidates []*Job
	for _, j := range s.jobs {
		if j.Kind == req.Kind && j.State == StateReady && !j.AvailableAt.After(ts) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority < candidates[k].Priority
		}
		if !candidates[i].AvailableAt.Equal(candidates[k].AvailableAt) {
			return candidates[i].AvailableAt.Before(candidates[k].AvailableAt)
		}
		return candidates[i].ID.String() < candidates[k].ID.String()
	})

	job := candidates[0]
	leaseID := ids.NewLeaseID()
	expires := ts.Add(req.LeaseTTL)
	job.State = StateLeased
	job.LeaseID = &leaseID
	job.LeaseOwner = req.WorkerID
	job.LeaseExpiresAt = &expires
	job.UpdatedAt = ts

	return &Lease{
		JobID:          job.ID,
		LeaseID:        leaseID,
		Kind:           job.Kind,
		Payload:        job.Payload,
		Attempts:       job.Attempts,
		LeaseExpiresAt: expires,
	}, nil
}

func (s *MemoryStore) findByLease(leaseID ids.LeaseID) *Job {
	for _, j := range s.jobs {
		if j.LeaseID != nil && *j.LeaseID == leaseID {
			return j
		}
	}
	return nil
}

func (s *MemoryStore) Renew(ctx context.Context, req RenewRequest, now func() time.Time) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	job := s.findByLease(req.LeaseID)
	if job == nil || job.LeaseOwner != req.WorkerID || job.LeaseExpiresAt == nil || !job.LeaseExpiresAt.After(ts) {
		return Lease{}, ErrNotFound
	}

	newExpiry := job.LeaseExpiresAt.Add(req.ExtendBy)
	job.LeaseExpiresAt = &newExpiry
	job.Renewals++
	job.UpdatedAt = ts

	return Lease{
		JobID:          job.ID,
		LeaseID:        req.LeaseID,
		Kind:           job.Kind,
		Payload:        job.Payload,
		Attempts:       job.Attempts,
		LeaseExpiresAt: newExpiry,
	}, nil
}

func (s *MemoryStore) Complete(ctx context.Context, leaseID ids.LeaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findByLease(leaseID)
	if job == nil {
		return nil
	}
	if job.State == StateCompleted {
		return nil
	}
	job.State = StateCompleted
	job.LeaseID = nil
	job.LeaseOwner = ""
	job.LeaseExpiresAt = nil
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, leaseID ids.LeaseID, retryable bool, errMsg string, now func() time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findByLease(leaseID)
	if job == nil {
		return ErrNotFound
	}

	ts := now()
	nextAttempts := job.Attempts + 1
	if !retryable || nextAttempts > MaxAttempts {
		job.State = StateDeadLetter
		job.LastError = errMsg
		job.Attempts = nextAttempts
		job.LeaseID = nil
		job.LeaseOwner = ""
		job.LeaseExpiresAt = nil
		job.UpdatedAt = ts
		return nil
	}

	job.State = StateReady
	job.Attempts = nextAttempts
	job.LastError = errMsg
	job.AvailableAt = ts.Add(Backoff(nextAttempts))
	job.LeaseID = nil
	job.LeaseOwner = ""
	job.LeaseExpiresAt = nil
	job.UpdatedAt = ts
	return nil
}

func (s *MemoryStore) ReapExpiredLeases(ctx context.Context, now func() time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	resurrected := 0
	for _, j := range s.jobs {
		if j.State != StateLeased || j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.Before(ts) {
			continue
		}
		if j.Attempts > MaxAttempts {
			j.State = StateDeadLetter
		} else {
			j.State = StateReady
			j.Attempts++
			j.AvailableAt = ts.Add(Backoff(j.Attempts))
			resurrected++
		}
		j.LeaseID = nil
		j.LeaseOwner = ""
		j.LeaseExpiresAt = nil
		j.UpdatedAt = ts
	}
	return resurrected, nil
}

func (s *MemoryStore) MetricsSnapshot(ctx context.Context) (MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m MetricsSnapshot
	for _, j := range s.jobs {
		switch j.State {
		case StateReady:
			m.Ready++
		case StateDeferred:
			m.Deferred++
		case StateLeased:
			m.Leased++
		case StateCompleted:
			m.Completed++
		case StateDeadLetter:
			m.DeadLetter++
		}
	}
	return m, nil
}
