package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEnqueueAcceptsFirstAndDedupesSecond(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore())

	r1, err := q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "lib-1:/root", Priority: 5})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !r1.Accepted {
		t.Fatalf("expected first enqueue to be accepted")
	}

	r2, err := q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "lib-1:/root", Priority: 5})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if r2.Accepted {
		t.Fatalf("expected second enqueue to be deduped")
	}
	if r2.JobID != r1.JobID {
		t.Fatalf("expected same job id on dedupe, got %v != %v", r2.JobID, r1.JobID)
	}
}

func TestEnqueueElevatesPriorityOfExistingActiveJob(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockTime := base
	clock := func() time.Time { return clockTime }
	store := NewMemoryStore()
	q := NewWithClock(store, clock)

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "k", Priority: 5})
	clockTime = base.Add(time.Hour)
	r, err := q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "k", Priority: 0})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if r.Accepted {
		t.Fatalf("elevation should report accepted=false")
	}

	snap, _ := q.MetricsSnapshot(ctx)
	if snap.Ready != 1 {
		t.Fatalf("expected exactly one active job after elevation (J1), got %d ready", snap.Ready)
	}
	if got := store.jobs[r.JobID].Priority; got != 0 {
		t.Fatalf("expected existing job elevated to priority 0, got %d", got)
	}
}

func TestEnqueueDoesNotElevateOnEqualOrLowerPriority(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	q := New(store)

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "k", Priority: 0})
	r, _ := q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "k", Priority: 5})
	if r.Accepted {
		t.Fatalf("non-elevating duplicate should still report accepted=false")
	}
	if got := store.jobs[r.JobID].Priority; got != 0 {
		t.Fatalf("expected existing job to keep priority 0, got %d", got)
	}
}

func TestDequeueOrdersByPriorityThenAvailability(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewWithClock(NewMemoryStore(), func() time.Time { return base })

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "low", Priority: 5})
	high, _ := q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "high", Priority: 0})

	lease, err := q.Dequeue(ctx, DequeueRequest{Kind: "scan", WorkerID: "w1", LeaseTTL: time.Minute})
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if lease == nil {
		t.Fatalf("expected a lease")
	}
	if lease.JobID != high.JobID {
		t.Fatalf("expected the priority-0 job to be leased first")
	}
}

func TestLeaseLifecycleRenewCompleteFail(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewWithClock(NewMemoryStore(), func() time.Time { return base })

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "k", Priority: 0})
	lease, err := q.Dequeue(ctx, DequeueRequest{Kind: "scan", WorkerID: "w1", LeaseTTL: time.Minute})
	if err != nil || lease == nil {
		t.Fatalf("dequeue: %v", err)
	}

	renewed, err := q.Renew(ctx, RenewRequest{LeaseID: lease.LeaseID, WorkerID: "w1", ExtendBy: time.Minute})
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !renewed.LeaseExpiresAt.After(lease.LeaseExpiresAt) {
		t.Fatalf("expected renewed lease to extend expiry")
	}

	if err := q.Complete(ctx, lease.LeaseID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := q.Complete(ctx, lease.LeaseID); err != nil {
		t.Fatalf("repeat complete should be idempotent, got %v", err)
	}
	if err := q.Fail(ctx, lease.LeaseID, true, "late failure"); err != ErrNotFound {
		t.Fatalf("fail on a completed lease should return ErrNotFound, got %v", err)
	}

	snap, _ := q.MetricsSnapshot(ctx)
	if snap.Completed != 1 {
		t.Fatalf("expected 1 completed job, got %d", snap.Completed)
	}
}

func TestRenewRejectsWrongWorkerOrExpiredLease(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockTime := base
	q := NewWithClock(NewMemoryStore(), func() time.Time { return clockTime })

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "k", Priority: 0})
	lease, _ := q.Dequeue(ctx, DequeueRequest{Kind: "scan", WorkerID: "w1", LeaseTTL: time.Minute})

	if _, err := q.Renew(ctx, RenewRequest{LeaseID: lease.LeaseID, WorkerID: "intruder", ExtendBy: time.Minute}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for wrong worker, got %v", err)
	}

	clockTime = base.Add(2 * time.Minute)
	if _, err := q.Renew(ctx, RenewRequest{LeaseID: lease.LeaseID, WorkerID: "w1", ExtendBy: time.Minute}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired lease, got %v", err)
	}
}

func TestFailRetryableSchedulesBackoffAndFailFatalDeadLetters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewWithClock(NewMemoryStore(), func() time.Time { return base })

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "retryable", Priority: 0})
	lease, _ := q.Dequeue(ctx, DequeueRequest{Kind: "scan", WorkerID: "w1", LeaseTTL: time.Minute})
	if err := q.Fail(ctx, lease.LeaseID, true, "transient io error"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	snap, _ := q.MetricsSnapshot(ctx)
	if snap.Ready != 1 {
		t.Fatalf("expected retryable failure to return job to Ready, got snapshot %+v", snap)
	}

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "fatal", Priority: 0})
	lease2, _ := q.Dequeue(ctx, DequeueRequest{Kind: "scan", WorkerID: "w1", LeaseTTL: time.Minute})
	if err := q.Fail(ctx, lease2.LeaseID, false, "permanent parse error"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	snap2, _ := q.MetricsSnapshot(ctx)
	if snap2.DeadLetter != 1 {
		t.Fatalf("expected fatal failure to dead-letter, got snapshot %+v", snap2)
	}
}

func TestFailExceedingMaxAttemptsDeadLetters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockTime := base
	q := NewWithClock(NewMemoryStore(), func() time.Time { return clockTime })

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "k", Priority: 0})

	// The first MaxAttempts failures return the job to Ready; the one after
	// that pushes attempts past MaxAttempts and dead-letters it. The clock
	// moves past each retry backoff so the job can be dequeued again.
	for i := 0; i <= MaxAttempts; i++ {
		lease, err := q.Dequeue(ctx, DequeueRequest{Kind: "scan", WorkerID: "w1", LeaseTTL: time.Minute})
		if err != nil || lease == nil {
			t.Fatalf("dequeue attempt %d: %v", i, err)
		}
		if err := q.Fail(ctx, lease.LeaseID, true, "transient"); err != nil {
			t.Fatalf("fail attempt %d: %v", i, err)
		}
		clockTime = clockTime.Add(time.Hour)
	}

	snap, _ := q.MetricsSnapshot(ctx)
	if snap.DeadLetter != 1 {
		t.Fatalf("expected job to be dead-lettered after exceeding MaxAttempts, got %+v", snap)
	}
}

func TestReaperResurrectsExpiredLeases(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockTime := base
	q := NewWithClock(NewMemoryStore(), func() time.Time { return clockTime })

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "k", Priority: 0})
	lease, err := q.Dequeue(ctx, DequeueRequest{Kind: "scan", WorkerID: "w1", LeaseTTL: time.Second})
	if err != nil || lease == nil {
		t.Fatalf("dequeue: %v", err)
	}

	clockTime = base.Add(time.Hour)
	n, err := q.RunReaper(ctx)
	if err != nil {
		t.Fatalf("reaper: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 resurrected lease, got %d", n)
	}

	snap, _ := q.MetricsSnapshot(ctx)
	if snap.Ready != 1 || snap.Leased != 0 {
		t.Fatalf("expected job back in Ready after reap, got %+v", snap)
	}
}

func TestBackoffIsCappedAndJittered(t *testing.T) {
	for attempt := 0; attempt < 12; attempt++ {
		d := Backoff(attempt)
		if d < 0 {
			t.Fatalf("attempt %d: backoff went negative: %v", attempt, d)
		}
		if d > BackoffCap+BackoffCap/4+time.Second {
			t.Fatalf("attempt %d: backoff %v exceeds cap+jitter bound", attempt, d)
		}
	}
}

func TestConcurrentDequeueNeverDoubleLeasesOneJob(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore())

	q.Enqueue(ctx, EnqueueRequest{Kind: "scan", DedupeKey: "only", Priority: 0})

	var wg sync.WaitGroup
	leases := make([]*Lease, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, _ := q.Dequeue(ctx, DequeueRequest{Kind: "scan", WorkerID: "w", LeaseTTL: time.Minute})
			leases[i] = l
		}(i)
	}
	wg.Wait()

	got := 0
	for _, l := range leases {
		if l != nil {
			got++
		}
	}
	if got != 1 {
		t.Fatalf("expected exactly one goroutine to win the lease, got %d", got)
	}
}
