package libraryactor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/arlojansen/mediaforge/internal/ingest/fswatch"
	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/queue"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	reqs []queue.EnqueueRequest
}

func (r *recordingEnqueuer) Enqueue(ctx context.Context, req queue.EnqueueRequest) (queue.EnqueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return queue.EnqueueResult{JobID: ids.NewJobID(), Accepted: true}, nil
}

func encodeJSON(p ScanPayload) ([]byte, error) { return json.Marshal(p) }

func TestFsEventsCoalescesByPathAndEnqueuesAtP2(t *testing.T) {
	enq := &recordingEnqueuer{}
	lib := ids.NewLibraryID()
	a := New(lib, []string{"/media/Movies"}, enq, encodeJSON, 0)

	batch := fswatch.Batch{
		LibraryID: lib,
		RootPath:  "/media/Movies",
		Events: []fswatch.Event{
			{LibraryID: lib, Kind: fswatch.Created, Path: "/media/Movies/Film"},
			{LibraryID: lib, Kind: fswatch.Modified, Path: "/media/Movies/Film"},
		},
	}
	a.handleFsEvents(context.Background(), batch)

	if len(enq.reqs) != 1 {
		t.Fatalf("expected a single coalesced enqueue, got %d", len(enq.reqs))
	}
	if enq.reqs[0].Priority != PriorityFsEvent {
		t.Fatalf("expected P2 priority, got %d", enq.reqs[0].Priority)
	}
}

func TestDeletedWinsOverModified(t *testing.T) {
	events := []fswatch.Event{
		{Kind: fswatch.Modified, Path: "/x"},
		{Kind: fswatch.Deleted, Path: "/x"},
	}
	got := coalesce(events)
	if got["/x"].Kind != fswatch.Deleted {
		t.Fatalf("expected Deleted to win, got %v", got["/x"].Kind)
	}
}

func TestOverflowWinsOverEverything(t *testing.T) {
	events := []fswatch.Event{
		{Kind: fswatch.Created, Path: "/a"},
		{Kind: fswatch.Overflow},
		{Kind: fswatch.Modified, Path: "/b"},
	}
	got := coalesce(events)
	if len(got) != 1 {
		t.Fatalf("expected overflow to collapse the batch to a single entry, got %d", len(got))
	}
	for _, ev := range got {
		if ev.Kind != fswatch.Overflow {
			t.Fatalf("expected surviving event to be Overflow, got %v", ev.Kind)
		}
	}
}

func TestOverflowEnqueuesRecursiveScanAtP0(t *testing.T) {
	enq := &recordingEnqueuer{}
	lib := ids.NewLibraryID()
	a := New(lib, []string{"/media/Movies"}, enq, encodeJSON, 0)

	batch := fswatch.Batch{LibraryID: lib, RootPath: "/media/Movies", Events: []fswatch.Event{{Kind: fswatch.Overflow}}}
	a.handleFsEvents(context.Background(), batch)

	if len(enq.reqs) != 1 {
		t.Fatalf("expected one enqueue, got %d", len(enq.reqs))
	}
	if enq.reqs[0].Priority != PriorityOverflow {
		t.Fatalf("expected P0 priority for overflow, got %d", enq.reqs[0].Priority)
	}
}

func TestStartScanUsesLibraryRootsWhenPathsEmptyAtP1(t *testing.T) {
	enq := &recordingEnqueuer{}
	lib := ids.NewLibraryID()
	a := New(lib, []string{"/media/Movies", "/media/Movies2"}, enq, encodeJSON, 0)

	a.handleStartScan(context.Background(), StartScan{Reason: "manual"})

	if len(enq.reqs) != 2 {
		t.Fatalf("expected one enqueue per library root, got %d", len(enq.reqs))
	}
	for _, r := range enq.reqs {
		if r.Priority != PriorityStartScan {
			t.Fatalf("expected P1 priority, got %d", r.Priority)
		}
	}
}

func TestStartScanWithCorrelationUsesOverflowPriority(t *testing.T) {
	enq := &recordingEnqueuer{}
	lib := ids.NewLibraryID()
	a := New(lib, []string{"/media/Movies"}, enq, encodeJSON, 0)

	a.handleStartScan(context.Background(), StartScan{Reason: "urgent", CorrelationID: "corr-1"})

	if len(enq.reqs) != 1 {
		t.Fatalf("expected one enqueue, got %d", len(enq.reqs))
	}
	if enq.reqs[0].Priority != PriorityOverflow {
		t.Fatalf("expected P0 priority when a correlation id is present, got %d", enq.reqs[0].Priority)
	}
}

func TestPausedActorDropsFsEvents(t *testing.T) {
	enq := &recordingEnqueuer{}
	lib := ids.NewLibraryID()
	a := New(lib, []string{"/media/Movies"}, enq, encodeJSON, 0)
	a.state.Paused = true

	a.handleFsEvents(context.Background(), fswatch.Batch{
		LibraryID: lib,
		Events:    []fswatch.Event{{Kind: fswatch.Created, Path: "/x"}},
	})

	if len(enq.reqs) != 0 {
		t.Fatalf("expected no enqueues while paused, got %d", len(enq.reqs))
	}
}
