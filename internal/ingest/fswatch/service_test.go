package fswatch

import (
	"context"
	"testing"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

// fakeWatcher is a ports.OSWatcher the test drives by hand.
type fakeWatcher struct {
	events chan ports.WatchEvent
	errs   chan error
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events: make(chan ports.WatchEvent, 64),
		errs:   make(chan error, 8),
	}
}

func (f *fakeWatcher) Watch(ctx context.Context, path string, recursive bool) (<-chan ports.WatchEvent, <-chan error, error) {
	return f.events, f.errs, nil
}

func (f *fakeWatcher) Close() error { return nil }

func TestServiceFlushesOnDebounceTimeout(t *testing.T) {
	fw := newFakeWatcher()
	cfg := Config{DebounceWindow: 20 * time.Millisecond, MaxBatchEvents: 1024}
	svc := NewService(cfg, fw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lib := ids.NewLibraryID()
	root := Root{LibraryID: lib, Path: "/media/Movies"}
	if err := svc.WatchRoot(ctx, root); err != nil {
		t.Fatalf("watch root: %v", err)
	}

	fw.events <- ports.WatchEvent{Kind: ports.WatchEventCreate, Paths: []string{"/media/Movies/Film (2020)/film.mkv"}}

	select {
	case batch := <-svc.Batches():
		if len(batch.Events) != 1 {
			t.Fatalf("expected 1 event in flushed batch, got %d", len(batch.Events))
		}
		if batch.Events[0].Kind != Created {
			t.Fatalf("expected Created, got %v", batch.Events[0].Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounce flush")
	}
}

func TestServiceFlushesImmediatelyOnMaxBatchEvents(t *testing.T) {
	fw := newFakeWatcher()
	cfg := Config{DebounceWindow: time.Hour, MaxBatchEvents: 3}
	svc := NewService(cfg, fw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lib := ids.NewLibraryID()
	root := Root{LibraryID: lib, Path: "/media/Movies"}
	svc.WatchRoot(ctx, root)

	for i := 0; i < 3; i++ {
		fw.events <- ports.WatchEvent{Kind: ports.WatchEventCreate, Paths: []string{"/media/Movies/f.mkv"}}
	}

	select {
	case batch := <-svc.Batches():
		if len(batch.Events) != 3 {
			t.Fatalf("expected batch of 3 on threshold flush, got %d", len(batch.Events))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for threshold flush (debounce window is an hour, so only the counter should trigger it)")
	}
}

func TestServiceFlushesOverflowImmediatelyBypassingBatching(t *testing.T) {
	fw := newFakeWatcher()
	cfg := Config{DebounceWindow: time.Hour, MaxBatchEvents: 1024}
	svc := NewService(cfg, fw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lib := ids.NewLibraryID()
	root := Root{LibraryID: lib, Path: "/media/Movies"}
	svc.WatchRoot(ctx, root)

	fw.events <- ports.WatchEvent{Kind: ports.WatchEventOverflow}

	select {
	case batch := <-svc.Batches():
		if len(batch.Events) != 1 || batch.Events[0].Kind != Overflow {
			t.Fatalf("expected single Overflow event, got %+v", batch.Events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for overflow flush")
	}
}

func TestServiceDropsEventsThatEscapeRoot(t *testing.T) {
	fw := newFakeWatcher()
	cfg := Config{DebounceWindow: 20 * time.Millisecond, MaxBatchEvents: 1024}
	svc := NewService(cfg, fw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lib := ids.NewLibraryID()
	root := Root{LibraryID: lib, Path: "/media/Movies"}
	svc.WatchRoot(ctx, root)

	fw.events <- ports.WatchEvent{Kind: ports.WatchEventCreate, Paths: []string{"/etc/passwd"}}
	fw.events <- ports.WatchEvent{Kind: ports.WatchEventCreate, Paths: []string{"/media/Movies/legit.mkv"}}

	select {
	case batch := <-svc.Batches():
		if len(batch.Events) != 1 {
			t.Fatalf("expected the escaping path to be dropped, got %d events", len(batch.Events))
		}
		if batch.Events[0].Path == "" {
			t.Fatalf("expected surviving event path to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
}

func TestPropagateCorrelationFillsEmptyIDs(t *testing.T) {
	events := []Event{
		{Path: "/a"},
		{Path: "/b", CorrelationID: "req-1"},
		{Path: "/c"},
	}
	propagateCorrelation(events)
	for _, e := range events {
		if e.CorrelationID != "req-1" {
			t.Fatalf("expected correlation id propagated to %q, got %q", e.Path, e.CorrelationID)
		}
	}
}
