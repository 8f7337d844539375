package seriesstate

import (
	"context"
	"testing"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

func TestDiscoveredHintIsNotOverwrittenByNone(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	lib := ids.NewLibraryID()
	root := "/demo/Shows/Example"

	hint := &ports.SeriesHint{Title: "Example", Slug: "example", Year: 2001, Region: "US"}

	first, err := store.MarkDiscovered(ctx, lib, root, hint)
	if err != nil {
		t.Fatalf("mark discovered: %v", err)
	}
	if first.Hint == nil || first.Hint.Title != hint.Title {
		t.Fatalf("expected hint to be stored, got %+v", first.Hint)
	}

	second, err := store.MarkDiscovered(ctx, lib, root, nil)
	if err != nil {
		t.Fatalf("mark discovered again: %v", err)
	}
	if second.Hint == nil || second.Hint.Title != hint.Title {
		t.Fatalf("expected hint to survive nil re-discovery, got %+v", second.Hint)
	}
}

func TestMarkSeededDoesNotDemoteResolvedState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	lib := ids.NewLibraryID()
	root := "/demo/Shows/Resolved"

	seriesID := ids.NewSeriesID()
	_, err := store.MarkResolved(ctx, lib, root, ports.SeriesRef{ID: seriesID, Slug: "resolved", Title: "Resolved"})
	if err != nil {
		t.Fatalf("mark resolved: %v", err)
	}

	after, err := store.MarkSeeded(ctx, lib, root, nil)
	if err != nil {
		t.Fatalf("mark seeded: %v", err)
	}

	if after.SeriesID == nil || *after.SeriesID != seriesID {
		t.Fatalf("expected series id to survive, got %v", after.SeriesID)
	}
	if after.Status != StatusResolved {
		t.Fatalf("expected status to remain Resolved, got %v", after.Status)
	}
	if !after.IsResolved() {
		t.Fatalf("expected IsResolved() true")
	}
}

func TestMarkFailedDoesNotDemoteResolvedState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	lib := ids.NewLibraryID()
	root := "/demo/Shows/Resolved"

	seriesID := ids.NewSeriesID()
	store.MarkResolved(ctx, lib, root, ports.SeriesRef{ID: seriesID})

	after, err := store.MarkFailed(ctx, lib, root, "provider unavailable")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if after.Status != StatusResolved {
		t.Fatalf("expected status to remain Resolved, got %v", after.Status)
	}
	if after.FailureReason != "" {
		t.Fatalf("expected failure reason to stay empty once resolved, got %q", after.FailureReason)
	}
}

func TestMarkResolvedSynthesizesHintWhenAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	lib := ids.NewLibraryID()
	root := "/demo/Shows/New"

	seriesID := ids.NewSeriesID()
	got, err := store.MarkResolved(ctx, lib, root, ports.SeriesRef{ID: seriesID, Title: "New Show", Slug: "new-show"})
	if err != nil {
		t.Fatalf("mark resolved: %v", err)
	}
	if got.Hint == nil || got.Hint.Title != "New Show" {
		t.Fatalf("expected synthesized hint, got %+v", got.Hint)
	}
}

func TestTransitionFromFailedBackToDiscovered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	lib := ids.NewLibraryID()
	root := "/demo/Shows/Retry"

	store.MarkFailed(ctx, lib, root, "timeout")
	got, err := store.MarkDiscovered(ctx, lib, root, nil)
	if err != nil {
		t.Fatalf("mark discovered: %v", err)
	}
	if got.Status != StatusDiscovered {
		t.Fatalf("expected Failed->Discovered transition, got %v", got.Status)
	}
}
