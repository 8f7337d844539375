package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

func TestUpsertIsIdempotentOnPath(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	lib := ids.NewLibraryID()

	id1, err := store.Upsert(ctx, Folder{LibraryID: lib, FolderPath: "/media/Show", Status: StatusPending})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	id2, err := store.Upsert(ctx, Folder{LibraryID: lib, FolderPath: "/media/Show", Status: StatusCompleted})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same folder id on re-upsert, got %v != %v", id1, id2)
	}

	got, err := store.GetByPath(ctx, lib, "/media/Show")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected updated status, got %v", got.Status)
	}
}

func TestUpsertPreservesAttemptsUnlessSupplied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	lib := ids.NewLibraryID()

	id, _ := store.Upsert(ctx, Folder{LibraryID: lib, FolderPath: "/media/Show", Status: StatusFailed})
	store.RecordScanError(ctx, id, "boom", nil)

	store.Upsert(ctx, Folder{LibraryID: lib, FolderPath: "/media/Show", Status: StatusPending})

	got, _ := store.GetByPath(ctx, lib, "/media/Show")
	if got.ProcessingAttempts != 1 {
		t.Fatalf("expected preserved attempts=1, got %d", got.ProcessingAttempts)
	}
}

func TestFoldersNeedingScanOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return base })
	lib := ids.NewLibraryID()

	mk := func(path string, status Status, attempts int, lastSeen time.Time) {
		id, _ := store.Upsert(ctx, Folder{LibraryID: lib, FolderPath: path, Status: status, LastSeenAt: lastSeen})
		for i := 0; i < attempts; i++ {
			store.RecordScanError(ctx, id, "err", nil)
		}
		store.UpdateStatus(ctx, id, status, "")
	}

	mk("/other-old", StatusCompleted, 0, base.Add(-3*time.Hour))
	mk("/pending-new", StatusPending, 0, base.Add(-1*time.Hour))
	mk("/pending-old", StatusPending, 0, base.Add(-2*time.Hour))
	mk("/failed-retryable", StatusFailed, 1, base.Add(-1*time.Hour))

	threshold := 5
	results, err := store.FoldersNeedingScan(ctx, Filter{
		LibraryID:           &lib,
		ErrorRetryThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 eligible folders, got %d", len(results))
	}

	want := []string{"/pending-old", "/pending-new", "/failed-retryable", "/other-old"}
	for i, w := range want {
		if results[i].FolderPath != w {
			t.Fatalf("position %d: got %q want %q (full order: %v)", i, results[i].FolderPath, w, pathsOf(results))
		}
	}
}

func pathsOf(folders []Folder) []string {
	out := make([]string, len(folders))
	for i, f := range folders {
		out[i] = f.FolderPath
	}
	return out
}

func TestDeleteByPathPrefixesRemovesOnlyMatchingLibraryRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	libA := ids.NewLibraryID()
	libB := ids.NewLibraryID()

	store.Upsert(ctx, Folder{LibraryID: libA, FolderPath: "/media/Movies/Old Film (1999)"})
	store.Upsert(ctx, Folder{LibraryID: libA, FolderPath: "/media/Movies/Old Film (1999)/extras"})
	store.Upsert(ctx, Folder{LibraryID: libA, FolderPath: "/media/Movies/Keep Film (2020)"})
	store.Upsert(ctx, Folder{LibraryID: libB, FolderPath: "/media/Movies/Old Film (1999)"})

	deleted, err := store.DeleteByPathPrefixes(ctx, libA, []string{"/media/Movies/Old Film (1999)"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 rows deleted (the folder and its extras subdir), got %d", deleted)
	}

	if _, err := store.GetByPath(ctx, libA, "/media/Movies/Keep Film (2020)"); err != nil {
		t.Fatalf("expected unrelated folder to survive: %v", err)
	}
	if _, err := store.GetByPath(ctx, libB, "/media/Movies/Old Film (1999)"); err != nil {
		t.Fatalf("expected other library's matching row to survive: %v", err)
	}
}

func TestCleanupStaleDeletesOnlyOlderThanCutoff(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return base })
	lib := ids.NewLibraryID()

	store.Upsert(ctx, Folder{LibraryID: lib, FolderPath: "/stale", LastSeenAt: base.Add(-48 * time.Hour)})
	store.Upsert(ctx, Folder{LibraryID: lib, FolderPath: "/fresh", LastSeenAt: base.Add(-1 * time.Hour)})

	deleted, err := store.CleanupStale(ctx, lib, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	if _, err := store.GetByPath(ctx, lib, "/fresh"); err != nil {
		t.Fatalf("expected /fresh to survive cleanup: %v", err)
	}
	if _, err := store.GetByPath(ctx, lib, "/stale"); err != ErrNotFound {
		t.Fatalf("expected /stale to be removed, got err=%v", err)
	}
}
