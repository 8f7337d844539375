package inventory

import (
	"context"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

// Store is the Folder Inventory Store capability (spec.md §4.2). Both the
// in-memory and Postgres implementations satisfy it.
type Store interface {
	Upsert(ctx context.Context, folder Folder) (ids.FolderID, error)
	GetByPath(ctx context.Context, libraryID ids.LibraryID, path string) (Folder, error)
	GetChildren(ctx context.Context, parentID ids.FolderID) ([]Folder, error)
	GetSeasons(ctx context.Context, parentID ids.FolderID) ([]Folder, error)
	ListForLibrary(ctx context.Context, libraryID ids.LibraryID) ([]Folder, error)
	UpdateStatus(ctx context.Context, id ids.FolderID, status Status, errMsg string) error
	RecordScanError(ctx context.Context, id ids.FolderID, errMsg string, nextRetry *time.Time) error
	MarkProcessed(ctx context.Context, id ids.FolderID) error
	UpdateStats(ctx context.Context, id ids.FolderID, total, processed int, bytes int64, extensions []string) error
	CleanupStale(ctx context.Context, libraryID ids.LibraryID, olderThan time.Duration) (int, error)
	FoldersNeedingScan(ctx context.Context, filter Filter) ([]Folder, error)
	DeleteByPathPrefixes(ctx context.Context, libraryID ids.LibraryID, prefixes []string) (int, error)
}

// ErrNotFound is returned by GetByPath when no row matches.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "inventory: folder not found" }
