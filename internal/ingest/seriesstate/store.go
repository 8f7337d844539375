package seriesstate

import (
	"context"
	"errors"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

// ErrNotFound is returned by Get when no row exists for the key.
var ErrNotFound = errors.New("seriesstate: not found")

// Store is the Series Scan State Store capability (spec.md §4.3). Every
// Mark* operation is an upsert keyed on (library_id, series_root_path).
type Store interface {
	Get(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string) (State, error)
	MarkDiscovered(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, hint *ports.SeriesHint) (State, error)
	MarkSeeded(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, hint *ports.SeriesHint) (State, error)
	MarkResolved(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, ref ports.SeriesRef) (State, error)
	MarkFailed(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, reason string) (State, error)
}
