// Package fswatch debounces and coalesces raw filesystem notifications
// into per-root batches the library actor (C6) consumes.
//
// Grounded on original_source/ferrex-core/src/scan/fs_watch/mod.rs
// (spawn_watch_loop, flush_pending, classify_event) and the teacher's
// internal/watcher/watcher.go (debounce-timer idiom, media extension
// filtering).
package fswatch

import "github.com/arlojansen/mediaforge/internal/ingest/ids"

// Kind is the core event classification fed to the library actor
// (spec.md §4.5.2).
type Kind string

const (
	Created  Kind = "created"
	Modified Kind = "modified"
	Deleted  Kind = "deleted"
	Moved    Kind = "moved"
	Overflow Kind = "overflow"
)

// Event is one clamped, classified filesystem occurrence.
type Event struct {
	LibraryID     ids.LibraryID
	RootPath      string
	Kind          Kind
	Path          string
	OldPath       string
	CorrelationID string
}

// Batch is one debounce-window flush for a single root.
type Batch struct {
	LibraryID ids.LibraryID
	RootPath  string
	Events    []Event
}
