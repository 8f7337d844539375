// Package libraryactor implements one single-writer command processor
// goroutine per library: an MPSC actor that mediates all scan-triggering
// work through the job queue instead of calling the scanner directly.
//
// Grounded on spec.md §4.6; structurally generalizes the teacher's
// actor-less but single-writer-per-library internal/watcher.Watcher
// pattern (mutex-guarded map + debounce timers) into a channel-fed actor,
// the shape every pack repo uses for this kind of ownership (no actor
// framework library appears anywhere in the corpus).
package libraryactor

import (
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/fswatch"
)

// Priority levels match spec.md §3.1 (0 = highest).
const (
	PriorityOverflow = 0
	PriorityStartScan = 1
	PriorityFsEvent   = 2
)

// Command is one message in a library actor's inbox.
type Command interface{ isCommand() }

// FsEvents carries a flushed debounce batch from the fswatch service.
type FsEvents struct {
	Batch fswatch.Batch
}

// StartScan requests an on-demand scan of the supplied paths (or, if
// empty, every configured library root).
type StartScan struct {
	Reason        string
	Paths         []string
	CorrelationID string
}

// Pause makes the actor drop FsEvents batches (no FolderScan is enqueued
// for them) until Resume. StartScan commands are still handled while
// paused.
type Pause struct{}

// Resume reverses a prior Pause.
type Resume struct{}

// Shutdown closes Done (if non-nil) and stops the actor goroutine;
// commands still queued in the inbox behind it are not processed.
type Shutdown struct {
	Done chan struct{}
}

func (FsEvents) isCommand() {}
func (StartScan) isCommand() {}
func (Pause) isCommand()    {}
func (Resume) isCommand()   {}
func (Shutdown) isCommand() {}

// State is the actor's observable bookkeeping.
type State struct {
	Paused           bool
	LastFSActivity   time.Time
	PendingRootCount int
}
