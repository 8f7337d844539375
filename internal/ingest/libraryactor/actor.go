package libraryactor

import (
	"context"
	"log"

	"github.com/arlojansen/mediaforge/internal/ingest/fswatch"
	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/pathkey"
	"github.com/arlojansen/mediaforge/internal/ingest/queue"
)

// ScanJobKind is the queue.Job.Kind value for folder scans, shared with
// the folder scanner (C7) worker that dequeues them.
const ScanJobKind = "folder_scan"

// ScanPayload is the enqueued payload for a FolderScan job.
type ScanPayload struct {
	LibraryID   ids.LibraryID
	FolderPath  string
	ParentID    *ids.FolderID
	Depth       int
	Recursive   bool
	Correlation string
}

// Enqueuer is the queue capability the actor depends on. Declared here
// (rather than depending on *queue.Queue directly) so tests can inject a
// recording fake.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (queue.EnqueueResult, error)
}

// PayloadEncoder serializes a ScanPayload to bytes for storage in
// queue.EnqueueRequest.Payload.
type PayloadEncoder func(ScanPayload) ([]byte, error)

// Actor is the single-writer command processor for one library.
type Actor struct {
	LibraryID ids.LibraryID
	Roots     []string

	queue   Enqueuer
	encode  PayloadEncoder
	inbox   chan Command
	state   State
}

// New constructs an Actor with a buffered inbox. The caller must call
// Run in its own goroutine.
func New(libraryID ids.LibraryID, roots []string, enqueuer Enqueuer, encode PayloadEncoder, inboxCapacity int) *Actor {
	if inboxCapacity <= 0 {
		inboxCapacity = 256
	}
	return &Actor{
		LibraryID: libraryID,
		Roots:     roots,
		queue:     enqueuer,
		encode:    encode,
		inbox:     make(chan Command, inboxCapacity),
	}
}

// Send delivers a command to the actor's inbox. Safe for concurrent use
// by many senders (the watch pipeline, the orchestrator, the demo
// resizer) — the actor itself is the sole consumer.
func (a *Actor) Send(cmd Command) { a.inbox <- cmd }

// Run processes commands until ctx is cancelled or a Shutdown command is
// received.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.inbox:
			if a.handle(ctx, cmd) {
				return
			}
		}
	}
}

func (a *Actor) handle(ctx context.Context, cmd Command) (shutdown bool) {
	switch c := cmd.(type) {
	case FsEvents:
		a.handleFsEvents(ctx, c.Batch)
	case StartScan:
		a.handleStartScan(ctx, c)
	case Pause:
		a.state.Paused = true
	case Resume:
		a.state.Paused = false
	case Shutdown:
		if c.Done != nil {
			close(c.Done)
		}
		return true
	}
	return false
}

// handleFsEvents implements spec.md §4.6's FsEvents behavior: coalesce by
// path_key (Overflow beats everything, Deleted beats Modified, otherwise
// last-kind-wins), then enqueue one FolderScan per distinct path at P2
// (P0 for Overflow).
func (a *Actor) handleFsEvents(ctx context.Context, batch fswatch.Batch) {
	if a.state.Paused {
		return
	}

	coalesced := coalesce(batch.Events)
	a.state.PendingRootCount = len(coalesced)

	for pathKey, ev := range coalesced {
		priority := PriorityFsEvent
		recursive := false
		folderPath := ev.Path
		if ev.Kind == fswatch.Overflow {
			priority = PriorityOverflow
			recursive = true
			folderPath = batch.RootPath
		}

		payload := ScanPayload{
			LibraryID:   a.LibraryID,
			FolderPath:  folderPath,
			Recursive:   recursive,
			Correlation: ev.CorrelationID,
		}
		a.enqueueScan(ctx, payload, priority, pathKey)
	}
}

// handleStartScan implements spec.md §4.9's start_library_scan: root scans
// enqueue at P1, or P0 when the caller supplies a correlation id (an
// operator-triggered scan riding on an existing urgent request).
func (a *Actor) handleStartScan(ctx context.Context, cmd StartScan) {
	paths := cmd.Paths
	if len(paths) == 0 {
		paths = a.Roots
	}
	priority := PriorityStartScan
	if cmd.CorrelationID != "" {
		priority = PriorityOverflow
	}
	for _, p := range paths {
		payload := ScanPayload{LibraryID: a.LibraryID, FolderPath: p, Recursive: true, Correlation: cmd.CorrelationID}
		a.enqueueScan(ctx, payload, priority, pathkey.Hash(a.LibraryID.String(), p))
	}
}

func (a *Actor) enqueueScan(ctx context.Context, payload ScanPayload, priority int, dedupeSuffix string) {
	data, err := a.encode(payload)
	if err != nil {
		log.Printf("[libraryactor] failed to encode scan payload for %s: %v", payload.FolderPath, err)
		return
	}

	dedupeKey := pathkey.Hash(ScanJobKind, a.LibraryID.String(), dedupeSuffix)
	_, err = a.queue.Enqueue(ctx, queue.EnqueueRequest{
		Kind:      ScanJobKind,
		DedupeKey: dedupeKey,
		Priority:  priority,
		Payload:   data,
	})
	if err != nil {
		log.Printf("[libraryactor] enqueue failed for %s: %v", payload.FolderPath, err)
	}
}

// coalesce groups events by path_key (here, the clamped path itself) and
// picks the winning kind per spec.md §4.6 step 1.
func coalesce(events []fswatch.Event) map[string]fswatch.Event {
	for _, ev := range events {
		if ev.Kind == fswatch.Overflow {
			return map[string]fswatch.Event{"__overflow__": ev}
		}
	}
	out := make(map[string]fswatch.Event)
	for _, ev := range events {
		key := ev.Path
		if ev.Kind == fswatch.Overflow {
			key = "__overflow__"
		}
		existing, ok := out[key]
		if !ok {
			out[key] = ev
			continue
		}
		out[key] = winningEvent(existing, ev)
	}
	return out
}

func winningEvent(existing, incoming fswatch.Event) fswatch.Event {
	if existing.Kind == fswatch.Overflow {
		return existing
	}
	if incoming.Kind == fswatch.Overflow {
		return incoming
	}
	if existing.Kind == fswatch.Deleted {
		return existing
	}
	if incoming.Kind == fswatch.Deleted {
		return incoming
	}
	return incoming
}
