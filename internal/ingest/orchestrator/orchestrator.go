// Package orchestrator implements the Scan Orchestrator (C9): the only
// component that talks to external collaborators (HTTP handlers, the demo
// coordinator). It wires a library's actor (C6) to its watch roots (C5)
// and the shared queue (C4), and exposes ports.ScanControlPlane.
//
// Grounded on spec.md §4.9; the ticker+stop-channel reconciliation loop
// follows the teacher's internal/scheduler.Scheduler shape, and the
// register/unregister/immediate-discovery lifecycle generalizes
// original_source's ferrex-core FolderMonitor (start/stop via a shared
// shutdown flag, discover_library_folders_immediate for on-demand scans).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/fswatch"
	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/inventory"
	"github.com/arlojansen/mediaforge/internal/ingest/libraryactor"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
	"github.com/arlojansen/mediaforge/internal/ingest/queue"
)

// WatcherFactory constructs a fresh ports.OSWatcher for one library's
// watch service. Production code passes fswatch.NewFsnotifyWatcher;
// tests inject a fake.
type WatcherFactory func() (ports.OSWatcher, error)

// DefaultReaperInterval matches spec.md §4.9's "default every 30 s".
const DefaultReaperInterval = 30 * time.Second

// DefaultStaleFolderAge matches spec.md's scan.stale_folder_hours default
// (24h): inventory rows untouched for longer than this are reclaimed
// during Reconcile, ahead of any cascade delete of their library's media
// rows.
const DefaultStaleFolderAge = 24 * time.Hour

type libraryEntry struct {
	cfg      ports.LibraryConfig
	actor    *libraryactor.Actor
	cancel   context.CancelFunc
	watchSvc *fswatch.Service
}

type scanRecord struct {
	libraryID ids.LibraryID
	startedAt time.Time
}

// Orchestrator is the C9 component.
type Orchestrator struct {
	queue          *queue.Queue
	inventory      inventory.Store
	newWatcher     WatcherFactory
	fsCfg          fswatch.Config
	inboxCap       int
	now            func() time.Time
	staleFolderAge time.Duration

	mu        sync.RWMutex
	libraries map[ids.LibraryID]*libraryEntry

	scansMu sync.Mutex
	scans   map[string]scanRecord
}

func New(q *queue.Queue, inv inventory.Store, newWatcher WatcherFactory, fsCfg fswatch.Config, now func() time.Time) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		queue:          q,
		inventory:      inv,
		newWatcher:     newWatcher,
		fsCfg:          fsCfg,
		inboxCap:       256,
		now:            now,
		staleFolderAge: DefaultStaleFolderAge,
		libraries:      make(map[ids.LibraryID]*libraryEntry),
		scans:          make(map[string]scanRecord),
	}
}

// SetStaleFolderAge overrides the threshold Reconcile uses when reclaiming
// inventory rows that haven't been seen in a while (scan.stale_folder_hours).
func (o *Orchestrator) SetStaleFolderAge(age time.Duration) {
	if age > 0 {
		o.staleFolderAge = age
	}
}

func encodeScanPayload(p libraryactor.ScanPayload) ([]byte, error) {
	return json.Marshal(p)
}

// RegisterLibrary creates the library's actor, starts its watcher if
// requested, and enqueues an initial FolderScan per root at P1
// (spec.md §4.9).
func (o *Orchestrator) RegisterLibrary(ctx context.Context, cfg ports.LibraryConfig) error {
	o.mu.Lock()
	if _, exists := o.libraries[cfg.ID]; exists {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: library %s already registered", cfg.ID)
	}

	actorCtx, cancel := context.WithCancel(context.Background())
	actor := libraryactor.New(cfg.ID, cfg.Roots, o.queue, encodeScanPayload, o.inboxCap)
	go actor.Run(actorCtx)

	entry := &libraryEntry{cfg: cfg, actor: actor, cancel: cancel}

	if cfg.WatchEnabled {
		watcher, err := o.newWatcher()
		if err != nil {
			cancel()
			o.mu.Unlock()
			return fmt.Errorf("orchestrator: starting watcher for library %s: %w", cfg.ID, err)
		}
		svc := fswatch.NewService(o.fsCfg, watcher)
		entry.watchSvc = svc

		for _, root := range cfg.Roots {
			if err := svc.WatchRoot(actorCtx, fswatch.Root{LibraryID: cfg.ID, Path: root}); err != nil {
				log.Printf("[orchestrator] failed to watch root %s for library %s: %v", root, cfg.ID, err)
			}
		}
		go dispatchBatches(actorCtx, svc, actor)
	}

	o.libraries[cfg.ID] = entry
	o.mu.Unlock()

	actor.Send(libraryactor.StartScan{Reason: "register_library", Paths: cfg.Roots})
	return nil
}

// dispatchBatches forwards debounced watch batches into the owning
// actor's inbox until the library's context is cancelled.
func dispatchBatches(ctx context.Context, svc *fswatch.Service, actor *libraryactor.Actor) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-svc.Batches():
			if !ok {
				return
			}
			actor.Send(libraryactor.FsEvents{Batch: batch})
		}
	}
}

// UnregisterLibrary stops the library's watch service and cancels its
// actor; commands still queued in the actor's inbox are not processed.
// Folder inventory rows are left untouched (spec.md §4.9).
func (o *Orchestrator) UnregisterLibrary(ctx context.Context, id ids.LibraryID) error {
	o.mu.Lock()
	entry, ok := o.libraries[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: library %s not registered", id)
	}
	delete(o.libraries, id)
	o.mu.Unlock()

	if entry.watchSvc != nil {
		entry.watchSvc.Stop()
	}
	entry.cancel()
	return nil
}

// StartLibraryScan enqueues root scans for an already-registered library,
// returning a scan id for later status polling.
func (o *Orchestrator) StartLibraryScan(ctx context.Context, id ids.LibraryID, correlationID string) (string, error) {
	o.mu.RLock()
	entry, ok := o.libraries[id]
	o.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("orchestrator: library %s not registered", id)
	}

	scanID := ids.New().String()
	o.scansMu.Lock()
	o.scans[scanID] = scanRecord{libraryID: id, startedAt: o.now()}
	o.scansMu.Unlock()

	entry.actor.Send(libraryactor.StartScan{Reason: "start_library_scan", CorrelationID: correlationID})
	return scanID, nil
}

// ScanStatus aggregates queue and inventory state for a previously
// started scan. Queue metrics are process-wide (the queue has no notion
// of which scan enqueued a job), so JobsPending/JobsInFlight/JobsFailed
// reflect the whole queue at call time rather than this scan in
// isolation; FoldersScanned is library-scoped and counts rows whose
// last_seen_at is at or after the scan's start.
func (o *Orchestrator) ScanStatus(ctx context.Context, scanID string) (ports.ScanStatus, error) {
	o.scansMu.Lock()
	rec, ok := o.scans[scanID]
	o.scansMu.Unlock()
	if !ok {
		return ports.ScanStatus{}, fmt.Errorf("orchestrator: unknown scan %s", scanID)
	}

	status := ports.ScanStatus{ScanID: scanID}

	if snap, err := o.queue.MetricsSnapshot(ctx); err == nil {
		status.JobsPending = snap.Ready + snap.Deferred
		status.JobsInFlight = snap.Leased
		status.JobsFailed = snap.DeadLetter
	}

	folders, err := o.inventory.ListForLibrary(ctx, rec.libraryID)
	if err == nil {
		for _, f := range folders {
			if !f.LastSeenAt.Before(rec.startedAt) {
				status.FoldersScanned++
			}
		}
	}

	return status, nil
}

// InjectCreatedFolders synthesizes Created FS events into a library's
// actor, used by tests and the demo resizer to drive the standard
// ingestion path without touching the real filesystem watcher.
func (o *Orchestrator) InjectCreatedFolders(ctx context.Context, libraryID ids.LibraryID, paths []string) error {
	o.mu.RLock()
	entry, ok := o.libraries[libraryID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("orchestrator: library %s not registered", libraryID)
	}

	rootPath := ""
	if len(entry.cfg.Roots) > 0 {
		rootPath = entry.cfg.Roots[0]
	}

	events := make([]fswatch.Event, 0, len(paths))
	for _, p := range paths {
		events = append(events, fswatch.EventFromPorts(libraryID, rootPath, ports.WatchEvent{
			Kind:  ports.WatchEventCreate,
			Paths: []string{p},
		}))
	}

	entry.actor.Send(libraryactor.FsEvents{Batch: fswatch.Batch{LibraryID: libraryID, RootPath: rootPath, Events: events}})
	return nil
}

// PublishMediaEvent feeds one externally observed watch event into a
// library's actor, bypassing the debounce pipeline (spec.md §6.1).
func (o *Orchestrator) PublishMediaEvent(ctx context.Context, libraryID ids.LibraryID, event ports.WatchEvent) error {
	o.mu.RLock()
	entry, ok := o.libraries[libraryID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("orchestrator: library %s not registered", libraryID)
	}

	rootPath := ""
	if len(entry.cfg.Roots) > 0 {
		rootPath = entry.cfg.Roots[0]
	}
	ev := fswatch.EventFromPorts(libraryID, rootPath, event)
	entry.actor.Send(libraryactor.FsEvents{Batch: fswatch.Batch{LibraryID: libraryID, RootPath: rootPath, Events: []fswatch.Event{ev}}})
	return nil
}

// Reconcile reclaims stale inventory rows for every library ahead of
// re-registering it, then runs the reaper once immediately, per spec.md
// §4.9's startup sequence and §9's cleanup-before-cascade ordering.
func (o *Orchestrator) Reconcile(ctx context.Context, libs []ports.LibraryConfig) error {
	for _, cfg := range libs {
		if _, err := o.inventory.CleanupStale(ctx, cfg.ID, o.staleFolderAge); err != nil {
			return fmt.Errorf("orchestrator: cleaning stale folders for library %s: %w", cfg.ID, err)
		}
		if err := o.RegisterLibrary(ctx, cfg); err != nil {
			return fmt.Errorf("orchestrator: reconciling library %s: %w", cfg.ID, err)
		}
	}
	if _, err := o.queue.RunReaper(ctx); err != nil {
		return fmt.Errorf("orchestrator: initial reaper pass: %w", err)
	}
	return nil
}

// StartReaper runs the lease reaper on a fixed interval until ctx is
// cancelled (spec.md §4.9, default 30s).
func (o *Orchestrator) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	o.queue.StartReaper(ctx, interval)
}
