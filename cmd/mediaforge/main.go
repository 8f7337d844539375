package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arlojansen/mediaforge/internal/config"
	"github.com/arlojansen/mediaforge/internal/db"
	"github.com/arlojansen/mediaforge/internal/ingest/demo"
	"github.com/arlojansen/mediaforge/internal/ingest/folderscan"
	"github.com/arlojansen/mediaforge/internal/ingest/fswatch"
	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/inventory"
	"github.com/arlojansen/mediaforge/internal/ingest/libraryactor"
	"github.com/arlojansen/mediaforge/internal/ingest/orchestrator"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
	"github.com/arlojansen/mediaforge/internal/ingest/queue"
	"github.com/arlojansen/mediaforge/internal/ingest/resolver"
	"github.com/arlojansen/mediaforge/internal/ingest/seriesstate"
	"github.com/arlojansen/mediaforge/internal/version"
)

const bannerArt = `
   __  __          _ _       ______
  |  \/  |___  __| (_) __ _ |  ____|__  _ __ __ _  ___
  | |\/| / _ \/ _' | |/ _' | | |__ / _ \| '__/ _' |/ _ \
  | |  | |  __/ (_| | | (_| | |  __| (_) | | | (_| |  __/
  |_|  |_|\___|\__,_|_|\__,_| |_|   \___/|_|  \__, |\___|
                                                |___/
`

func main() {
	v := version.Load()
	fmt.Println(bannerArt)
	fmt.Printf("  Self-Hosted Media Server - Ingestion Core\n")
	fmt.Printf("  Version %s\n\n", v.Version)

	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()
	cfg.MergeFromDB(database)
	log.Println("database connected")

	if err := db.Migrate(database, "internal/db/migrations"); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	log.Println("database migrated")

	// Apply the configured retry/backoff policy to the persistent queue
	// before anything starts enqueuing against it.
	queue.MaxAttempts = cfg.Queue.MaxAttempts
	queue.BackoffCap = time.Duration(cfg.Queue.BackoffCapS) * time.Second

	invStore := inventory.NewPostgresStore(database)
	seriesStore := seriesstate.NewPostgresStore(database)
	jobQueue := queue.New(queue.NewPostgresStore(database))

	fsCfg := fswatch.Config{
		DebounceWindow: time.Duration(cfg.Watch.DebounceWindowMS) * time.Millisecond,
		MaxBatchEvents: cfg.Watch.MaxBatchEvents,
	}

	newWatcher := func() (ports.OSWatcher, error) { return fswatch.NewFsnotifyWatcher() }
	orch := orchestrator.New(jobQueue, invStore, newWatcher, fsCfg, time.Now)
	orch.SetStaleFolderAge(time.Duration(cfg.Scan.StaleFolderHours) * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.StartReaper(ctx, time.Duration(cfg.Queue.ReaperIntervalS)*time.Second)

	// One folder-scan worker pool per configured concurrency; workers pull
	// libraryactor.ScanJobKind jobs regardless of which library enqueued
	// them (spec.md §4.7's SCAN_FOLDER_WORKERS knob). libraryKinds tracks
	// each registered library's classification rule set, since
	// libraryactor.ScanPayload doesn't carry it.
	libraryKinds := newLibraryKindRegistry()
	scanner := folderscan.New(ports.OSFileSystem{}, invStore, jobQueue, time.Now)
	for i := 0; i < cfg.Scan.FolderWorkers; i++ {
		go runFolderScanWorker(ctx, jobQueue, scanner, libraryKinds)
	}

	// The metadata resolver needs a real MetadataProvider (TMDB/TVDB/etc.)
	// wired in before it can do anything useful; devMetadataProvider is a
	// local, offline placeholder so the component is exercised end to end
	// without a live network dependency.
	resolve := resolver.New(seriesStore, devMetadataProvider{}, devMediaReferenceRepository{}, jobQueue, 1, 5)
	go runSeriesReconciler(ctx, invStore, seriesStore, resolve, 30*time.Second)

	_ = demo.New(demo.OSFileOps{}, invStore, nil, nil, nil, orch)

	if roots := strings.TrimSpace(os.Getenv("LIBRARY_ROOTS")); roots != "" {
		registerLibrariesFromEnv(ctx, orch, libraryKinds, roots)
	}

	log.Println("mediaforge ingestion core started")
	<-ctx.Done()
}

// libraryKindRegistry remembers whether a registered library classifies
// folders using the movies or the tv rule set (folderscan.Classify),
// keyed by library ID since neither orchestrator_jobs rows nor
// libraryactor.ScanPayload carry that classification.
type libraryKindRegistry struct {
	mu    sync.RWMutex
	kinds map[ids.LibraryID]folderscan.LibraryKind
}

func newLibraryKindRegistry() *libraryKindRegistry {
	return &libraryKindRegistry{kinds: make(map[ids.LibraryID]folderscan.LibraryKind)}
}

func (r *libraryKindRegistry) set(id ids.LibraryID, kind folderscan.LibraryKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[id] = kind
}

// get defaults to KindMovies when a library hasn't been registered this
// process (e.g. after a restart before its library is re-announced).
func (r *libraryKindRegistry) get(id ids.LibraryID) folderscan.LibraryKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kind, ok := r.kinds[id]; ok {
		return kind
	}
	return folderscan.KindMovies
}

// registerLibrariesFromEnv is a minimal bootstrap for environments with no
// library-management API wired up yet: LIBRARY_ROOTS is a comma-separated
// list of "name:kind:path" triples (kind is "movies" or "tv").
func registerLibrariesFromEnv(ctx context.Context, orch *orchestrator.Orchestrator, kinds *libraryKindRegistry, spec string) {
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 {
			log.Printf("ignoring malformed LIBRARY_ROOTS entry %q", entry)
			continue
		}
		name, kind, path := parts[0], parts[1], parts[2]
		libID := ids.NewLibraryID()
		libCfg := ports.LibraryConfig{
			ID:           libID,
			Name:         name,
			Roots:        []string{path},
			WatchEnabled: true,
			MediaKind:    kind,
		}
		if kind == string(folderscan.KindTV) {
			kinds.set(libID, folderscan.KindTV)
		} else {
			kinds.set(libID, folderscan.KindMovies)
		}
		if err := orch.RegisterLibrary(ctx, libCfg); err != nil {
			log.Printf("failed to register library %q: %v", name, err)
		}
	}
}

func runFolderScanWorker(ctx context.Context, q *queue.Queue, scanner *folderscan.Scanner, kinds *libraryKindRegistry) {
	workerID := fmt.Sprintf("folderscan-%d", os.Getpid())
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollFolderScan(ctx, q, scanner, kinds, workerID)
		}
	}
}

func pollFolderScan(ctx context.Context, q *queue.Queue, scanner *folderscan.Scanner, kinds *libraryKindRegistry, workerID string) {
	lease, err := q.Dequeue(ctx, queue.DequeueRequest{
		Kind:     libraryactor.ScanJobKind,
		WorkerID: workerID,
		LeaseTTL: 5 * time.Minute,
	})
	if err != nil {
		log.Printf("folderscan: dequeue: %v", err)
		return
	}
	if lease == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if ferr := q.Fail(ctx, lease.LeaseID, false, fmt.Sprintf("panic: %v", r)); ferr != nil {
				log.Printf("folderscan: fail: %v", ferr)
			}
		}
	}()

	var scanPayload libraryactor.ScanPayload
	if err := json.Unmarshal(lease.Payload, &scanPayload); err != nil {
		if ferr := q.Fail(ctx, lease.LeaseID, false, "decode payload: "+err.Error()); ferr != nil {
			log.Printf("folderscan: fail: %v", ferr)
		}
		return
	}

	req := folderscan.Request{
		LibraryID:  scanPayload.LibraryID,
		Kind:       kinds.get(scanPayload.LibraryID),
		FolderPath: scanPayload.FolderPath,
		ParentID:   scanPayload.ParentID,
		Depth:      scanPayload.Depth,
	}

	if err := scanner.Scan(ctx, req); err != nil {
		retryable := true
		var perr *ports.Error
		if errors.As(err, &perr) {
			retryable = perr.Retryable()
		}
		if ferr := q.Fail(ctx, lease.LeaseID, retryable, err.Error()); ferr != nil {
			log.Printf("folderscan: fail: %v", ferr)
		}
		return
	}
	if cerr := q.Complete(ctx, lease.LeaseID); cerr != nil {
		log.Printf("folderscan: complete: %v", cerr)
	}
}

// runSeriesReconciler periodically drives unresolved TV-show folders
// through the resolver, since nothing else in the ingestion core polls
// series_scan_state for Discovered/Seeded rows on its own.
func runSeriesReconciler(ctx context.Context, inv inventory.Store, states seriesstate.Store, resolve *resolver.Resolver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileSeries(ctx, inv, states, resolve)
		}
	}
}

func reconcileSeries(ctx context.Context, inv inventory.Store, states seriesstate.Store, resolve *resolver.Resolver) {
	tvShow := inventory.FolderTypeTVShow
	folders, err := inv.FoldersNeedingScan(ctx, inventory.Filter{FolderType: &tvShow})
	if err != nil {
		log.Printf("series reconcile: list folders: %v", err)
		return
	}
	for _, f := range folders {
		state, err := states.Get(ctx, f.LibraryID, f.FolderPath)
		if err != nil && !errors.Is(err, seriesstate.ErrNotFound) {
			continue
		}
		if state.Status == seriesstate.StatusResolved || state.Status == seriesstate.StatusFailed {
			continue
		}
		resolve.Resolve(ctx, resolver.Request{LibraryID: f.LibraryID, SeriesRootPath: f.FolderPath})
	}
}

// devMetadataProvider is an offline stand-in for a real catalog client
// (TMDB/TVDB); every search "matches" the hinted title verbatim so the
// resolver's state machine can be exercised without network access.
type devMetadataProvider struct{}

func (devMetadataProvider) Search(ctx context.Context, hint ports.SeriesHint) (ports.SearchResult, error) {
	if hint.Title == "" {
		return ports.SearchResult{}, nil
	}
	return ports.SearchResult{Matches: []ports.SeriesRef{{ID: ids.NewSeriesID(), Title: hint.Title, Slug: hint.Slug}}}, nil
}

func (devMetadataProvider) FetchSeries(ctx context.Context, ref ports.SeriesRef) (ports.SeriesDetails, error) {
	return ports.SeriesDetails{Ref: ref}, nil
}

// devMediaReferenceRepository is a placeholder MediaReferenceRepository
// that only logs, until a real catalog-backed repository is wired in.
type devMediaReferenceRepository struct{}

func (devMediaReferenceRepository) UpsertSeries(ctx context.Context, details ports.SeriesDetails) error {
	log.Printf("resolver: resolved series %q (%s)", details.Ref.Title, details.Ref.ID)
	return nil
}
