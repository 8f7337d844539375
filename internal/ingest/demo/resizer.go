// Package demo implements the Demo Delta Resizer (C10): given a target
// movie/series count, it reconciles an on-disk demo library to that count
// without a full rescan, by removing or materializing primary item
// folders directly and letting synthetic Created events carry new items
// through the standard ingestion path.
//
// Grounded on original_source/ferrex-server/src/demo/mod.rs's
// DemoCoordinator.resize (excess/deficit branches, the
// inject_created_folders hookup at the end of the deficit path); this is
// new functionality relative to the teacher (CineVault has no demo mode),
// built in the teacher's idiom — a small mutex-guarded coordinator
// struct, the same shape as internal/watcher.Watcher.
package demo

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/inventory"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

// LibraryKind distinguishes the two delta-generation rule sets.
type LibraryKind string

const (
	KindMovies LibraryKind = "movies"
	KindSeries LibraryKind = "series"
)

// Structure is a minimal filesystem tree a PlanProvider hands back:
// directories to create and zero-length placeholder files within them.
// TopLevel lists the subset of Dirs that are themselves primary items
// (one per generated movie or series), used to drive the inject step.
type Structure struct {
	Dirs     []string
	Files    []string
	TopLevel []string
}

// PlanProvider generates new demo folder structures, excluding names
// already present on disk. Grounded on mod.rs's DemoPlanProvider trait
// (generate_movie_structure / generate_series_structure).
type PlanProvider interface {
	GenerateStructure(ctx context.Context, kind LibraryKind, libraryRoot string, count int, forbidden map[string]struct{}) (Structure, error)
}

// MediaRowDeleter removes media rows whose path falls under one of the
// given prefixes, mirroring mod.rs's media_files_write.delete_by_path_prefixes.
type MediaRowDeleter interface {
	DeleteByPathPrefixes(ctx context.Context, libraryID ids.LibraryID, prefixes []string) (int, error)
}

// OrphanRefCleaner removes series/season/episode rows left with no
// remaining folder backing them, mirroring mod.rs's
// cleanup_orphan_tv_references.
type OrphanRefCleaner interface {
	CleanupOrphanSeriesReferences(ctx context.Context, libraryID ids.LibraryID) (int, error)
}

// LibraryTarget is one library the resizer manages.
type LibraryTarget struct {
	LibraryID ids.LibraryID
	Kind      LibraryKind
	RootPath  string
}

// Resizer is the C10 component.
type Resizer struct {
	mu sync.Mutex

	fs        FileOps
	inventory inventory.Store
	media     MediaRowDeleter
	orphans   OrphanRefCleaner
	provider  PlanProvider
	scans     ports.ScanControlPlane
}

func New(fs FileOps, inv inventory.Store, media MediaRowDeleter, orphans OrphanRefCleaner, provider PlanProvider, scans ports.ScanControlPlane) *Resizer {
	return &Resizer{fs: fs, inventory: inv, media: media, orphans: orphans, provider: provider, scans: scans}
}

// Resize reconciles target's on-disk primary item count to targetCount
// (spec.md §4.10).
func (r *Resizer) Resize(ctx context.Context, target LibraryTarget, targetCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if targetCount < 1 {
		targetCount = 1
	}

	current, err := r.fs.ListTopLevelDirs(target.RootPath)
	if err != nil {
		return fmt.Errorf("demo resize: listing %s: %w", target.RootPath, err)
	}
	sort.Strings(current)

	switch {
	case len(current) > targetCount:
		return r.shrink(ctx, target, current, len(current)-targetCount)
	case len(current) < targetCount:
		return r.grow(ctx, target, current, targetCount-len(current))
	default:
		return nil
	}
}

// shrink removes the trailing N primary items in reverse alphabetical
// order (spec.md §4.10's "trailing N ... reversed").
func (r *Resizer) shrink(ctx context.Context, target LibraryTarget, current []string, removeCount int) error {
	toRemove := make([]string, 0, removeCount)
	for i := len(current) - 1; i >= 0 && len(toRemove) < removeCount; i-- {
		toRemove = append(toRemove, current[i])
	}

	var prefixes []string
	for _, name := range toRemove {
		itemPath := filepath.Join(target.RootPath, name)
		if err := ensureWithinRoot(target.RootPath, itemPath); err != nil {
			return err
		}
		if err := r.fs.RemoveAll(itemPath); err != nil {
			return fmt.Errorf("demo resize: removing %s: %w", itemPath, err)
		}
		prefixes = append(prefixes, itemPath)
	}

	if len(prefixes) == 0 {
		return nil
	}

	if r.media != nil {
		if _, err := r.media.DeleteByPathPrefixes(ctx, target.LibraryID, prefixes); err != nil {
			return fmt.Errorf("demo resize: deleting media rows: %w", err)
		}
	}
	if r.inventory != nil {
		if _, err := r.inventory.DeleteByPathPrefixes(ctx, target.LibraryID, prefixes); err != nil {
			return fmt.Errorf("demo resize: deleting inventory rows: %w", err)
		}
	}
	if target.Kind == KindSeries && r.orphans != nil {
		if _, err := r.orphans.CleanupOrphanSeriesReferences(ctx, target.LibraryID); err != nil {
			return fmt.Errorf("demo resize: cleaning orphan references: %w", err)
		}
	}
	return nil
}

// grow asks the provider for addCount new folder structures excluding
// current folder names, materializes them as zero-length files, and
// injects synthetic Created events so the standard ingestion path (C5+)
// takes over from here (spec.md §4.10).
func (r *Resizer) grow(ctx context.Context, target LibraryTarget, current []string, addCount int) error {
	forbidden := make(map[string]struct{}, len(current))
	for _, name := range current {
		forbidden[name] = struct{}{}
	}

	structure, err := r.provider.GenerateStructure(ctx, target.Kind, target.RootPath, addCount, forbidden)
	if err != nil {
		return fmt.Errorf("demo resize: generating structure: %w", err)
	}

	for _, dir := range structure.Dirs {
		if err := ensureWithinRoot(target.RootPath, dir); err != nil {
			return err
		}
	}
	for _, file := range structure.Files {
		if err := ensureWithinRoot(target.RootPath, file); err != nil {
			return err
		}
	}

	for _, dir := range structure.Dirs {
		if err := r.fs.MkdirAll(dir); err != nil {
			return fmt.Errorf("demo resize: creating %s: %w", dir, err)
		}
	}
	for _, file := range structure.Files {
		if err := r.fs.CreateEmpty(file); err != nil {
			return fmt.Errorf("demo resize: creating %s: %w", file, err)
		}
	}

	if len(structure.TopLevel) == 0 || r.scans == nil {
		return nil
	}
	if err := r.scans.InjectCreatedFolders(ctx, target.LibraryID, structure.TopLevel); err != nil {
		return fmt.Errorf("demo resize: injecting created folders: %w", err)
	}
	return nil
}

// ensureWithinRoot rejects any path a generated structure or removal
// target would place outside the demo root, mirroring mod.rs's
// ensure_within_root guard.
func ensureWithinRoot(root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fmt.Errorf("demo resize: %s is not relative to root %s: %w", path, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("demo resize: refusing to touch path %s outside root %s", path, root)
	}
	return nil
}
