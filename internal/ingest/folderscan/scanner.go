package folderscan

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/inventory"
	"github.com/arlojansen/mediaforge/internal/ingest/pathkey"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
	"github.com/arlojansen/mediaforge/internal/ingest/queue"
)

// Enqueuer is the queue capability used to fan scans out to subdirs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (queue.EnqueueResult, error)
}

// Request is the input to a single FolderScan job (spec.md §4.7).
type Request struct {
	LibraryID  ids.LibraryID
	Kind       LibraryKind
	FolderPath string
	ParentID   *ids.FolderID
	Depth      int
}

// Scanner performs the one-level walk and change detection (C7).
type Scanner struct {
	fs    ports.FileSystem
	store inventory.Store
	queue Enqueuer
	now   func() time.Time
}

func New(fs ports.FileSystem, store inventory.Store, queue Enqueuer, now func() time.Time) *Scanner {
	if now == nil {
		now = time.Now
	}
	return &Scanner{fs: fs, store: store, queue: queue, now: now}
}

// Scan walks req.FolderPath one level deep, classifies it, upserts the
// aggregate into the inventory store, and enqueues a child FolderScan for
// every subdirectory. Read errors are reported via RecordScanError and do
// not abort the walk (spec.md §4.7).
func (s *Scanner) Scan(ctx context.Context, req Request) error {
	existing, err := s.store.GetByPath(ctx, req.LibraryID, req.FolderPath)
	hasExisting := err == nil
	if err != nil && err != inventory.ErrNotFound {
		return err
	}

	entries, err := s.fs.ReadDir(req.FolderPath)
	if err != nil {
		return s.recordError(ctx, req, hasExisting, existing, err)
	}

	var subdirs []string
	var videoFiles []videoFile
	extSet := map[string]bool{}

	for _, entry := range entries {
		full := filepath.Join(req.FolderPath, entry.Name())
		if entry.IsDir() {
			subdirs = append(subdirs, full)
			continue
		}
		if !isVideoFile(entry.Name()) {
			continue
		}
		info, statErr := s.fs.Stat(full)
		if statErr != nil {
			continue
		}
		videoFiles = append(videoFiles, videoFile{path: full, size: info.Size(), mtime: info.ModTime()})
		extSet[filepath.Ext(entry.Name())] = true
	}

	folderType := Classify(req.Kind, req.Depth, filepath.Base(req.FolderPath), len(videoFiles) > 0, len(subdirs) > 0)

	totalFiles := len(videoFiles)
	var totalBytes int64
	var lastModified time.Time
	for _, f := range videoFiles {
		totalBytes += f.size
		if f.mtime.After(lastModified) {
			lastModified = f.mtime
		}
	}
	extensions := make([]string, 0, len(extSet))
	for e := range extSet {
		extensions = append(extensions, e)
	}
	sort.Strings(extensions)

	folder := inventory.Folder{
		LibraryID:       req.LibraryID,
		ParentID:        req.ParentID,
		FolderPath:      req.FolderPath,
		FolderType:      folderType,
		DiscoverySource: inventory.DiscoverySourceScan,
		TotalFiles:      totalFiles,
		ProcessedFiles:  0,
		TotalBytes:      totalBytes,
		Extensions:      extensions,
		LastSeenAt:      s.now(),
	}
	if !lastModified.IsZero() {
		folder.LastModified = &lastModified
	}

	if changed(hasExisting, existing, totalFiles, totalBytes, extensions, lastModified) {
		folder.Status = inventory.StatusPending
	} else {
		folder.Status = existing.Status
		folder.ProcessingAttempts = existing.ProcessingAttempts
		folder.NextRetryAt = existing.NextRetryAt
		folder.ProcessedFiles = existing.ProcessedFiles
	}

	folderID, err := s.store.Upsert(ctx, folder)
	if err != nil {
		return err
	}

	for _, sub := range subdirs {
		s.enqueueChild(ctx, req.LibraryID, req.Kind, sub, folderID, req.Depth+1)
	}
	return nil
}

type videoFile struct {
	path  string
	size  int64
	mtime time.Time
}

// changed implements the spec.md §4.7 step 4 comparison, treating an
// absent existing mtime as negative infinity.
func changed(hasExisting bool, existing inventory.Folder, totalFiles int, totalBytes int64, extensions []string, lastModified time.Time) bool {
	if !hasExisting {
		return true
	}
	if existing.TotalFiles != totalFiles || existing.TotalBytes != totalBytes {
		return true
	}
	if !sameStrings(existing.Extensions, extensions) {
		return true
	}
	baseline := existing.LastModified
	if baseline == nil {
		return !lastModified.IsZero()
	}
	return lastModified.After(*baseline)
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)
	for i := range sortedA {
		if sortedA[i] != sortedB[i] {
			return false
		}
	}
	return true
}

func (s *Scanner) recordError(ctx context.Context, req Request, hasExisting bool, existing inventory.Folder, readErr error) error {
	if !hasExisting {
		folder := inventory.Folder{
			LibraryID:  req.LibraryID,
			ParentID:   req.ParentID,
			FolderPath: req.FolderPath,
			Status:     inventory.StatusFailed,
			LastError:  readErr.Error(),
			LastSeenAt: s.now(),
		}
		id, err := s.store.Upsert(ctx, folder)
		if err != nil {
			return err
		}
		return s.store.RecordScanError(ctx, id, readErr.Error(), nil)
	}
	return s.store.RecordScanError(ctx, existing.ID, readErr.Error(), nil)
}

func (s *Scanner) enqueueChild(ctx context.Context, libraryID ids.LibraryID, kind LibraryKind, path string, parentID ids.FolderID, depth int) {
	payload, err := json.Marshal(Request{LibraryID: libraryID, Kind: kind, FolderPath: path, ParentID: &parentID, Depth: depth})
	if err != nil {
		return
	}
	s.queue.Enqueue(ctx, queue.EnqueueRequest{
		Kind:      "folder_scan",
		DedupeKey: pathkey.Hash("folder_scan", libraryID.String(), path),
		Priority:  2,
		Payload:   payload,
	})
}
