package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

// MemoryStore is an in-process Store used by tests; cmd/mediaforge always
// uses the Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[ids.FolderID]*Folder
	now     func() time.Time
}

// NewMemoryStore builds an empty MemoryStore. now defaults to time.Now
// when nil, so tests can inject a controllable clock.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{byID: make(map[ids.FolderID]*Folder), now: now}
}

// Upsert mirrors PostgresStore.Upsert's conflict semantics: discovered_at
// and discovery_source are set once at first insert and left untouched on
// a later call for the same (library_id, folder_path); last_modified and
// metadata are replaced each time, with last_modified only overwritten
// when the caller supplies a non-nil value.
func (s *MemoryStore) Upsert(ctx context.Context, folder Folder) (ids.FolderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.LibraryID == folder.LibraryID && existing.FolderPath == folder.FolderPath {
			preservedAttempts := existing.ProcessingAttempts
			createdAt := existing.CreatedAt
			id := existing.ID
			updated := folder
			updated.ID = id
			updated.CreatedAt = createdAt
			updated.UpdatedAt = s.now()
			updated.DiscoveredAt = existing.DiscoveredAt
			updated.DiscoverySource = existing.DiscoverySource
			if folder.LastModified == nil {
				updated.LastModified = existing.LastModified
			}
			if folder.ProcessingAttempts == 0 {
				updated.ProcessingAttempts = preservedAttempts
			}
			s.byID[id] = &updated
			return id, nil
		}
	}

	folder.ID = ids.NewFolderID()
	folder.CreatedAt = s.now()
	folder.UpdatedAt = folder.CreatedAt
	if folder.DiscoverySource == "" {
		folder.DiscoverySource = DiscoverySourceScan
	}
	if folder.DiscoveredAt.IsZero() {
		folder.DiscoveredAt = folder.CreatedAt
	}
	clone := folder
	s.byID[folder.ID] = &clone
	return folder.ID, nil
}

func (s *MemoryStore) GetByPath(ctx context.Context, libraryID ids.LibraryID, path string) (Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.byID {
		if f.LibraryID == libraryID && f.FolderPath == path {
			return *f, nil
		}
	}
	return Folder{}, ErrNotFound
}

func (s *MemoryStore) GetChildren(ctx context.Context, parentID ids.FolderID) ([]Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Folder
	for _, f := range s.byID {
		if f.ParentID != nil && *f.ParentID == parentID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetSeasons(ctx context.Context, parentID ids.FolderID) ([]Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Folder
	for _, f := range s.byID {
		if f.ParentID != nil && *f.ParentID == parentID && f.FolderType == FolderTypeSeason {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListForLibrary(ctx context.Context, libraryID ids.LibraryID) ([]Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Folder
	for _, f := range s.byID {
		if f.LibraryID == libraryID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id ids.FolderID, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	f.Status = status
	f.LastError = errMsg
	f.UpdatedAt = s.now()
	if status == StatusCompleted {
		now := s.now()
		f.LastProcessedAt = &now
	} else {
		f.LastProcessedAt = nil
	}
	return nil
}

func (s *MemoryStore) RecordScanError(ctx context.Context, id ids.FolderID, errMsg string, nextRetry *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	f.Status = StatusFailed
	f.ProcessingAttempts++
	f.LastError = errMsg
	f.NextRetryAt = nextRetry
	f.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, id ids.FolderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	f.Status = StatusCompleted
	f.LastProcessedAt = &now
	f.LastError = ""
	f.UpdatedAt = now
	return nil
}

func (s *MemoryStore) UpdateStats(ctx context.Context, id ids.FolderID, total, processed int, bytes int64, extensions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	f.TotalFiles = total
	f.ProcessedFiles = processed
	f.TotalBytes = bytes
	f.Extensions = extensions
	f.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) CleanupStale(ctx context.Context, libraryID ids.LibraryID, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	deleted := 0
	for id, f := range s.byID {
		if f.LibraryID == libraryID && f.LastSeenAt.Before(cutoff) {
			delete(s.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteByPathPrefixes removes every row for libraryID whose folder_path
// starts with one of prefixes, used by the demo resizer (C10) when
// shrinking a library's primary item count.
func (s *MemoryStore) DeleteByPathPrefixes(ctx context.Context, libraryID ids.LibraryID, prefixes []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, f := range s.byID {
		if f.LibraryID != libraryID {
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(f.FolderPath, prefix) {
				delete(s.byID, id)
				deleted++
				break
			}
		}
	}
	return deleted, nil
}

// FoldersNeedingScan implements the eligible-folders query ordering from
// spec.md §4.2.1: three priority classes, then ascending attempts, then
// ascending last_seen_at within each class.
func (s *MemoryStore) FoldersNeedingScan(ctx context.Context, filter Filter) ([]Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var eligible []Folder
	for _, f := range s.byID {
		if filter.LibraryID != nil && f.LibraryID != *filter.LibraryID {
			continue
		}
		if filter.ProcessingStatus != nil && f.Status != *filter.ProcessingStatus {
			continue
		}
		if filter.FolderType != nil && f.FolderType != *filter.FolderType {
			continue
		}
		if filter.MaxAttempts != nil && f.ProcessingAttempts >= *filter.MaxAttempts {
			continue
		}
		if f.NextRetryAt != nil && f.NextRetryAt.After(now) {
			continue
		}
		eligible = append(eligible, *f)
	}

	class := func(f Folder) int {
		switch {
		case f.Status == StatusPending:
			return 1
		case f.Status == StatusFailed && filter.ErrorRetryThreshold != nil && f.ProcessingAttempts < *filter.ErrorRetryThreshold:
			return 2
		default:
			return 3
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ci, cj := class(eligible[i]), class(eligible[j])
		if ci != cj {
			return ci < cj
		}
		if eligible[i].ProcessingAttempts != eligible[j].ProcessingAttempts {
			return eligible[i].ProcessingAttempts < eligible[j].ProcessingAttempts
		}
		return eligible[i].LastSeenAt.Before(eligible[j].LastSeenAt)
	})

	limit := filter.EffectiveLimit()
	if limit < len(eligible) {
		eligible = eligible[:limit]
	}
	return eligible, nil
}
