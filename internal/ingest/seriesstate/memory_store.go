package seriesstate

import (
	"context"
	"sync"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

type key struct {
	library ids.LibraryID
	root    string
}

// MemoryStore is an in-process Store, ported directly from the original's
// InMemorySeriesScanStateRepository for use in tests.
type MemoryStore struct {
	mu     sync.Mutex
	states map[key]*State
	now    func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{states: make(map[key]*State), now: now}
}

func (s *MemoryStore) Get(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key{libraryID, seriesRootPath}]
	if !ok {
		return State{}, ErrNotFound
	}
	return *st, nil
}

func (s *MemoryStore) entry(k key, now time.Time, initial func() State) *State {
	if st, ok := s.states[k]; ok {
		return st
	}
	created := initial()
	s.states[k] = &created
	return s.states[k]
}

func (s *MemoryStore) MarkDiscovered(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, hint *ports.SeriesHint) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key{libraryID, seriesRootPath}
	entry := s.entry(k, now, func() State {
		return State{
			LibraryID:      libraryID,
			SeriesRootPath: seriesRootPath,
			Status:         StatusDiscovered,
			Hint:           hint,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	})

	entry.Hint = coalesceHint(entry.Hint, hint)
	if entry.Status != StatusResolved {
		entry.Status = StatusDiscovered
	}
	entry.UpdatedAt = now
	return *entry, nil
}

func (s *MemoryStore) MarkSeeded(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, hint *ports.SeriesHint) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key{libraryID, seriesRootPath}
	_, existed := s.states[k]
	entry := s.entry(k, now, func() State {
		return State{
			LibraryID:      libraryID,
			SeriesRootPath: seriesRootPath,
			Status:         StatusSeeded,
			Hint:           hint,
			SeededAt:       &now,
			LastAttemptAt:  &now,
			Attempts:       1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	})

	entry.Hint = coalesceHint(entry.Hint, hint)
	if entry.Status != StatusResolved {
		entry.Status = StatusSeeded
	}
	entry.LastAttemptAt = &now
	if existed {
		entry.Attempts++
	}
	if entry.SeededAt == nil {
		entry.SeededAt = &now
	}
	entry.UpdatedAt = now
	return *entry, nil
}

func (s *MemoryStore) MarkResolved(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, ref ports.SeriesRef) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key{libraryID, seriesRootPath}
	seriesID := ref.ID
	entry := s.entry(k, now, func() State {
		return State{
			LibraryID:      libraryID,
			SeriesRootPath: seriesRootPath,
			Status:         StatusResolved,
			SeriesID:       &seriesID,
			SeededAt:       &now,
			LastAttemptAt:  &now,
			Attempts:       1,
			ResolvedAt:     &now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	})

	entry.SeriesID = &seriesID
	entry.Status = StatusResolved
	entry.ResolvedAt = &now
	entry.UpdatedAt = now
	entry.FailedAt = nil
	entry.FailureReason = ""

	if entry.Hint == nil && (ref.Title != "" || ref.Slug != "") {
		entry.Hint = &ports.SeriesHint{Title: ref.Title, Slug: ref.Slug}
	}

	return *entry, nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, reason string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key{libraryID, seriesRootPath}
	entry := s.entry(k, now, func() State {
		return State{
			LibraryID:      libraryID,
			SeriesRootPath: seriesRootPath,
			Status:         StatusFailed,
			FailedAt:       &now,
			FailureReason:  reason,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	})

	if entry.Status != StatusResolved {
		entry.Status = StatusFailed
		entry.FailedAt = &now
		entry.FailureReason = reason
	}
	entry.UpdatedAt = now
	return *entry, nil
}
