// Package seriesstate tracks the per-(library, series root) scan state
// machine the resolver (C8) drives: Discovered → Seeded → Resolved, with
// a Failed branch and a sticky-Resolved guard.
//
// Grounded on
// original_source/ferrex-core/src/domain/scan/orchestration/series_state.rs.
package seriesstate

import (
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

// Status is the series scan lifecycle (spec.md §4.3).
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusSeeded     Status = "seeded"
	StatusResolved   Status = "resolved"
	StatusFailed     Status = "failed"
)

// State is the persisted row for one (library, series root) pair.
type State struct {
	LibraryID      ids.LibraryID
	SeriesRootPath string
	Status         Status
	SeriesID       *ids.SeriesID
	Hint           *ports.SeriesHint
	SeededAt       *time.Time
	LastAttemptAt  *time.Time
	Attempts       int
	ResolvedAt     *time.Time
	FailedAt       *time.Time
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsResolved reports whether this row carries a confirmed series
// identity, mirroring the original's is_resolved() helper.
func (s State) IsResolved() bool {
	return s.SeriesID != nil && s.Status == StatusResolved
}

// coalesceHint merges an incoming hint into the existing one, never
// letting a nil incoming hint erase a previously recorded one.
func coalesceHint(existing, incoming *ports.SeriesHint) *ports.SeriesHint {
	if incoming != nil {
		return incoming
	}
	return existing
}
