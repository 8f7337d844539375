// Package inventory persists per-folder scan state: the aggregate stats
// and processing status the orchestrator and folder scanner (C7) consume
// and update as each folder is walked.
//
// Grounded on original_source/ferrex-core/.../folder_inventory.rs.
package inventory

import (
	"encoding/json"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

// Status is the lifecycle of a single folder's processing.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// FolderType classifies what a folder represents in the media hierarchy
// (spec.md §6.2 persisted enum).
type FolderType string

const (
	FolderTypeRoot    FolderType = "root"
	FolderTypeMovie   FolderType = "movie"
	FolderTypeTVShow  FolderType = "tv_show"
	FolderTypeSeason  FolderType = "season"
	FolderTypeExtra   FolderType = "extra"
	FolderTypeUnknown FolderType = "unknown"
)

// DiscoverySource records how a folder was first observed (spec.md §3.1).
// It is set once at insert and never overwritten by a later Upsert.
type DiscoverySource string

const (
	DiscoverySourceScan   DiscoverySource = "scan"
	DiscoverySourceWatch  DiscoverySource = "watch"
	DiscoverySourceManual DiscoverySource = "manual"
	DiscoverySourceImport DiscoverySource = "import"
)

// Folder is the persisted aggregate for one scanned directory.
type Folder struct {
	ID                 ids.FolderID
	LibraryID          ids.LibraryID
	ParentID           *ids.FolderID
	FolderPath         string
	FolderType         FolderType
	Status             Status
	LastError          string
	ProcessingAttempts int
	NextRetryAt        *time.Time
	LastSeenAt         time.Time
	LastProcessedAt    *time.Time
	DiscoveredAt       time.Time
	DiscoverySource    DiscoverySource
	LastModified       *time.Time
	Metadata           json.RawMessage
	TotalFiles         int
	ProcessedFiles     int
	TotalBytes         int64
	Extensions         []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Filter selects the eligible-folders query's input set (spec.md §4.2.1).
type Filter struct {
	LibraryID           *ids.LibraryID
	ProcessingStatus    *Status
	FolderType          *FolderType
	MaxAttempts         *int
	StaleAfterHours      *int
	Limit               *int
	MaxBatchSize        *int
	ErrorRetryThreshold *int
}

// EffectiveLimit applies the MaxBatchSize ?? Limit ?? 100 fallback chain.
func (f Filter) EffectiveLimit() int {
	if f.MaxBatchSize != nil {
		return *f.MaxBatchSize
	}
	if f.Limit != nil {
		return *f.Limit
	}
	return 100
}
