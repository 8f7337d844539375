// Package ids defines the opaque, time-ordered identifiers shared across
// the ingestion core.
package ids

import "github.com/google/uuid"

// LibraryID identifies a configured library.
type LibraryID uuid.UUID

// FolderID identifies a row in folder_inventory.
type FolderID uuid.UUID

// SeriesID identifies a resolved series in the catalog.
type SeriesID uuid.UUID

// SeasonID identifies a season under a resolved series.
type SeasonID uuid.UUID

// EpisodeID identifies an episode under a season.
type EpisodeID uuid.UUID

// JobID identifies a row in orchestrator_jobs.
type JobID uuid.UUID

// LeaseID identifies the exclusive right to execute a leased job.
type LeaseID uuid.UUID

func (id LibraryID) String() string { return uuid.UUID(id).String() }
func (id FolderID) String() string  { return uuid.UUID(id).String() }
func (id SeriesID) String() string  { return uuid.UUID(id).String() }
func (id SeasonID) String() string  { return uuid.UUID(id).String() }
func (id EpisodeID) String() string { return uuid.UUID(id).String() }
func (id JobID) String() string     { return uuid.UUID(id).String() }
func (id LeaseID) String() string   { return uuid.UUID(id).String() }

func (id LibraryID) IsZero() bool { return id == LibraryID{} }
func (id FolderID) IsZero() bool  { return id == FolderID{} }
func (id SeriesID) IsZero() bool  { return id == SeriesID{} }
func (id JobID) IsZero() bool     { return id == JobID{} }
func (id LeaseID) IsZero() bool   { return id == LeaseID{} }

// New mints a fresh, server-assigned, time-ordered identifier. All
// identifiers minted by this process use UUIDv7 so that created_at order
// and id order agree for every row type — the original implementation
// mixed v4 and v7 between movie and TV traversals; this repo standardizes
// on v7 everywhere (see DESIGN.md open questions).
func New() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the system clock/entropy source is
		// unavailable; fall back to a random id rather than panic.
		return uuid.New()
	}
	return id
}

func NewLibraryID() LibraryID { return LibraryID(New()) }
func NewFolderID() FolderID   { return FolderID(New()) }
func NewSeriesID() SeriesID   { return SeriesID(New()) }
func NewSeasonID() SeasonID   { return SeasonID(New()) }
func NewEpisodeID() EpisodeID { return EpisodeID(New()) }
func NewJobID() JobID         { return JobID(New()) }
func NewLeaseID() LeaseID     { return LeaseID(New()) }

// ParseLibraryID parses a canonical UUID string into a LibraryID.
func ParseLibraryID(s string) (LibraryID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return LibraryID{}, err
	}
	return LibraryID(u), nil
}
