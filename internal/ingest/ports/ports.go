// Package ports defines the capabilities the ingestion core consumes from
// its collaborators, and the capability it exposes to them (spec.md §6.1).
package ports

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
)

// Clock abstracts wall-clock time so tests can inject a fixed or
// controllable now().
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FileSystem abstracts the filesystem operations the core needs, so
// folder scanning and watch-path sanitation can be exercised against a
// fake in tests.
type FileSystem interface {
	ReadDir(path string) ([]os.DirEntry, error)
	Stat(path string) (os.FileInfo, error)
	Exists(path string) bool
}

// OSFileSystem is the production FileSystem backed by the os package.
type OSFileSystem struct{}

func (OSFileSystem) ReadDir(path string) ([]os.DirEntry, error) { return os.ReadDir(path) }
func (OSFileSystem) Stat(path string) (os.FileInfo, error)      { return os.Stat(path) }
func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ErrorKind classifies errors crossing a component boundary (spec.md §7).
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	ErrKindNotFound
	ErrKindInvalidMedia
	ErrKindTransient
	ErrKindPermanent
	ErrKindPathEscape
	ErrKindCancelled
	ErrKindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindInvalidMedia:
		return "invalid_media"
	case ErrKindTransient:
		return "transient"
	case ErrKindPermanent:
		return "permanent"
	case ErrKindPathEscape:
		return "path_escape"
	case ErrKindCancelled:
		return "cancelled"
	case ErrKindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the tagged error type that crosses component boundaries. Only
// Kind is meant to influence caller control flow; Cause is diagnostic.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the error kind should be retried by the queue
// rather than dead-lettered immediately.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrKindTransient:
		return true
	default:
		return false
	}
}

func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// SearchResult is the outcome of a MetadataProvider.Search call.
type SearchResult struct {
	Matches []SeriesRef
}

// SeriesRef is a resolved external catalog identity for a series.
type SeriesRef struct {
	ID    ids.SeriesID
	Slug  string
	Title string
}

// SeriesHint carries operator/filename-derived clues used to seed a
// metadata search.
type SeriesHint struct {
	Title  string
	Slug   string
	Year   int
	Region string
}

// SeriesDetails is the fully resolved catalog record for a series.
type SeriesDetails struct {
	Ref      SeriesRef
	Seasons  int
	Episodes int
}

// ProviderErrorKind classifies MetadataProvider failures per spec.md §6.1.
type ProviderErrorKind int

const (
	ProviderErrTransientNetwork ProviderErrorKind = iota
	ProviderErrPermanentNotFound
	ProviderErrRateLimited
	ProviderErrInvalid
)

// ProviderError is returned by MetadataProvider implementations.
type ProviderError struct {
	Kind       ProviderErrorKind
	RetryAfter time.Duration
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "metadata provider error"
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// MetadataProvider is the external catalog capability the resolver (C8)
// consumes. Implementations must be safe for concurrent use.
type MetadataProvider interface {
	Search(ctx context.Context, hint SeriesHint) (SearchResult, error)
	FetchSeries(ctx context.Context, ref SeriesRef) (SeriesDetails, error)
}

// WatchEventKind classifies a raw OS filesystem notification.
type WatchEventKind int

const (
	WatchEventCreate WatchEventKind = iota
	WatchEventWrite
	WatchEventRemove
	WatchEventRename
	WatchEventChmod
	WatchEventOverflow
)

// WatchEvent is the raw notification OSWatcher delivers, one step upstream
// of the debounced ports the fswatch service (C5) produces internally.
type WatchEvent struct {
	Kind  WatchEventKind
	Paths []string
}

// OSWatcher abstracts the host filesystem-notification facility consumed
// by the fswatch service, so tests can drive it with a fake event stream
// instead of a real fsnotify.Watcher.
type OSWatcher interface {
	// Watch begins delivering events for path onto the returned channel.
	// The channel is closed when ctx is cancelled or the watch is torn
	// down. Errors encountered while watching are delivered on errs.
	Watch(ctx context.Context, path string, recursive bool) (events <-chan WatchEvent, errs <-chan error, err error)
	Close() error
}

// Database is the capability every SQL-backed store binds to — either a
// *sql.DB or a *sql.Tx, so stores can participate in a caller-managed
// transaction without knowing it.
type Database interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LibraryRepository is the library-store capability the ingestion core
// depends on.
type LibraryRepository interface {
	GetByID(ctx context.Context, id ids.LibraryID) (LibraryConfig, error)
	List(ctx context.Context) ([]LibraryConfig, error)
}

// LibraryConfig is the orchestrator's view of a configured library.
type LibraryConfig struct {
	ID            ids.LibraryID
	Name          string
	Roots         []string
	WatchEnabled  bool
	MediaKind     string
}

// MediaReferenceRepository is the media-catalog capability the resolver
// depends on when persisting resolved series.
type MediaReferenceRepository interface {
	UpsertSeries(ctx context.Context, details SeriesDetails) error
}

// AppUnitOfWork aggregates the repositories the orchestrator and its
// collaborators bind to. Callers depend on this facade only, never on the
// concrete *sql.DB-backed repositories directly.
type AppUnitOfWork interface {
	Libraries() LibraryRepository
	MediaReferences() MediaReferenceRepository
	FolderInventory() FolderInventoryStore
	SeriesScanState() SeriesScanStateStore
	OrchestratorJobs() JobStore
}

// FolderInventoryStore, SeriesScanStateStore, and JobStore are declared
// here (rather than imported from their owning packages) to avoid an
// import cycle between ports and the packages that implement AppUnitOfWork.
// The concrete stores in internal/ingest/inventory, seriesstate, and queue
// have different method sets and do not implement these interfaces.
type FolderInventoryStore interface {
	Upsert(ctx context.Context, rec FolderInventoryRecord) error
	CleanupStale(ctx context.Context, libraryID ids.LibraryID, olderThan time.Duration) (int, error)
}

// FolderInventoryRecord is the persisted per-folder aggregate (spec.md §4.2).
type FolderInventoryRecord struct {
	ID          ids.FolderID
	LibraryID   ids.LibraryID
	FolderPath  string
	Status      string
	LastSeenAt  time.Time
}

type SeriesScanStateStore interface {
	GetOrCreate(ctx context.Context, libraryID ids.LibraryID, seriesRoot string) (SeriesScanStateRecord, error)
}

// SeriesScanStateRecord is the persisted scan state for a series root
// (spec.md §4.3).
type SeriesScanStateRecord struct {
	LibraryID  ids.LibraryID
	SeriesRoot string
	Status     string
	Hint       *SeriesHint
}

type JobStore interface {
	Enqueue(ctx context.Context, job OrchestratorJob) (ids.JobID, error)
}

// OrchestratorJob is the persisted unit of work the queue (C4) manages.
type OrchestratorJob struct {
	ID         ids.JobID
	Kind       string
	DedupeKey  string
	Priority   int
	Payload    []byte
}

// ScanControlPlane is the capability the orchestrator (C9) exposes to its
// callers (API handlers, the demo resizer, tests).
type ScanControlPlane interface {
	RegisterLibrary(ctx context.Context, cfg LibraryConfig) error
	UnregisterLibrary(ctx context.Context, id ids.LibraryID) error
	StartLibraryScan(ctx context.Context, id ids.LibraryID, correlationID string) (scanID string, err error)
	ScanStatus(ctx context.Context, scanID string) (ScanStatus, error)
	InjectCreatedFolders(ctx context.Context, libraryID ids.LibraryID, paths []string) error
	PublishMediaEvent(ctx context.Context, libraryID ids.LibraryID, event WatchEvent) error
}

// ScanStatus aggregates queue and inventory state for a scan (spec.md §4.9).
type ScanStatus struct {
	ScanID         string
	JobsPending    int
	JobsInFlight   int
	JobsFailed     int
	FoldersScanned int
}
