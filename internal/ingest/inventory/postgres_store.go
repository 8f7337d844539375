package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/lib/pq"
)

// PostgresStore is the Store backed by the folder_inventory table
// (internal/db/migrations/0002_ingest_core.up.sql).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const folderColumns = `id, library_id, parent_id, folder_path, folder_type, status,
	last_error, processing_attempts, next_retry_at, last_seen_at, last_processed_at,
	discovered_at, discovery_source, last_modified, metadata,
	total_files, processed_files, total_bytes, extensions, created_at, updated_at`

func scanFolder(row interface{ Scan(dest ...any) error }) (Folder, error) {
	var f Folder
	var parentID sql.NullString
	var extensions pq.StringArray
	var lastModified sql.NullTime
	var metadata []byte
	err := row.Scan(
		&f.ID, &f.LibraryID, &parentID, &f.FolderPath, &f.FolderType, &f.Status,
		&f.LastError, &f.ProcessingAttempts, &f.NextRetryAt, &f.LastSeenAt, &f.LastProcessedAt,
		&f.DiscoveredAt, &f.DiscoverySource, &lastModified, &metadata,
		&f.TotalFiles, &f.ProcessedFiles, &f.TotalBytes, &extensions, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return Folder{}, err
	}
	if parentID.Valid {
		id, perr := ids.ParseLibraryID(parentID.String)
		if perr == nil {
			fid := ids.FolderID(id)
			f.ParentID = &fid
		}
	}
	if lastModified.Valid {
		t := lastModified.Time
		f.LastModified = &t
	}
	f.Metadata = json.RawMessage(metadata)
	f.Extensions = []string(extensions)
	return f, nil
}

// Upsert implements the ON CONFLICT (library_id, folder_path) DO UPDATE
// clause from original_source/ferrex-core/.../folder_inventory.rs, copying
// every supplied field on conflict except id/created_at, and preserving
// processing_attempts unless the caller supplies a nonzero value.
// discovered_at/discovery_source are insert-only per the original's
// upsert_folder_impl: a folder's first-seen provenance never changes on a
// rescan. last_modified and metadata do update on conflict.
func (s *PostgresStore) Upsert(ctx context.Context, folder Folder) (ids.FolderID, error) {
	if folder.ID.IsZero() {
		folder.ID = ids.NewFolderID()
	}
	if folder.DiscoverySource == "" {
		folder.DiscoverySource = DiscoverySourceScan
	}
	if folder.DiscoveredAt.IsZero() {
		folder.DiscoveredAt = time.Now()
	}
	metadata := folder.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO folder_inventory (
			id, library_id, parent_id, folder_path, folder_type, status,
			last_error, processing_attempts, next_retry_at, last_seen_at, last_processed_at,
			discovered_at, discovery_source, last_modified, metadata,
			total_files, processed_files, total_bytes, extensions
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (library_id, folder_path) DO UPDATE SET
			folder_type = EXCLUDED.folder_type,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			processing_attempts = CASE WHEN EXCLUDED.processing_attempts = 0
				THEN folder_inventory.processing_attempts ELSE EXCLUDED.processing_attempts END,
			next_retry_at = EXCLUDED.next_retry_at,
			last_seen_at = EXCLUDED.last_seen_at,
			last_modified = COALESCE(EXCLUDED.last_modified, folder_inventory.last_modified),
			metadata = EXCLUDED.metadata,
			total_files = EXCLUDED.total_files,
			processed_files = EXCLUDED.processed_files,
			total_bytes = EXCLUDED.total_bytes,
			extensions = EXCLUDED.extensions,
			updated_at = now()
		RETURNING id`

	var parentID any
	if folder.ParentID != nil {
		parentID = folder.ParentID.String()
	}

	var id ids.FolderID
	err := s.db.QueryRowContext(ctx, query,
		folder.ID, folder.LibraryID, parentID, folder.FolderPath, folder.FolderType, folder.Status,
		folder.LastError, folder.ProcessingAttempts, folder.NextRetryAt, folder.LastSeenAt, folder.LastProcessedAt,
		folder.DiscoveredAt, folder.DiscoverySource, folder.LastModified, []byte(metadata),
		folder.TotalFiles, folder.ProcessedFiles, folder.TotalBytes, pq.Array(folder.Extensions),
	).Scan(&id)
	return id, err
}

func (s *PostgresStore) GetByPath(ctx context.Context, libraryID ids.LibraryID, path string) (Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folder_inventory WHERE library_id = $1 AND folder_path = $2`
	f, err := scanFolder(s.db.QueryRowContext(ctx, query, libraryID, path))
	if err == sql.ErrNoRows {
		return Folder{}, ErrNotFound
	}
	return f, err
}

func (s *PostgresStore) queryFolders(ctx context.Context, query string, args ...any) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetChildren(ctx context.Context, parentID ids.FolderID) ([]Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folder_inventory WHERE parent_id = $1 ORDER BY folder_path`
	return s.queryFolders(ctx, query, parentID)
}

func (s *PostgresStore) GetSeasons(ctx context.Context, parentID ids.FolderID) ([]Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folder_inventory WHERE parent_id = $1 AND folder_type = 'season' ORDER BY folder_path`
	return s.queryFolders(ctx, query, parentID)
}

func (s *PostgresStore) ListForLibrary(ctx context.Context, libraryID ids.LibraryID) ([]Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folder_inventory WHERE library_id = $1 ORDER BY folder_path`
	return s.queryFolders(ctx, query, libraryID)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id ids.FolderID, status Status, errMsg string) error {
	query := `
		UPDATE folder_inventory SET
			status = $2,
			last_error = $3,
			last_processed_at = CASE WHEN $2 = 'completed' THEN now() ELSE NULL END,
			updated_at = now()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, status, errMsg)
	return requireRowAffected(res, err)
}

func (s *PostgresStore) RecordScanError(ctx context.Context, id ids.FolderID, errMsg string, nextRetry *time.Time) error {
	query := `
		UPDATE folder_inventory SET
			status = 'failed',
			processing_attempts = processing_attempts + 1,
			last_error = $2,
			next_retry_at = $3,
			updated_at = now()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, errMsg, nextRetry)
	return requireRowAffected(res, err)
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id ids.FolderID) error {
	query := `
		UPDATE folder_inventory SET
			status = 'completed',
			last_processed_at = now(),
			last_error = '',
			updated_at = now()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id)
	return requireRowAffected(res, err)
}

func (s *PostgresStore) UpdateStats(ctx context.Context, id ids.FolderID, total, processed int, bytes int64, extensions []string) error {
	query := `
		UPDATE folder_inventory SET
			total_files = $2, processed_files = $3, total_bytes = $4, extensions = $5, updated_at = now()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, total, processed, bytes, pq.Array(extensions))
	return requireRowAffected(res, err)
}

// CleanupStale deletes rows last seen before the cutoff. Callers must run
// this ahead of any cascade delete of media rows (spec.md §4.2).
func (s *PostgresStore) CleanupStale(ctx context.Context, libraryID ids.LibraryID, olderThan time.Duration) (int, error) {
	query := `DELETE FROM folder_inventory WHERE library_id = $1 AND last_seen_at < now() - $2 * interval '1 second'`
	res, err := s.db.ExecContext(ctx, query, libraryID, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteByPathPrefixes removes every row for libraryID whose folder_path
// starts with one of prefixes, used by the demo resizer (C10).
func (s *PostgresStore) DeleteByPathPrefixes(ctx context.Context, libraryID ids.LibraryID, prefixes []string) (int, error) {
	if len(prefixes) == 0 {
		return 0, nil
	}
	query := `DELETE FROM folder_inventory WHERE library_id = $1 AND folder_path LIKE ANY($2)`
	patterns := make([]string, len(prefixes))
	for i, p := range prefixes {
		patterns[i] = p + "%"
	}
	res, err := s.db.ExecContext(ctx, query, libraryID, pq.Array(patterns))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// FoldersNeedingScan implements the eligible-folders ordering from
// spec.md §4.2.1 directly in SQL via a CASE-based priority class.
func (s *PostgresStore) FoldersNeedingScan(ctx context.Context, filter Filter) ([]Folder, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	where = append(where, "(next_retry_at IS NULL OR next_retry_at <= now())")
	if filter.LibraryID != nil {
		where = append(where, "library_id = "+arg(*filter.LibraryID))
	}
	if filter.ProcessingStatus != nil {
		where = append(where, "status = "+arg(*filter.ProcessingStatus))
	}
	if filter.FolderType != nil {
		where = append(where, "folder_type = "+arg(*filter.FolderType))
	}
	if filter.MaxAttempts != nil {
		where = append(where, "processing_attempts < "+arg(*filter.MaxAttempts))
	}

	threshold := -1
	if filter.ErrorRetryThreshold != nil {
		threshold = *filter.ErrorRetryThreshold
	}
	thresholdArg := arg(threshold)

	query := `
		SELECT ` + folderColumns + `,
			CASE
				WHEN status = 'pending' THEN 1
				WHEN status = 'failed' AND processing_attempts < ` + thresholdArg + ` THEN 2
				ELSE 3
			END AS priority_class
		FROM folder_inventory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY priority_class ASC, processing_attempts ASC, last_seen_at ASC
		LIMIT ` + arg(filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		var f Folder
		var parentID sql.NullString
		var extensions pq.StringArray
		var lastModified sql.NullTime
		var metadata []byte
		var class int
		if err := rows.Scan(
			&f.ID, &f.LibraryID, &parentID, &f.FolderPath, &f.FolderType, &f.Status,
			&f.LastError, &f.ProcessingAttempts, &f.NextRetryAt, &f.LastSeenAt, &f.LastProcessedAt,
			&f.DiscoveredAt, &f.DiscoverySource, &lastModified, &metadata,
			&f.TotalFiles, &f.ProcessedFiles, &f.TotalBytes, &extensions, &f.CreatedAt, &f.UpdatedAt,
			&class,
		); err != nil {
			return nil, err
		}
		if lastModified.Valid {
			t := lastModified.Time
			f.LastModified = &t
		}
		f.Metadata = json.RawMessage(metadata)
		f.Extensions = []string(extensions)
		out = append(out, f)
	}
	return out, rows.Err()
}

func requireRowAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
