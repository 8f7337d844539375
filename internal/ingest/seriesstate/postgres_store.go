package seriesstate

import (
	"context"
	"database/sql"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
)

// PostgresStore is the Store backed by the series_scan_state table
// (internal/db/migrations/0002_ingest_core.up.sql), ported from the
// original's PostgresSeriesScanStateRepository.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const seriesStateColumns = `library_id, series_root_path, status, series_id,
	series_title, series_slug, series_year, series_region,
	seeded_at, last_attempt_at, attempts, resolved_at, failed_at, failure_reason,
	created_at, updated_at`

func scanState(row interface{ Scan(dest ...any) error }) (State, error) {
	var st State
	var seriesID sql.NullString
	var title, slug, region sql.NullString
	var year sql.NullInt32

	err := row.Scan(
		&st.LibraryID, &st.SeriesRootPath, &st.Status, &seriesID,
		&title, &slug, &year, &region,
		&st.SeededAt, &st.LastAttemptAt, &st.Attempts, &st.ResolvedAt, &st.FailedAt, &st.FailureReason,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return State{}, err
	}

	if seriesID.Valid {
		u, perr := ids.ParseLibraryID(seriesID.String)
		if perr == nil {
			sid := ids.SeriesID(u)
			st.SeriesID = &sid
		}
	}
	if title.Valid || slug.Valid || year.Valid || region.Valid {
		st.Hint = &ports.SeriesHint{
			Title:  title.String,
			Slug:   slug.String,
			Year:   int(year.Int32),
			Region: region.String,
		}
	}
	return st, nil
}

func (s *PostgresStore) Get(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string) (State, error) {
	query := `SELECT ` + seriesStateColumns + ` FROM series_scan_state WHERE library_id = $1 AND series_root_path = $2`
	st, err := scanState(s.db.QueryRowContext(ctx, query, libraryID, seriesRootPath))
	if err == sql.ErrNoRows {
		return State{}, ErrNotFound
	}
	return st, err
}

// MarkDiscovered upserts with the sticky-Resolved guard: status only
// advances to Discovered when the row isn't already Resolved, and an
// incoming nil hint never overwrites a stored one (COALESCE).
func (s *PostgresStore) MarkDiscovered(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, hint *ports.SeriesHint) (State, error) {
	query := `
		INSERT INTO series_scan_state (
			library_id, series_root_path, status, series_title, series_slug, series_year, series_region
		) VALUES ($1, $2, 'discovered', $3, $4, $5, $6)
		ON CONFLICT (library_id, series_root_path) DO UPDATE SET
			status = CASE WHEN series_scan_state.status = 'resolved' THEN series_scan_state.status ELSE 'discovered' END,
			series_title = COALESCE($3, series_scan_state.series_title),
			series_slug = COALESCE($4, series_scan_state.series_slug),
			series_year = COALESCE($5, series_scan_state.series_year),
			series_region = COALESCE($6, series_scan_state.series_region),
			updated_at = now()
		RETURNING ` + seriesStateColumns

	return scanState(s.db.QueryRowContext(ctx, query, libraryID, seriesRootPath, hintField(hint, "title"), hintField(hint, "slug"), hintYear(hint), hintField(hint, "region")))
}

// MarkSeeded upserts with the sticky-Resolved guard and bumps attempts.
func (s *PostgresStore) MarkSeeded(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, hint *ports.SeriesHint) (State, error) {
	query := `
		INSERT INTO series_scan_state (
			library_id, series_root_path, status, series_title, series_slug, series_year, series_region,
			seeded_at, last_attempt_at, attempts
		) VALUES ($1, $2, 'seeded', $3, $4, $5, $6, now(), now(), 1)
		ON CONFLICT (library_id, series_root_path) DO UPDATE SET
			status = CASE WHEN series_scan_state.status = 'resolved' THEN series_scan_state.status ELSE 'seeded' END,
			series_title = COALESCE($3, series_scan_state.series_title),
			series_slug = COALESCE($4, series_scan_state.series_slug),
			series_year = COALESCE($5, series_scan_state.series_year),
			series_region = COALESCE($6, series_scan_state.series_region),
			seeded_at = COALESCE(series_scan_state.seeded_at, now()),
			last_attempt_at = now(),
			attempts = series_scan_state.attempts + 1,
			updated_at = now()
		RETURNING ` + seriesStateColumns

	return scanState(s.db.QueryRowContext(ctx, query, libraryID, seriesRootPath, hintField(hint, "title"), hintField(hint, "slug"), hintYear(hint), hintField(hint, "region")))
}

// MarkResolved upserts, always forcing status to Resolved, clearing any
// prior failure, and synthesizing a hint from the series ref when none
// exists yet.
func (s *PostgresStore) MarkResolved(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, ref ports.SeriesRef) (State, error) {
	query := `
		INSERT INTO series_scan_state (
			library_id, series_root_path, status, series_id, series_title, series_slug,
			seeded_at, last_attempt_at, attempts, resolved_at
		) VALUES ($1, $2, 'resolved', $3, $4, $5, now(), now(), 1, now())
		ON CONFLICT (library_id, series_root_path) DO UPDATE SET
			status = 'resolved',
			series_id = $3,
			series_title = COALESCE(series_scan_state.series_title, $4),
			series_slug = COALESCE(series_scan_state.series_slug, $5),
			resolved_at = now(),
			failed_at = NULL,
			failure_reason = NULL,
			updated_at = now()
		RETURNING ` + seriesStateColumns

	var title, slug any
	if ref.Title != "" {
		title = ref.Title
	}
	if ref.Slug != "" {
		slug = ref.Slug
	}
	return scanState(s.db.QueryRowContext(ctx, query, libraryID, seriesRootPath, ref.ID, title, slug))
}

// MarkFailed upserts, but leaves status (and the failure fields) alone
// when the row is already Resolved — resolved state is sticky even
// against a failure report (spec.md §4.3).
func (s *PostgresStore) MarkFailed(ctx context.Context, libraryID ids.LibraryID, seriesRootPath string, reason string) (State, error) {
	query := `
		INSERT INTO series_scan_state (
			library_id, series_root_path, status, failed_at, failure_reason
		) VALUES ($1, $2, 'failed', now(), $3)
		ON CONFLICT (library_id, series_root_path) DO UPDATE SET
			status = CASE WHEN series_scan_state.status = 'resolved' THEN series_scan_state.status ELSE 'failed' END,
			failed_at = CASE WHEN series_scan_state.status = 'resolved' THEN series_scan_state.failed_at ELSE now() END,
			failure_reason = CASE WHEN series_scan_state.status = 'resolved' THEN series_scan_state.failure_reason ELSE $3 END,
			updated_at = now()
		RETURNING ` + seriesStateColumns

	return scanState(s.db.QueryRowContext(ctx, query, libraryID, seriesRootPath, reason))
}

func hintField(hint *ports.SeriesHint, field string) any {
	if hint == nil {
		return nil
	}
	switch field {
	case "title":
		if hint.Title == "" {
			return nil
		}
		return hint.Title
	case "slug":
		if hint.Slug == "" {
			return nil
		}
		return hint.Slug
	case "region":
		if hint.Region == "" {
			return nil
		}
		return hint.Region
	}
	return nil
}

func hintYear(hint *ports.SeriesHint) any {
	if hint == nil || hint.Year == 0 {
		return nil
	}
	return hint.Year
}
