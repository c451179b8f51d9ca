package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jjenkins/lawarchive/internal/model"
)

// SourceStore handles database operations for sources and their versions
type SourceStore struct {
	db *DB
}

// NewSourceStore creates a new SourceStore
func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

// GetByPath retrieves a source by its path
func (s *SourceStore) GetByPath(ctx context.Context, path string) (*model.Source, error) {
	query := `
		SELECT id, path, jurisdiction, doc_type, source_url, title, created_at
		FROM sources
		WHERE path = $1
	`

	var src model.Source
	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&src.ID,
		&src.Path,
		&src.Jurisdiction,
		&src.DocType,
		&src.SourceURL,
		&src.Title,
		&src.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source %s: %w", path, err)
	}

	return &src, nil
}

// UpsertSource inserts or updates a source keyed by path. An existing row
// keeps its ID and creation time, which are copied back into src.
func (s *SourceStore) UpsertSource(ctx context.Context, src *model.Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sources (id, path, jurisdiction, doc_type, source_url, title, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (path) DO UPDATE SET
			jurisdiction = EXCLUDED.jurisdiction,
			doc_type = EXCLUDED.doc_type,
			source_url = EXCLUDED.source_url,
			title = EXCLUDED.title
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		src.ID,
		src.Path,
		src.Jurisdiction,
		src.DocType,
		src.SourceURL,
		src.Title,
		src.CreatedAt,
	).Scan(&src.ID, &src.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", src.Path, err)
	}

	return nil
}

const versionColumns = `
	id, source_id, content_hash, storage_key, file_size_bytes, mime_type,
	published_at, retrieved_at, applies_from_year, applies_to_year,
	is_current, superseded
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (model.Version, error) {
	var (
		v         model.Version
		published sql.NullTime
		from, to  sql.NullInt64
	)
	err := row.Scan(
		&v.ID,
		&v.SourceID,
		&v.ContentHash,
		&v.StorageKey,
		&v.FileSizeBytes,
		&v.MimeType,
		&published,
		&v.RetrievedAt,
		&from,
		&to,
		&v.IsCurrent,
		&v.Superseded,
	)
	v.PublishedAt = timePtr(published)
	v.AppliesFromYear = intPtr(from)
	v.AppliesToYear = intPtr(to)
	return v, err
}

// GetVersion retrieves a version by ID
func (s *SourceStore) GetVersion(ctx context.Context, id string) (*model.Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version %s: %w", id, err)
	}
	return &v, nil
}

// GetVersions retrieves all versions of a source ordered by retrieval time
func (s *SourceStore) GetVersions(ctx context.Context, sourceID string) ([]model.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE source_id = $1 ORDER BY retrieved_at, id`

	rows, err := s.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get versions for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	var versions []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

func lockedVersions(ctx context.Context, tx *sql.Tx, sourceID string) ([]model.Version, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE source_id = $1 FOR UPDATE`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func insertVersion(ctx context.Context, tx *sql.Tx, v *model.Version) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO versions (`+versionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		v.ID,
		v.SourceID,
		v.ContentHash,
		v.StorageKey,
		v.FileSizeBytes,
		v.MimeType,
		nullTime(v.PublishedAt),
		v.RetrievedAt,
		nullInt(v.AppliesFromYear),
		nullInt(v.AppliesToYear),
		v.IsCurrent,
		v.Superseded,
	)
	return err
}

func retireVersion(ctx context.Context, tx *sql.Tx, v *model.Version) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE versions SET is_current = $2, applies_to_year = $3, superseded = $4
		WHERE id = $1
	`, v.ID, v.IsCurrent, nullInt(v.AppliesToYear), v.Superseded)
	return err
}
