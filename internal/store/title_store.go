package store

import (
	"context"
	"fmt"
)

// TitleStore handles database operations for title names
type TitleStore struct {
	db *DB
}

// NewTitleStore creates a new TitleStore
func NewTitleStore(db *DB) *TitleStore {
	return &TitleStore{db: db}
}

// UpsertTitle inserts or updates a title name
func (s *TitleStore) UpsertTitle(ctx context.Context, titleNumber int, name string) error {
	query := `
		INSERT INTO titles (title_number, title_name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (title_number) DO UPDATE SET
			title_name = EXCLUDED.title_name,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, titleNumber, name); err != nil {
		return fmt.Errorf("failed to upsert title %d: %w", titleNumber, err)
	}

	return nil
}

// GetAll retrieves every recorded title name keyed by number
func (s *TitleStore) GetAll(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title_number, title_name FROM titles ORDER BY title_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to get titles: %w", err)
	}
	defer rows.Close()

	names := make(map[int]string)
	for rows.Next() {
		var (
			n    int
			name string
		)
		if err := rows.Scan(&n, &name); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		names[n] = name
	}

	return names, rows.Err()
}
