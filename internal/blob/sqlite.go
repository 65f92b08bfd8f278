package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS meter_images (
		id           TEXT PRIMARY KEY,
		filename     TEXT NOT NULL,
		content_type TEXT NOT NULL,
		data         BLOB NOT NULL,
		created_at   INTEGER NOT NULL
	);
`

// SQLite stores images in the meter_images table of an embedded database
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed blob store
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// EnsureSchema creates the meter_images table when missing
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create meter_images table: %w", err)
	}
	return nil
}

// Driver returns the blob driver identifier
func (s *SQLite) Driver() Driver { return DriverDatabase }

// Put inserts the payload under a fresh id
func (s *SQLite) Put(ctx context.Context, data []byte, opts PutOptions) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meter_images (id, filename, content_type, data, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, opts.Filename, contentTypeOrDefault(opts.ContentType), data, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert image: %w", err)
	}
	return id, nil
}

// Get loads a payload by id
func (s *SQLite) Get(ctx context.Context, id string) (*Object, error) {
	obj := Object{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT filename, content_type, data FROM meter_images WHERE id = ?`, id).
		Scan(&obj.Filename, &obj.ContentType, &obj.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query image: %w", err)
	}
	return &obj, nil
}

// Delete removes a payload by id
func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM meter_images WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}
