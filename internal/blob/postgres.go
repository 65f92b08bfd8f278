package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS meter_images (
		id           UUID PRIMARY KEY,
		filename     TEXT NOT NULL,
		content_type TEXT NOT NULL,
		data         BYTEA NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	);
`

// Postgres stores images in the meter_images table
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed blob store
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the meter_images table when missing
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create meter_images table: %w", err)
	}
	return nil
}

// Driver returns the blob driver identifier
func (s *Postgres) Driver() Driver { return DriverDatabase }

// Put inserts the payload under a fresh id
func (s *Postgres) Put(ctx context.Context, data []byte, opts PutOptions) (string, error) {
	id := uuid.New()
	query := `
		INSERT INTO meter_images (id, filename, content_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query, id, opts.Filename, contentTypeOrDefault(opts.ContentType), data, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert image: %w", err)
	}
	return id.String(), nil
}

// Get loads a payload by id
func (s *Postgres) Get(ctx context.Context, id string) (*Object, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	obj := Object{ID: id}
	err = s.pool.QueryRow(ctx, `SELECT filename, content_type, data FROM meter_images WHERE id = $1`, uid).
		Scan(&obj.Filename, &obj.ContentType, &obj.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query image: %w", err)
	}
	return &obj, nil
}

// Delete removes a payload by id
func (s *Postgres) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM meter_images WHERE id = $1`, uid); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}
