package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/meter-dashboard/internal/meter"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS meters (
		id               UUID PRIMARY KEY,
		meter_id         TEXT NOT NULL,
		consumer_id      TEXT NOT NULL,
		meter_id_norm    TEXT NOT NULL,
		consumer_id_norm TEXT NOT NULL,
		value            DOUBLE PRECISION NOT NULL,
		image_ref        TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_meter_norm ON meters (meter_id_norm);
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_consumer_norm ON meters (consumer_id_norm);
	CREATE INDEX IF NOT EXISTS idx_meters_created_at ON meters (created_at DESC);
`

// Postgres handles meter persistence in PostgreSQL
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL meter repository
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the meters table and its indexes when missing
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return translatePgError("ensure schema", err)
	}
	return nil
}

// FindConflicts returns rows sharing either canonical identifier
func (r *Postgres) FindConflicts(ctx context.Context, meterIDNorm, consumerIDNorm string) ([]meter.Meter, error) {
	query, args := buildConflictQuery(postgresDialect, meterIDNorm, consumerIDNorm)
	return r.queryMeters(ctx, "find conflicting meters", query, args...)
}

// Insert inserts a meter row; unique index violations surface as *meter.ConflictError
func (r *Postgres) Insert(ctx context.Context, m *meter.Meter) error {
	query := `
		INSERT INTO meters (` + meterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.MeterID,
		m.ConsumerID,
		m.MeterIDNorm,
		m.ConsumerIDNorm,
		m.Value,
		m.ImageRef,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return translatePgError("insert meter", err)
	}

	return nil
}

// Get retrieves a meter by id
func (r *Postgres) Get(ctx context.Context, id uuid.UUID) (*meter.Meter, error) {
	query := `SELECT ` + meterColumns + ` FROM meters WHERE id = $1`

	m, err := scanMeter(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &meter.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, translatePgError("query meter", err)
	}
	return m, nil
}

// UpdateValue sets the reading and refreshes updated_at; reports whether a row changed
func (r *Postgres) UpdateValue(ctx context.Context, id uuid.UUID, value float64, at time.Time) (bool, error) {
	query := `
		UPDATE meters
		SET value = $1, updated_at = $2
		WHERE id = $3
	`

	tag, err := r.pool.Exec(ctx, query, value, at, id)
	if err != nil {
		return false, translatePgError("update meter value", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateValueByMeterID sets the reading of the meter with the given canonical meter id
func (r *Postgres) UpdateValueByMeterID(ctx context.Context, meterIDNorm string, value float64, at time.Time) (bool, error) {
	query := `
		UPDATE meters
		SET value = $1, updated_at = $2
		WHERE meter_id_norm = $3
	`

	tag, err := r.pool.Exec(ctx, query, value, at, meterIDNorm)
	if err != nil {
		return false, translatePgError("update meter value", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a meter row and reports whether it existed
func (r *Postgres) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM meters WHERE id = $1`, id)
	if err != nil {
		return false, translatePgError("delete meter", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Query returns one page of matching meters and the total match count
func (r *Postgres) Query(ctx context.Context, q meter.Query) ([]meter.Meter, int, error) {
	countSQL, countArgs := buildCountQuery(postgresDialect, q)

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, translatePgError("count meters", err)
	}

	pageSQL, pageArgs := buildPageQuery(postgresDialect, q)
	meters, err := r.queryMeters(ctx, "query meters", pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return meters, total, nil
}

// Count returns the number of meters regardless of filters
func (r *Postgres) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM meters`).Scan(&total); err != nil {
		return 0, translatePgError("count meters", err)
	}
	return total, nil
}

func (r *Postgres) queryMeters(ctx context.Context, op, query string, args ...any) ([]meter.Meter, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgError(op, err)
	}
	defer rows.Close()

	var meters []meter.Meter
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meter: %w", err)
		}
		meters = append(meters, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, translatePgError(op, err)
	}

	return meters, nil
}

func scanMeter(row pgx.Row) (*meter.Meter, error) {
	var m meter.Meter
	err := row.Scan(
		&m.ID,
		&m.MeterID,
		&m.ConsumerID,
		&m.MeterIDNorm,
		&m.ConsumerIDNorm,
		&m.Value,
		&m.ImageRef,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

// translatePgError maps driver errors onto the meter error taxonomy
func translatePgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return meter.ConflictFromConstraint(pgErr.ConstraintName)
	}
	if isPgUnavailable(err) {
		return &meter.StoreUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isPgUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	var netErr net.Error
	return errors.As(err, &connErr) ||
		errors.As(err, &netErr) ||
		pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
