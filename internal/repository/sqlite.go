package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-dashboard/internal/meter"
)

// Timestamps are stored as Unix nanoseconds so ORDER BY created_at is chronological.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS meters (
		id               TEXT PRIMARY KEY,
		meter_id         TEXT NOT NULL,
		consumer_id      TEXT NOT NULL,
		meter_id_norm    TEXT NOT NULL,
		consumer_id_norm TEXT NOT NULL,
		value            REAL NOT NULL,
		image_ref        TEXT NOT NULL DEFAULT '',
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_meter_norm ON meters (meter_id_norm);
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_consumer_norm ON meters (consumer_id_norm);
	CREATE INDEX IF NOT EXISTS idx_meters_created_at ON meters (created_at DESC);
`

// sqlite reports unique violations by column rather than by index name
var sqliteUniqueColumns = map[string]string{
	"meters.meter_id_norm":    meter.ConstraintMeterNorm,
	"meters.consumer_id_norm": meter.ConstraintConsumerNorm,
}

// SQLite handles meter persistence in an embedded SQLite database
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite meter repository
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// EnsureSchema creates the meters table and its indexes when missing
func (r *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return translateSQLiteError("ensure schema", err)
	}
	return nil
}

// FindConflicts returns rows sharing either canonical identifier
func (r *SQLite) FindConflicts(ctx context.Context, meterIDNorm, consumerIDNorm string) ([]meter.Meter, error) {
	query, args := buildConflictQuery(sqliteDialect, meterIDNorm, consumerIDNorm)
	return r.queryMeters(ctx, "find conflicting meters", query, args...)
}

// Insert inserts a meter row; unique index violations surface as *meter.ConflictError
func (r *SQLite) Insert(ctx context.Context, m *meter.Meter) error {
	query := `
		INSERT INTO meters (` + meterColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(),
		m.MeterID,
		m.ConsumerID,
		m.MeterIDNorm,
		m.ConsumerIDNorm,
		m.Value,
		m.ImageRef,
		m.CreatedAt.UnixNano(),
		m.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return translateSQLiteError("insert meter", err)
	}

	return nil
}

// Get retrieves a meter by id
func (r *SQLite) Get(ctx context.Context, id uuid.UUID) (*meter.Meter, error) {
	query := `SELECT ` + meterColumns + ` FROM meters WHERE id = ?`

	m, err := scanSQLiteMeter(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &meter.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, translateSQLiteError("query meter", err)
	}
	return m, nil
}

// UpdateValue sets the reading and refreshes updated_at; reports whether a row changed
func (r *SQLite) UpdateValue(ctx context.Context, id uuid.UUID, value float64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE meters SET value = ?, updated_at = ? WHERE id = ?`,
		value, at.UnixNano(), id.String())
	if err != nil {
		return false, translateSQLiteError("update meter value", err)
	}
	return affected(res), nil
}

// UpdateValueByMeterID sets the reading of the meter with the given canonical meter id
func (r *SQLite) UpdateValueByMeterID(ctx context.Context, meterIDNorm string, value float64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE meters SET value = ?, updated_at = ? WHERE meter_id_norm = ?`,
		value, at.UnixNano(), meterIDNorm)
	if err != nil {
		return false, translateSQLiteError("update meter value", err)
	}
	return affected(res), nil
}

// Delete removes a meter row and reports whether it existed
func (r *SQLite) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM meters WHERE id = ?`, id.String())
	if err != nil {
		return false, translateSQLiteError("delete meter", err)
	}
	return affected(res), nil
}

// Query returns one page of matching meters and the total match count
func (r *SQLite) Query(ctx context.Context, q meter.Query) ([]meter.Meter, int, error) {
	countSQL, countArgs := buildCountQuery(sqliteDialect, q)

	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, translateSQLiteError("count meters", err)
	}

	pageSQL, pageArgs := buildPageQuery(sqliteDialect, q)
	meters, err := r.queryMeters(ctx, "query meters", pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return meters, total, nil
}

// Count returns the number of meters regardless of filters
func (r *SQLite) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meters`).Scan(&total); err != nil {
		return 0, translateSQLiteError("count meters", err)
	}
	return total, nil
}

func (r *SQLite) queryMeters(ctx context.Context, op, query string, args ...any) ([]meter.Meter, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateSQLiteError(op, err)
	}
	defer rows.Close()

	var meters []meter.Meter
	for rows.Next() {
		m, err := scanSQLiteMeter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meter: %w", err)
		}
		meters = append(meters, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, translateSQLiteError(op, err)
	}

	return meters, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMeter(row rowScanner) (*meter.Meter, error) {
	var (
		m         meter.Meter
		id        string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&id,
		&m.MeterID,
		&m.ConsumerID,
		&m.MeterIDNorm,
		&m.ConsumerIDNorm,
		&m.Value,
		&m.ImageRef,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid meter id %q: %w", id, err)
	}
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	m.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &m, nil
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

// translateSQLiteError maps driver errors onto the meter error taxonomy
func translateSQLiteError(op string, err error) error {
	msg := err.Error()
	if idx := strings.Index(msg, "UNIQUE constraint failed: "); idx >= 0 {
		column := strings.TrimSpace(msg[idx+len("UNIQUE constraint failed: "):])
		if sp := strings.IndexAny(column, " ,"); sp >= 0 {
			column = column[:sp]
		}
		return meter.ConflictFromConstraint(sqliteUniqueColumns[column])
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return &meter.StoreUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
