package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens an embedded SQLite database at path.
// Writes are serialized through a single connection.
func OpenSQLite(lc fx.Lifecycle, logger *zap.Logger, path string) (*sql.DB, error) {
	logger.Info("opening sqlite database", zap.String("path", path))

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to open sqlite %q: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("[DATABASE] failed to set WAL mode: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("[DATABASE CONNECTION FAILED] cannot open sqlite at %s: %w", path, err)
			}
			logger.Info("sqlite database ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("closing sqlite database")
			return sqlDB.Close()
		},
	})

	return sqlDB, nil
}
