package db

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// migrationFiles lists dir's .sql files in apply order (000 first).
func migrationFiles(dir string) ([]string, error) {
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func migrationVersion(filename string) string {
	return strings.Split(filename, "_")[0]
}

// migrateSQL applies pending SQLite migrations, one transaction per file.
func migrateSQL(ctx context.Context, db *sql.DB, logger *zap.SugaredLogger) error {
	const dir = "migrations/sqlite"
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}

	applied := 0
	for _, filename := range files {
		version := migrationVersion(filename)

		var exists bool
		err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			// Table doesn't exist yet - this must be migration 000
			if version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			logger.Debugw("Skipping migration (already applied)", "migration", filename)
			continue
		}

		sqlBytes, err := migrations.ReadFile(path.Join(dir, filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}
		logger.Infow("Applying migration", "migration", filename, "version", version)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	logger.Infow("Migrations complete", "driver", DriverSQLite, "total_migrations", len(files), "applied", applied)
	return nil
}

// migratePostgres applies pending PostgreSQL migrations, one transaction per file.
func migratePostgres(ctx context.Context, pool *pgxpool.Pool, logger *zap.SugaredLogger) error {
	const dir = "migrations/postgres"
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}

	// 000 is idempotent (IF NOT EXISTS), so the version table always exists before the loop checks it.
	bootstrap, err := migrations.ReadFile(path.Join(dir, files[0]))
	if err != nil {
		return errors.Wrapf(err, "read %s", files[0])
	}
	if _, err := pool.Exec(ctx, string(bootstrap)); err != nil {
		return errors.Wrapf(err, "execute %s", files[0])
	}

	applied := 0
	for _, filename := range files {
		version := migrationVersion(filename)

		var exists bool
		if err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&exists); err != nil {
			return errors.Wrapf(err, "check %s", filename)
		}
		if exists {
			logger.Debugw("Skipping migration (already applied)", "migration", filename)
			continue
		}

		sqlBytes, err := migrations.ReadFile(path.Join(dir, filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}
		logger.Infow("Applying migration", "migration", filename, "version", version)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrapf(err, "execute %s", filename)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrapf(err, "record %s", filename)
		}
		if err := tx.Commit(ctx); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	logger.Infow("Migrations complete", "driver", DriverPostgres, "total_migrations", len(files), "applied", applied)
	return nil
}
