package database

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

// MigrationsFS holds the embedded migration files, one directory per
// driver (sqlite/, postgres/). The migrations package sets it in init.
var MigrationsFS fs.FS

// gooseMu serialises access to goose's package-level state.
var gooseMu sync.Mutex

// gooseDialects maps our driver names to goose dialect names.
var gooseDialects = map[string]string{
	DriverSQLite:   "sqlite3",
	DriverPostgres: "pgx",
}

// Migrate applies all pending migrations for the database's driver.
// Each migration runs in its own transaction and re-running is a no-op.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any migration fails
func (db *DB) Migrate(ctx context.Context) error {
	return db.withGoose(func(dir string) error {
		if err := goose.UpContext(ctx, db.DB, dir); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	return db.withGoose(func(dir string) error {
		if err := goose.DownContext(ctx, db.DB, dir); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		return nil
	})
}

// SchemaVersion returns the version of the last applied migration.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	var version int64
	err := db.withGoose(func(string) error {
		v, err := goose.GetDBVersionContext(ctx, db.DB)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func (db *DB) withGoose(fn func(dir string) error) error {
	if MigrationsFS == nil {
		return fmt.Errorf("no migrations registered")
	}
	dialect, ok := gooseDialects[db.driver]
	if !ok {
		return fmt.Errorf("no migration dialect for driver %q", db.driver)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(MigrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}
	return fn(db.driver)
}
