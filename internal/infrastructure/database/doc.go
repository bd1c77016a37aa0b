// Package database provides SQL connectivity for the security record store
// and the audit trail.
//
// Two backends are supported:
//   - SQLite (mattn/go-sqlite3): single file, WAL mode, one writer
//   - PostgreSQL (pgx stdlib driver): pooled, for multi-instance deployments
//
// Repositories write queries with "?" placeholders and pass them through
// DB.Placeholder().Rebind so the same SQL serves both drivers.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - The SQLite file is chmod 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: "authgate.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are goose SQL files embedded by the migrations package, one
// directory per driver. Migrations are additive: new columns must be
// nullable or carry a default.
package database
