package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nerrad567/authgate/internal/infrastructure/database"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = `id, email, phone, full_name, password_hash, role, enabled,
	failed_attempts, locked_until, token_version, revision, created_at, updated_at`

// SQLRecordRepository implements RecordStore on the users table.
// The same queries serve SQLite and PostgreSQL.
type SQLRecordRepository struct {
	db *sql.DB
	ph database.Placeholder
	now func() time.Time
}

// NewSQLRecordRepository creates a repository.
//
// Parameters:
//   - db: open connection with migrations applied
//   - ph: placeholder style of the driver (database.DB.Placeholder)
func NewSQLRecordRepository(db *sql.DB, ph database.Placeholder) *SQLRecordRepository {
	return &SQLRecordRepository{db: db, ph: ph, now: time.Now}
}

// Create inserts a new record. ID is generated when empty.
func (r *SQLRecordRepository) Create(ctx context.Context, rec *SecurityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := r.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Revision = 1

	_, err := r.db.ExecContext(ctx, r.ph.Rebind(`INSERT INTO users (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, nullString(rec.Email), nullString(rec.Phone), rec.FullName,
		rec.PasswordHash, string(rec.Role), rec.Enabled, rec.FailedAttempts,
		nullTime(rec.LockedUntil), rec.TokenVersion, rec.Revision,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("creating security record: %w", err)
	}
	return nil
}

// GetByID loads a record by user ID.
func (r *SQLRecordRepository) GetByID(ctx context.Context, id string) (*SecurityRecord, error) {
	return r.get(ctx, "SELECT "+recordColumns+" FROM users WHERE id = ?", id)
}

// GetByIdentifier loads a record by normalised email or phone.
func (r *SQLRecordRepository) GetByIdentifier(ctx context.Context, ident Identifier) (*SecurityRecord, error) {
	column := "email"
	if ident.Kind == IdentifierPhone {
		column = "phone"
	}
	return r.get(ctx, "SELECT "+recordColumns+" FROM users WHERE "+column+" = ?", ident.Value)
}

// Update writes rec back if its revision is still current and its token
// version has not gone backwards.
func (r *SQLRecordRepository) Update(ctx context.Context, rec *SecurityRecord) error {
	now := r.now().UTC()

	result, err := r.db.ExecContext(ctx, r.ph.Rebind(`UPDATE users SET
		email = ?, phone = ?, full_name = ?, password_hash = ?, role = ?, enabled = ?,
		failed_attempts = ?, locked_until = ?, token_version = ?,
		revision = revision + 1, updated_at = ?
		WHERE id = ? AND revision = ? AND token_version <= ?`),
		nullString(rec.Email), nullString(rec.Phone), rec.FullName, rec.PasswordHash,
		string(rec.Role), rec.Enabled, rec.FailedAttempts, nullTime(rec.LockedUntil),
		rec.TokenVersion, formatTime(now),
		rec.ID, rec.Revision, rec.TokenVersion,
	)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("updating security record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating security record: %w", err)
	}
	if rows == 0 {
		return r.classifyMiss(ctx, rec)
	}

	rec.Revision++
	rec.UpdatedAt = now
	return nil
}

// classifyMiss explains why a conditional update touched no rows.
func (r *SQLRecordRepository) classifyMiss(ctx context.Context, rec *SecurityRecord) error {
	var revision, version int64
	err := r.db.QueryRowContext(ctx,
		r.ph.Rebind("SELECT revision, token_version FROM users WHERE id = ?"), rec.ID,
	).Scan(&revision, &version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrRecordNotFound
	case err != nil:
		return fmt.Errorf("checking security record: %w", err)
	case revision == rec.Revision && rec.TokenVersion < version:
		return ErrVersionRegression
	default:
		return ErrStaleRecord
	}
}

// Count returns the number of records.
func (r *SQLRecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting security records: %w", err)
	}
	return count, nil
}

// List returns all records ordered by creation time.
func (r *SQLRecordRepository) List(ctx context.Context) ([]SecurityRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing security records: %w", err)
	}
	defer rows.Close()

	records := []SecurityRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating security records: %w", err)
	}
	return records, nil
}

func (r *SQLRecordRepository) get(ctx context.Context, query string, args ...any) (*SecurityRecord, error) {
	return scanRecord(r.db.QueryRowContext(ctx, r.ph.Rebind(query), args...))
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*SecurityRecord, error) {
	var (
		rec                  SecurityRecord
		email, phone, locked sql.NullString
		role                 string
		createdAt, updatedAt string
	)

	err := s.Scan(&rec.ID, &email, &phone, &rec.FullName, &rec.PasswordHash, &role,
		&rec.Enabled, &rec.FailedAttempts, &locked, &rec.TokenVersion, &rec.Revision,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("scanning security record: %w", err)
	}

	rec.Email = email.String
	rec.Phone = phone.String
	rec.Role = Role(role)
	if locked.Valid {
		t, err := parseTime(locked.String)
		if err != nil {
			return nil, fmt.Errorf("parsing locked_until: %w", err)
		}
		rec.LockedUntil = &t
	}
	rec.CreatedAt, _ = parseTime(createdAt) //nolint:errcheck // format is controlled
	rec.UpdatedAt, _ = parseTime(updatedAt) //nolint:errcheck // format is controlled

	return &rec, nil
}

// uniqueViolation maps a duplicate-key error from either driver onto
// ErrEmailTaken or ErrPhoneTaken. Returns nil for any other error.
func uniqueViolation(err error) error {
	var detail string

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		if pgErr.Code != pgUniqueViolation {
			return nil
		}
		detail = pgErr.ConstraintName + " " + pgErr.Detail
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		detail = err.Error()
	default:
		return nil
	}

	switch {
	case strings.Contains(detail, "email"):
		return ErrEmailTaken
	case strings.Contains(detail, "phone"):
		return ErrPhoneTaken
	default:
		return nil
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
