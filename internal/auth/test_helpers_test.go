package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/authgate/internal/infrastructure/database"
	_ "github.com/nerrad567/authgate/migrations" // registers embedded migrations
)

// testKey is a 48-byte HMAC key.
var testKey = []byte("0123456789abcdef0123456789abcdef0123456789abcdef")

const testPassword = "correct-horse-battery"

// fakeClock is a settable clock shared by Guard, TokenEngine and Gate in tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testDB opens a temp-file SQLite database with the real migrations applied.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver:      database.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

// testHasher uses bcrypt at minimum cost so tests stay fast.
func testHasher(t testing.TB) *PasswordHasher {
	t.Helper()

	h, err := NewPasswordHasher(AlgorithmBcrypt, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewPasswordHasher() error = %v", err)
	}
	return h
}

func testTokenEngine(t testing.TB, clock *fakeClock) *TokenEngine {
	t.Helper()

	opts := []TokenOption{}
	if clock != nil {
		opts = append(opts, WithTokenClock(clock.Now))
	}
	e, err := NewTokenEngine(TokenConfig{
		Algorithm:  "HS512",
		Key:        testKey,
		Issuer:     "authgate-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	}, opts...)
	if err != nil {
		t.Fatalf("NewTokenEngine() error = %v", err)
	}
	return e
}

// seedRecord inserts an enabled account with testPassword.
func seedRecord(t *testing.T, store RecordStore, hasher *PasswordHasher, email string, role Role) *SecurityRecord {
	t.Helper()

	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	rec := &SecurityRecord{
		Email:        email,
		FullName:     "Test " + string(role),
		PasswordHash: hash,
		Role:         role,
		Enabled:      true,
	}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("creating record %s: %v", email, err)
	}
	return rec
}

// eventLog collects events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Record(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func emailIdent(email string) Identifier {
	return Identifier{Kind: IdentifierEmail, Value: email}
}
