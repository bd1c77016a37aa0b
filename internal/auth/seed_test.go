package auth

import (
	"context"
	"log/slog"
	"testing"
)

func TestSeedAdmin_CreatesOnEmptyStore(t *testing.T) {
	db := testDB(t)
	repo := NewSQLRecordRepository(db.DB, db.Placeholder())
	hasher := testHasher(t)
	ctx := context.Background()

	password, err := SeedAdmin(ctx, repo, hasher, "", "", slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedAdmin() should return the generated password")
	}

	admin, err := repo.GetByIdentifier(ctx, emailIdent(defaultAdminEmail))
	if err != nil {
		t.Fatalf("GetByIdentifier(admin) error = %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", admin.Role, RoleAdmin)
	}
	if !admin.Enabled {
		t.Error("seeded admin should be enabled")
	}

	ok, err := hasher.Verify(password, admin.PasswordHash)
	if err != nil || !ok {
		t.Errorf("generated password does not verify: ok=%v err=%v", ok, err)
	}
}

func TestSeedAdmin_ConfiguredCredentials(t *testing.T) {
	store := NewMemoryStore()
	hasher := testHasher(t)
	ctx := context.Background()

	password, err := SeedAdmin(ctx, store, hasher, "Root@Example.com", "configured-secret", slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "configured-secret" {
		t.Errorf("password = %q, want the configured one", password)
	}
	if _, err := store.GetByIdentifier(ctx, emailIdent("root@example.com")); err != nil {
		t.Errorf("admin not stored under normalised email: %v", err)
	}
}

func TestSeedAdmin_SkipsWhenAccountsExist(t *testing.T) {
	store := NewMemoryStore()
	hasher := testHasher(t)
	ctx := context.Background()
	seedRecord(t, store, hasher, "existing@example.com", RoleUser)

	password, err := SeedAdmin(ctx, store, hasher, "", "", slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() should return an empty password when accounts exist")
	}
	if n, _ := store.Count(ctx); n != 1 { //nolint:errcheck // memory store never errors
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestSeedAdmin_RejectsBadEmail(t *testing.T) {
	_, err := SeedAdmin(context.Background(), NewMemoryStore(), testHasher(t), "not-an-email", "", slog.Default())
	if err == nil {
		t.Fatal("SeedAdmin() should reject an invalid bootstrap email")
	}
}

func TestSeedAdmin_UniquePasswords(t *testing.T) {
	hasher := testHasher(t)
	ctx := context.Background()

	pw1, _ := SeedAdmin(ctx, NewMemoryStore(), hasher, "", "", slog.Default()) //nolint:errcheck // compared below
	pw2, _ := SeedAdmin(ctx, NewMemoryStore(), hasher, "", "", slog.Default()) //nolint:errcheck // compared below
	if pw1 == "" || pw1 == pw2 {
		t.Error("generated passwords should be unique across stores")
	}
}
