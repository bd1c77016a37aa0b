package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for a generated admin password.
const seedPasswordBytes = 16

// defaultAdminEmail is used when no bootstrap email is configured.
const defaultAdminEmail = "admin@localhost.localdomain"

// SeedAdmin creates the first ADMIN account when the store is empty.
// If password is empty a random one is generated and logged once; it must
// be changed immediately.
//
// Returns the password used (empty string if seeding was skipped).
func SeedAdmin(ctx context.Context, store RecordStore, hasher *PasswordHasher, email, password string, logger *slog.Logger) (string, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking record count: %w", err)
	}
	if count > 0 {
		logger.Info("accounts exist, skipping admin bootstrap")
		return "", nil
	}

	if email == "" {
		email = defaultAdminEmail
	}
	ident, err := NewIdentifierNormalizer("").Email(email)
	if err != nil {
		return "", fmt.Errorf("bootstrap admin email: %w", err)
	}

	generated := password == ""
	if generated {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil { //nolint:govet // shadow
			return "", fmt.Errorf("generating admin password: %w", err)
		}
		password = hex.EncodeToString(b)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hashing admin password: %w", err)
	}

	admin := &SecurityRecord{
		Email:        ident.Value,
		FullName:     "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
		Enabled:      true,
	}
	if err := store.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating admin account: %w", err)
	}

	if generated {
		logger.Warn("admin account created",
			"email", admin.Email,
			"password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("admin account created", "email", admin.Email)
	}
	return password, nil
}
