package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_Argon2idRoundTrip(t *testing.T) {
	h, err := NewPasswordHasher(AlgorithmArgon2id, 0)
	if err != nil {
		t.Fatalf("NewPasswordHasher() error = %v", err)
	}

	hash, err := h.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("hash should be PHC argon2id, got %q", hash)
	}

	ok, err := h.Verify(testPassword, hash)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v; want true, nil", ok, err)
	}

	ok, err = h.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v; want false, nil", ok, err)
	}
}

func TestPasswordHasher_BcryptRoundTrip(t *testing.T) {
	h := testHasher(t)

	hash, err := h.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("hash should be bcrypt, got %q", hash)
	}

	if ok, _ := h.Verify(testPassword, hash); !ok { //nolint:errcheck // checked via ok
		t.Error("Verify() should accept the correct password")
	}
	if ok, _ := h.Verify("wrong-password", hash); ok { //nolint:errcheck // checked via ok
		t.Error("Verify() should reject a wrong password")
	}
}

func TestPasswordHasher_VerifiesEitherFormat(t *testing.T) {
	argon, err := NewPasswordHasher(AlgorithmArgon2id, 0)
	if err != nil {
		t.Fatalf("NewPasswordHasher() error = %v", err)
	}
	argonHash, err := argon.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	// A bcrypt-configured hasher still verifies existing argon2id hashes.
	ok, err := testHasher(t).Verify(testPassword, argonHash)
	if err != nil || !ok {
		t.Fatalf("Verify(argon2id hash) = %v, %v; want true, nil", ok, err)
	}
}

func TestPasswordHasher_UniqueSalts(t *testing.T) {
	h := testHasher(t)

	h1, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	h2, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password should differ")
	}
}

func TestPasswordHasher_InvalidHashFormat(t *testing.T) {
	h := testHasher(t)

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plaintext", "plaintext"},
		{"unknown algorithm", "$scrypt$ln=16,r=8,p=1$salt$hash"},
		{"argon2id too few parts", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"argon2id wrong version", "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.Verify("password", tt.hash)
			if err == nil {
				t.Error("Verify() should return an error for an invalid hash")
			}
			if ok {
				t.Error("Verify() must never accept an invalid hash")
			}
		})
	}
}

func TestNewPasswordHasher_Rejects(t *testing.T) {
	if _, err := NewPasswordHasher("md5", 0); err == nil {
		t.Error("unknown algorithm should be rejected")
	}
	if _, err := NewPasswordHasher(AlgorithmBcrypt, bcrypt.MaxCost+1); err == nil {
		t.Error("out-of-range bcrypt cost should be rejected")
	}
}
