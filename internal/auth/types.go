package auth

import (
	"errors"
	"time"
)

// SecurityRecord is the security-relevant part of a user account.
// It is a flat value: stores hand out copies and accept whole records back.
type SecurityRecord struct {
	ID             string     `json:"id"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	FullName       string     `json:"full_name"`
	PasswordHash   string     `json:"-"` // never serialised
	Role           Role       `json:"role"`
	Enabled        bool       `json:"enabled"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	TokenVersion   int64      `json:"token_version"`

	// Revision is the optimistic-concurrency counter. Stores reject an
	// update whose Revision does not match the stored one.
	Revision int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLocked reports whether the lockout window is still open at now.
func (r *SecurityRecord) IsLocked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// LockExpired reports whether a lock is recorded but its window has passed.
func (r *SecurityRecord) LockExpired(now time.Time) bool {
	return r.LockedUntil != nil && !now.Before(*r.LockedUntil)
}

// LoginIdentifier returns the identifier tokens are issued for:
// the email when present, otherwise the phone number.
func (r *SecurityRecord) LoginIdentifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Phone
}

// Clone returns a deep copy.
func (r *SecurityRecord) Clone() *SecurityRecord {
	c := *r
	if r.LockedUntil != nil {
		t := *r.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

// Identity is the authenticated caller of a single request.
// Role is the live role read from the store, not the one at token issuance.
type Identity struct {
	UserID  string `json:"user_id"`
	Role    Role   `json:"role"`
	Subject string `json:"subject"`
}

// Credential and account errors.
var (
	// ErrInvalidCredentials covers unknown identifier, disabled account and
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountDisabled    = errors.New("account disabled")

	ErrIdentifierRequired  = errors.New("email or phone number is required")
	ErrAmbiguousIdentifier = errors.New("provide either an email or a phone number, not both")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrWeakPassword        = errors.New("password too short")
	ErrFullNameRequired    = errors.New("full name is required")
	ErrUnknownRole         = errors.New("unknown role")
	ErrRateLimited         = errors.New("too many attempts")
)

// Token errors.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenKind             = errors.New("wrong token kind")
	ErrTokenVersionRevoked   = errors.New("token has been revoked")
	ErrNoCredentials         = errors.New("no bearer token")
)

// Authorisation errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient permissions")
)

// Store errors.
var (
	ErrRecordNotFound = errors.New("security record not found")
	ErrStaleRecord    = errors.New("security record modified concurrently")
	ErrEmailTaken     = errors.New("email already registered")
	ErrPhoneTaken     = errors.New("phone number already registered")

	// ErrVersionRegression is returned by stores asked to lower TokenVersion.
	ErrVersionRegression = errors.New("token version must not decrease")

	// ErrStoreUnavailable wraps any other store failure. It is never
	// reported to callers as a credential problem.
	ErrStoreUnavailable = errors.New("security record store unavailable")
)
