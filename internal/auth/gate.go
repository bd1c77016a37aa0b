package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// bearerPrefix is the only accepted Authorization scheme (case-insensitive).
const bearerPrefix = "bearer "

// Gate turns a bearer token into an Identity, cross-checking the token
// against the live security record.
type Gate struct {
	tokens  *TokenEngine
	records RecordReader
	now     func() time.Time
}

// GateOption customises a Gate.
type GateOption func(*Gate)

// WithGateClock replaces time.Now for the lock check.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a Gate. records is typically the store itself or a
// CachedRecordReader in front of it.
func NewGate(tokens *TokenEngine, records RecordReader, opts ...GateOption) *Gate {
	g := &Gate{tokens: tokens, records: records, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BearerToken extracts the token from an Authorization header value.
// Returns "" for an absent header or any other scheme.
func BearerToken(header string) string {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// Authenticate resolves the Authorization header into an Identity.
//
// Every failure other than ErrStoreUnavailable means "proceed anonymously":
// ErrNoCredentials, token errors, ErrRecordNotFound, ErrAccountDisabled,
// ErrAccountLocked and ErrTokenVersionRevoked. Callers must treat
// ErrStoreUnavailable (and context errors) as fatal for the request.
func (g *Gate) Authenticate(ctx context.Context, authorization string) (Identity, error) {
	raw := BearerToken(authorization)
	if raw == "" {
		return Identity{}, ErrNoCredentials
	}

	claims, err := g.tokens.ValidateKind(raw, TokenAccess)
	if err != nil {
		return Identity{}, err
	}

	rec, err := g.records.GetByID(ctx, claims.UserID)
	if err != nil {
		return Identity{}, storeFailure(err)
	}

	if err := checkLiveRecord(rec, claims, g.now()); err != nil {
		return Identity{}, err
	}

	return Identity{UserID: rec.ID, Role: rec.Role, Subject: claims.Subject}, nil
}

// checkLiveRecord applies the revocation checks shared by the gate and refresh.
func checkLiveRecord(rec *SecurityRecord, claims *Claims, now time.Time) error {
	switch {
	case !rec.Enabled:
		return ErrAccountDisabled
	case rec.IsLocked(now):
		return ErrAccountLocked
	case claims.TokenVersion != rec.TokenVersion:
		return fmt.Errorf("%w: token version %d, current %d",
			ErrTokenVersionRevoked, claims.TokenVersion, rec.TokenVersion)
	}
	return nil
}

// Anonymous reports whether err from Authenticate means the request should
// simply continue without an identity.
func Anonymous(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrStoreUnavailable) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
