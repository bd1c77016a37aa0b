package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSigningKeyBytes is the minimum HMAC key size (256 bits).
const MinSigningKeyBytes = 32

// Default token lifetimes.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// TokenConfig configures a TokenEngine.
type TokenConfig struct {
	Algorithm  string // HS256, HS384 or HS512 (default)
	Key        []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenEngine issues and validates signed bearer tokens.
// It never touches storage; revocation is checked by the caller.
type TokenEngine struct {
	method     *jwt.SigningMethodHMAC
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// TokenOption customises a TokenEngine.
type TokenOption func(*TokenEngine)

// WithTokenClock replaces time.Now for issuance and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(e *TokenEngine) { e.now = now }
}

// NewTokenEngine validates cfg and builds an engine.
func NewTokenEngine(cfg TokenConfig, opts ...TokenOption) (*TokenEngine, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "HS512"
	}
	method, ok := signingMethods[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if len(cfg.Key) < MinSigningKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinSigningKeyBytes, len(cfg.Key))
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive")
	}

	e := &TokenEngine{
		method:     method,
		key:        cfg.Key,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return e.now() }),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	e.parser = jwt.NewParser(parserOpts...)

	return e, nil
}

// AccessTTL returns the access token lifetime.
func (e *TokenEngine) AccessTTL() time.Duration { return e.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (e *TokenEngine) RefreshTTL() time.Duration { return e.refreshTTL }

// Issue signs a token of the given kind. Refresh tokens carry a jti.
func (e *TokenEngine) Issue(kind TokenKind, subject, userID string, tokenVersion int64) (string, error) {
	ttl := e.accessTTL
	switch kind {
	case TokenAccess:
	case TokenRefresh:
		ttl = e.refreshTTL
	default:
		return "", fmt.Errorf("%w: %q", ErrTokenKind, kind)
	}

	now := e.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:       userID,
		TokenVersion: tokenVersion,
		Kind:         kind,
	}
	if kind == TokenRefresh {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(e.method, claims).SignedString(e.key)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", kind, err)
	}
	return signed, nil
}

// IssuePair issues an access and a refresh token for rec at its current
// token version.
func (e *TokenEngine) IssuePair(rec *SecurityRecord) (*TokenPair, error) {
	subject := rec.LoginIdentifier()

	access, err := e.Issue(TokenAccess, subject, rec.ID, rec.TokenVersion)
	if err != nil {
		return nil, err
	}
	refresh, err := e.Issue(TokenRefresh, subject, rec.ID, rec.TokenVersion)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(e.accessTTL / time.Second),
		RefreshExpiresIn: int64(e.refreshTTL / time.Second),
	}, nil
}

// Validate verifies signature and expiry and returns the claims.
//
// Errors: ErrTokenSignatureInvalid, ErrTokenExpired, ErrTokenMalformed.
func (e *TokenEngine) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := e.parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return e.key, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrTokenMalformed)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	if claims.TokenVersion < 0 {
		return nil, fmt.Errorf("%w: negative tokenVersion", ErrTokenMalformed)
	}
	return claims, nil
}

// ValidateKind validates the token and requires it to be of kind.
func (e *TokenEngine) ValidateKind(tokenString string, kind TokenKind) (*Claims, error) {
	claims, err := e.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: want %s, got %q", ErrTokenKind, kind, claims.Kind)
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
}
