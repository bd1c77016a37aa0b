package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenEngine_IssueValidateRoundTrip(t *testing.T) {
	e := testTokenEngine(t, newFakeClock())

	for _, kind := range []TokenKind{TokenAccess, TokenRefresh} {
		t.Run(string(kind), func(t *testing.T) {
			token, err := e.Issue(kind, "user@example.com", "usr-1", 7)
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}

			claims, err := e.ValidateKind(token, kind)
			if err != nil {
				t.Fatalf("ValidateKind() error = %v", err)
			}
			if claims.Subject != "user@example.com" || claims.UserID != "usr-1" || claims.TokenVersion != 7 {
				t.Errorf("claims = %+v", claims)
			}
			if (claims.ID != "") != (kind == TokenRefresh) {
				t.Errorf("jti present = %v, want only on refresh tokens", claims.ID != "")
			}
		})
	}
}

func TestTokenEngine_Expiry(t *testing.T) {
	clock := newFakeClock()
	e := testTokenEngine(t, clock)

	token, err := e.Issue(TokenAccess, "user@example.com", "usr-1", 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(time.Hour - time.Second)
	if _, err := e.Validate(token); err != nil {
		t.Fatalf("Validate() just before expiry error = %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := e.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Validate() after expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenEngine_RefreshOutlivesAccess(t *testing.T) {
	clock := newFakeClock()
	e := testTokenEngine(t, clock)

	pair, err := e.IssuePair(&SecurityRecord{ID: "usr-1", Email: "user@example.com", TokenVersion: 2})
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 3600 {
		t.Errorf("pair metadata = %+v", pair)
	}

	clock.Advance(2 * time.Hour)
	if _, err := e.ValidateKind(pair.AccessToken, TokenAccess); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("access token error = %v, want ErrTokenExpired", err)
	}
	if _, err := e.ValidateKind(pair.RefreshToken, TokenRefresh); err != nil {
		t.Errorf("refresh token error = %v, want valid", err)
	}
}

func TestTokenEngine_SignatureFlipAlwaysFails(t *testing.T) {
	e := testTokenEngine(t, newFakeClock())

	token, err := e.Issue(TokenAccess, "user@example.com", "usr-1", 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	sigStart := strings.LastIndex(token, ".") + 1

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for i := sigStart; i < len(token); i++ {
		replacement := alphabet[(strings.IndexByte(alphabet, token[i])+1)%len(alphabet)]
		tampered := token[:i] + string(replacement) + token[i+1:]

		_, err := e.Validate(tampered)
		if err == nil {
			t.Fatalf("flipping signature char %d was accepted", i-sigStart)
		}
		if !errors.Is(err, ErrTokenSignatureInvalid) && !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("flip at %d: error = %v, want signature or malformed", i-sigStart, err)
		}
	}
}

func TestTokenEngine_RejectsForeignTokens(t *testing.T) {
	clock := newFakeClock()
	e := testTokenEngine(t, clock)

	sign := func(method jwt.SigningMethod, key any, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	valid := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "authgate-test",
			Subject:   "user@example.com",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
		UserID: "usr-1",
		Kind:   TokenAccess,
	}
	noUserID := valid
	noUserID.UserID = ""
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not.a.token", ErrTokenMalformed},
		{"empty", "", ErrTokenMalformed},
		{"other key", sign(jwt.SigningMethodHS512, []byte("another-key-of-at-least-32-bytes-long!!"), valid), ErrTokenSignatureInvalid},
		{"other algorithm", sign(jwt.SigningMethodHS256, testKey, valid), ErrTokenSignatureInvalid},
		{"alg none", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid), ErrTokenSignatureInvalid},
		{"missing userId", sign(jwt.SigningMethodHS512, testKey, noUserID), ErrTokenMalformed},
		{"missing exp", sign(jwt.SigningMethodHS512, testKey, noExpiry), ErrTokenMalformed},
		{"wrong issuer", sign(jwt.SigningMethodHS512, testKey, otherIssuer), ErrTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Validate(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTokenEngine_KindMismatch(t *testing.T) {
	e := testTokenEngine(t, newFakeClock())

	refresh, err := e.Issue(TokenRefresh, "user@example.com", "usr-1", 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := e.ValidateKind(refresh, TokenAccess); !errors.Is(err, ErrTokenKind) {
		t.Errorf("refresh presented as access: error = %v, want ErrTokenKind", err)
	}
}

func TestNewTokenEngine_Rejects(t *testing.T) {
	base := TokenConfig{Key: testKey, AccessTTL: time.Hour, RefreshTTL: time.Hour}

	tests := []struct {
		name   string
		mutate func(*TokenConfig)
	}{
		{"short key", func(c *TokenConfig) { c.Key = []byte("short") }},
		{"asymmetric algorithm", func(c *TokenConfig) { c.Algorithm = "RS256" }},
		{"zero access ttl", func(c *TokenConfig) { c.AccessTTL = 0 }},
		{"negative refresh ttl", func(c *TokenConfig) { c.RefreshTTL = -time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewTokenEngine(cfg); err == nil {
				t.Error("NewTokenEngine() should fail")
			}
		})
	}
}
