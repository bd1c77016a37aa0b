package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Claims is the JWT payload. Subject is the login identifier at issuance;
// UserID is the lookup key for the live record.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string    `json:"userId"`
	TokenVersion int64     `json:"tokenVersion"`
	Kind         TokenKind `json:"kind"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}
