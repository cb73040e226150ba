package model

import (
	"time"
)

const APITokenPrefix = "apitoken"

// TokenKind distinguishes session tokens from API keys. They are never interchangeable.
type TokenKind string

const (
	TokenKindSession TokenKind = "session"
	TokenKindAPI     TokenKind = "api"
)

// APITokenRecord is stored server-side for every minted API key.
type APITokenRecord struct {
	Username string    `json:"username"`
	IssuedAt time.Time `json:"__time__"`
}

// Principal is the verified caller of a request.
type Principal struct {
	Username string    `json:"username"`
	Kind     TokenKind `json:"kind"`
}

// TokenResponse mirrors the OAuth2 password flow response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}
