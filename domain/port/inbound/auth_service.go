package inbound

import (
	"context"
	"time"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

type CreateUserRequest struct {
	MasterUsername string `json:"master_username"`
	MasterPassword string `json:"master_password"`
	Username       string `json:"username"`
	Password       string `json:"password"`
}

// CredentialService registers users and checks their passwords.
type CredentialService interface {
	// CreateUser is gated by the master password table; the role used decides admin status
	CreateUser(ctx context.Context, req CreateUserRequest) error

	// CheckCredentials returns model.ErrWrongCredentials for unknown users and bad passwords alike
	CheckCredentials(ctx context.Context, username, password string) error

	DeleteUser(ctx context.Context, actor, username string) error
	ListUsers(ctx context.Context, actor string) ([]model.UserView, error)
}

// TokenService mints and verifies session tokens and API keys.
type TokenService interface {
	// MintToken signs a session token for subject, lifetime <= 0 uses the default
	MintToken(subject string, lifetime time.Duration) (string, error)
	VerifyToken(token string) (string, error)

	MintAPIToken(ctx context.Context, username string) (string, error)
	VerifyAPIToken(ctx context.Context, token string) (string, error)
	RevokeAPIToken(ctx context.Context, actor, token string) error

	DefaultLifetime() time.Duration
	LoginLifetime() time.Duration
}

// AuthorizationService derives privileges from the user store.
type AuthorizationService interface {
	// IsAdmin is false without error for unknown users
	IsAdmin(ctx context.Context, username string) (bool, error)
	RequireAdmin(ctx context.Context, subject string) error
}
