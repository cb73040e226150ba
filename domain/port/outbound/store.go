package outbound

import (
	"context"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

// UserStore maps usernames to credential records.
type UserStore interface {
	// Get returns model.ErrNotFound when the username is unknown
	Get(ctx context.Context, username string) (*model.CredentialRecord, error)

	// Insert stores rec only if username is absent, atomically.
	// Returns model.ErrUsernameExists otherwise.
	Insert(ctx context.Context, username string, rec *model.CredentialRecord) error

	// Delete removes a user, model.ErrNotFound if absent
	Delete(ctx context.Context, username string) error

	// List returns all usernames with their records
	List(ctx context.Context) (map[string]*model.CredentialRecord, error)
}

// APITokenStore keeps long-lived API keys server-side.
type APITokenStore interface {
	// Put stores a freshly minted token; an existing token is never overwritten
	Put(ctx context.Context, token string, rec *model.APITokenRecord) error

	// Lookup returns model.ErrNotFound for unknown tokens
	Lookup(ctx context.Context, token string) (*model.APITokenRecord, error)

	Delete(ctx context.Context, token string) error
}
