package model

import (
	"time"
)

// CredentialRecord is what the user store keeps per username.
// Salt and PasswordHash are base64 encoded by encoding/json.
type CredentialRecord struct {
	Salt         []byte    `json:"salt"`
	PasswordHash []byte    `json:"pw_hash"`
	Admin        bool      `json:"admin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MasterPasswords maps a registration role ("normal", "admin", ...) to its shared secret.
type MasterPasswords map[string]string

// Lookup reports the secret for role and whether the role is configured at all.
func (m MasterPasswords) Lookup(role string) (string, bool) {
	secret, ok := m[role]
	return secret, ok
}

// UserView is the public projection of a stored user.
type UserView struct {
	Username  string    `json:"username"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *CredentialRecord) ToView(username string) *UserView {
	return &UserView{
		Username:  username,
		Admin:     r.Admin,
		CreatedAt: r.CreatedAt,
	}
}
