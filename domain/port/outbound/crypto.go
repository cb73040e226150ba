package outbound

// PasswordHasher derives and checks salted password hashes.
type PasswordHasher interface {
	// HashNewPassword generates a random salt and returns it with the derived hash
	HashNewPassword(password string) (salt, hash []byte, err error)

	// VerifyPassword recomputes the hash of candidate and compares in constant time
	VerifyPassword(salt, hash []byte, candidate string) bool
}

// CryptoService provides at-rest encryption for file backed stores.
type CryptoService interface {
	Encrypt(data []byte, key [32]byte) (encrypted []byte, nonce []byte, err error)
	Decrypt(encrypted []byte, nonce []byte, key [32]byte) ([]byte, error)
	DeriveKey(machineID string) [32]byte
}

type MachineIDService interface {
	GetMachineID() (string, error)
}
