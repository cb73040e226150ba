package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"

	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const SaltLength = 16

var ErrEmptyPassword = errors.New("password cannot be empty")

// Argon2Params tunes argon2id. Memory is in KiB.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params follows the OWASP recommendation for argon2id
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
	}
}

type Argon2Hasher struct {
	params Argon2Params
}

func NewArgon2Hasher(params Argon2Params) outbound.PasswordHasher {
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.Memory == 0 {
		params.Memory = def.Memory
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	if params.KeyLen == 0 {
		params.KeyLen = def.KeyLen
	}
	return &Argon2Hasher{params: params}
}

func (h *Argon2Hasher) HashNewPassword(password string) (salt, hash []byte, err error) {
	if password == "" {
		return nil, nil, ErrEmptyPassword
	}

	salt = make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}

	return salt, h.derive(salt, password), nil
}

// VerifyPassword never fails loudly, any malformed input is a mismatch
func (h *Argon2Hasher) VerifyPassword(salt, hash []byte, candidate string) bool {
	if len(salt) == 0 || len(hash) == 0 {
		return false
	}
	// records hashed with another key length stay verifiable
	computed := argon2.IDKey([]byte(candidate), salt, h.params.Time, h.params.Memory, h.params.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(computed, hash) == 1
}

func (h *Argon2Hasher) derive(salt []byte, password string) []byte {
	return argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
}
