package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const keyDerivationSuffix = "3d-print-me-store-key"

// AesCryptoService seals store files with AES-256-GCM.
type AesCryptoService struct{}

func NewAESCryptoService() outbound.CryptoService {
	return &AesCryptoService{}
}

func (c *AesCryptoService) Encrypt(data []byte, key [32]byte) (encrypted []byte, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return gcm.Seal(nil, nonce, data, nil), nonce, nil
}

func (c *AesCryptoService) Decrypt(encrypted []byte, nonce []byte, key [32]byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, encrypted, nil)
}

// DeriveKey binds the store key to the host, a copied file does not open elsewhere
func (c *AesCryptoService) DeriveKey(machineID string) [32]byte {
	return sha256.Sum256([]byte(machineID + keyDerivationSuffix))
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
