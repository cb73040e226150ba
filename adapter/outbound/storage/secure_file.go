package storage

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const encryptedFileVersion = 1

// EncryptedFile is the on-disk envelope of every sealed store file
type EncryptedFile struct {
	Version  uint32   `json:"version"`
	Nonce    []byte   `json:"nonce"`
	Data     []byte   `json:"data"`
	Checksum [32]byte `json:"checksum"`
}

// secureFile seals a JSON document with a key derived from the machine id
type secureFile struct {
	path   string
	crypto outbound.CryptoService
	key    [32]byte
}

func newSecureFile(path string, crypto outbound.CryptoService, machineID outbound.MachineIDService) (*secureFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	id, err := machineID.GetMachineID()
	if err != nil {
		return nil, fmt.Errorf("failed to get machine ID: %w", err)
	}

	return &secureFile{
		path:   path,
		crypto: crypto,
		key:    crypto.DeriveKey(id),
	}, nil
}

// save writes v through a temp file and rename, a crash never leaves a torn file
func (f *secureFile) save(v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return err
	}

	encrypted, nonce, err := f.crypto.Encrypt(plain, f.key)
	if err != nil {
		return err
	}

	fileJSON, err := json.Marshal(EncryptedFile{
		Version:  encryptedFileVersion,
		Nonce:    nonce,
		Data:     encrypted,
		Checksum: sha256.Sum256(encrypted),
	})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(fileJSON); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}

// load fills v, model.ErrNotFound when the file does not exist yet
func (f *secureFile) load(v any) error {
	fileData, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}

	var encFile EncryptedFile
	if err := json.Unmarshal(fileData, &encFile); err != nil {
		return model.ErrStoreCorrupted
	}

	if sha256.Sum256(encFile.Data) != encFile.Checksum {
		return model.ErrInvalidChecksum
	}

	decrypted, err := f.crypto.Decrypt(encFile.Data, encFile.Nonce, f.key)
	if err != nil {
		return fmt.Errorf("failed to decrypt %s: %w", f.path, err)
	}

	if err := json.Unmarshal(decrypted, v); err != nil {
		return model.ErrStoreCorrupted
	}
	return nil
}
