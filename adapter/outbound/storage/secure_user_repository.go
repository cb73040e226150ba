package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type userFileData struct {
	Users map[string]*model.CredentialRecord `json:"users"`
}

// secureUserStore keeps users in memory and persists every change to an encrypted file
type secureUserStore struct {
	file   *secureFile
	users  map[string]*model.CredentialRecord
	mu     sync.RWMutex
	logger outbound.Logger
}

func NewSecureUserStore(
	filePath string,
	crypto outbound.CryptoService,
	machineID outbound.MachineIDService,
	logger outbound.Logger,
) (outbound.UserStore, error) {
	file, err := newSecureFile(filePath, crypto, machineID)
	if err != nil {
		return nil, err
	}

	var data userFileData
	switch err := file.load(&data); {
	case errors.Is(err, model.ErrNotFound):
		logger.Info("User database not found, starting empty", "path", filePath)
	case err != nil:
		// refuse to start over an unreadable file, saving would erase it
		return nil, fmt.Errorf("failed to load user database: %w", err)
	}
	if data.Users == nil {
		data.Users = make(map[string]*model.CredentialRecord)
	}

	logger.Info("User database loaded", "path", filePath, "user_count", len(data.Users))
	return &secureUserStore{
		file:   file,
		users:  data.Users,
		logger: logger,
	}, nil
}

func (s *secureUserStore) Get(ctx context.Context, username string) (*model.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[username]
	if !ok {
		return nil, model.ErrNotFound
	}
	recCopy := *rec
	return &recCopy, nil
}

func (s *secureUserStore) Insert(ctx context.Context, username string, rec *model.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return model.ErrUsernameExists
	}

	recCopy := *rec
	s.users[username] = &recCopy

	if err := s.save(); err != nil {
		// Rollback
		delete(s.users, username)
		return fmt.Errorf("failed to persist user: %w", err)
	}
	return nil
}

func (s *secureUserStore) Delete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.users[username]
	if !exists {
		return model.ErrNotFound
	}
	delete(s.users, username)

	if err := s.save(); err != nil {
		s.users[username] = rec
		return fmt.Errorf("failed to persist user deletion: %w", err)
	}
	return nil
}

func (s *secureUserStore) List(ctx context.Context) (map[string]*model.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*model.CredentialRecord, len(s.users))
	for username, rec := range s.users {
		recCopy := *rec
		out[username] = &recCopy
	}
	return out, nil
}

// save must be called with mu held
func (s *secureUserStore) save() error {
	return s.file.save(userFileData{Users: s.users})
}
