package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type tokenFileData struct {
	Tokens  map[string]*model.APITokenRecord `json:"tokens"`
	Version string                           `json:"version"`
}

// secureAPITokenStore persists API tokens to an encrypted file
type secureAPITokenStore struct {
	file   *secureFile
	tokens map[string]*model.APITokenRecord
	mu     sync.RWMutex
	logger outbound.Logger
}

func NewSecureAPITokenStore(
	filePath string,
	crypto outbound.CryptoService,
	machineID outbound.MachineIDService,
	logger outbound.Logger,
) (outbound.APITokenStore, error) {
	file, err := newSecureFile(filePath, crypto, machineID)
	if err != nil {
		return nil, err
	}

	var data tokenFileData
	switch err := file.load(&data); {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load api tokens: %w", err)
	}
	if data.Tokens == nil {
		data.Tokens = make(map[string]*model.APITokenRecord)
	}

	logger.Info("API tokens loaded", "path", filePath, "token_count", len(data.Tokens))
	return &secureAPITokenStore{
		file:   file,
		tokens: data.Tokens,
		logger: logger,
	}, nil
}

func (s *secureAPITokenStore) Put(ctx context.Context, token string, rec *model.APITokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token]; exists {
		return model.ErrTokenExists
	}

	recCopy := *rec
	s.tokens[token] = &recCopy

	if err := s.save(); err != nil {
		delete(s.tokens, token)
		return fmt.Errorf("failed to persist api token: %w", err)
	}
	return nil
}

func (s *secureAPITokenStore) Lookup(ctx context.Context, token string) (*model.APITokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tokens[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	recCopy := *rec
	return &recCopy, nil
}

func (s *secureAPITokenStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.tokens[token]
	if !exists {
		return model.ErrNotFound
	}
	delete(s.tokens, token)

	if err := s.save(); err != nil {
		s.tokens[token] = rec
		return fmt.Errorf("failed to persist api token deletion: %w", err)
	}
	return nil
}

func (s *secureAPITokenStore) save() error {
	return s.file.save(tokenFileData{Tokens: s.tokens, Version: "1"})
}
