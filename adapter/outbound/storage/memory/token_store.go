package memory

import (
	"context"
	"sync"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type APITokenStore struct {
	tokens map[string]model.APITokenRecord
	mutex  sync.RWMutex
}

func NewAPITokenStore() outbound.APITokenStore {
	return &APITokenStore{
		tokens: make(map[string]model.APITokenRecord),
	}
}

func (s *APITokenStore) Put(ctx context.Context, token string, rec *model.APITokenRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tokens[token]; exists {
		return model.ErrTokenExists
	}
	s.tokens[token] = *rec
	return nil
}

func (s *APITokenStore) Lookup(ctx context.Context, token string) (*model.APITokenRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, ok := s.tokens[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &rec, nil
}

func (s *APITokenStore) Delete(ctx context.Context, token string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.tokens[token]; !ok {
		return model.ErrNotFound
	}
	delete(s.tokens, token)
	return nil
}
