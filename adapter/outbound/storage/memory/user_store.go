package memory

import (
	"context"
	"sync"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type UserStore struct {
	users map[string]*model.CredentialRecord
	mutex sync.RWMutex
}

func NewUserStore() outbound.UserStore {
	return &UserStore{
		users: make(map[string]*model.CredentialRecord),
	}
}

func (s *UserStore) Get(ctx context.Context, username string) (*model.CredentialRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, ok := s.users[username]
	if !ok {
		return nil, model.ErrNotFound
	}
	recCopy := *rec
	return &recCopy, nil
}

func (s *UserStore) Insert(ctx context.Context, username string, rec *model.CredentialRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.users[username]; exists {
		return model.ErrUsernameExists
	}
	recCopy := *rec
	s.users[username] = &recCopy
	return nil
}

func (s *UserStore) Delete(ctx context.Context, username string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.users[username]; !ok {
		return model.ErrNotFound
	}
	delete(s.users, username)
	return nil
}

func (s *UserStore) List(ctx context.Context) (map[string]*model.CredentialRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make(map[string]*model.CredentialRecord, len(s.users))
	for username, rec := range s.users {
		recCopy := *rec
		out[username] = &recCopy
	}
	return out, nil
}
