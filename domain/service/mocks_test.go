package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

func newMockLogger() *MockLogger {
	logger := &MockLogger{}
	for _, level := range []string{"Debug", "Info", "Warn", "Error"} {
		logger.On(level, mock.Anything, mock.Anything).Maybe()
	}
	return logger
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Get(ctx context.Context, username string) (*model.CredentialRecord, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CredentialRecord), args.Error(1)
}

func (m *MockUserStore) Insert(ctx context.Context, username string, rec *model.CredentialRecord) error {
	args := m.Called(ctx, username, rec)
	return args.Error(0)
}

func (m *MockUserStore) Delete(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *MockUserStore) List(ctx context.Context) (map[string]*model.CredentialRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*model.CredentialRecord), args.Error(1)
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordAuth(operation string, kind model.ErrorKind, ok bool) {
	m.Called(operation, kind, ok)
}

func (m *MockMetrics) RecordTokenMinted(kind model.TokenKind) {
	m.Called(kind)
}

// fakeUserStore is a map with an atomic Insert
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.CredentialRecord
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*model.CredentialRecord)}
}

func (f *fakeUserStore) Get(_ context.Context, username string) (*model.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[username]
	if !ok {
		return nil, model.ErrNotFound
	}
	return rec, nil
}

func (f *fakeUserStore) Insert(_ context.Context, username string, rec *model.CredentialRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return model.ErrUsernameExists
	}
	f.users[username] = rec
	return nil
}

func (f *fakeUserStore) Delete(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; !ok {
		return model.ErrNotFound
	}
	delete(f.users, username)
	return nil
}

func (f *fakeUserStore) List(_ context.Context) (map[string]*model.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*model.CredentialRecord, len(f.users))
	for k, v := range f.users {
		out[k] = v
	}
	return out, nil
}

type fakeAPITokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.APITokenRecord
}

func newFakeAPITokenStore() *fakeAPITokenStore {
	return &fakeAPITokenStore{tokens: make(map[string]*model.APITokenRecord)}
}

func (f *fakeAPITokenStore) Put(_ context.Context, token string, rec *model.APITokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[token]; ok {
		return model.ErrTokenExists
	}
	f.tokens[token] = rec
	return nil
}

func (f *fakeAPITokenStore) Lookup(_ context.Context, token string) (*model.APITokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tokens[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	return rec, nil
}

func (f *fakeAPITokenStore) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[token]; !ok {
		return model.ErrNotFound
	}
	delete(f.tokens, token)
	return nil
}

// sha256Hasher keeps service tests fast, the argon2 adapter has its own tests
type sha256Hasher struct{}

func (sha256Hasher) HashNewPassword(password string) ([]byte, []byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, err
	}
	sum := sha256.Sum256(append(append([]byte{}, salt...), password...))
	return salt, sum[:], nil
}

func (sha256Hasher) VerifyPassword(salt, hash []byte, candidate string) bool {
	sum := sha256.Sum256(append(append([]byte{}, salt...), candidate...))
	return subtle.ConstantTimeCompare(sum[:], hash) == 1
}

// countingHasher records how many verifications ran
type countingHasher struct {
	sha256Hasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) VerifyPassword(salt, hash []byte, candidate string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.sha256Hasher.VerifyPassword(salt, hash, candidate)
}

func (h *countingHasher) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}
