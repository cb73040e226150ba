package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"sort"
	"time"

	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

// CredentialConfig is the registration gate loaded once at startup.
type CredentialConfig struct {
	MasterPasswords model.MasterPasswords
	PrivilegedRoles []string
}

// dummySalt and dummyHash are verified against when the username is unknown,
// so both failure paths cost one hash derivation. They match no password.
var (
	dummySalt = make([]byte, 16)
	dummyHash = make([]byte, 32)
)

type credentialService struct {
	users      outbound.UserStore
	hasher     outbound.PasswordHasher
	authz      inbound.AuthorizationService
	metrics    outbound.Metrics
	logger     outbound.Logger
	masters    model.MasterPasswords
	privileged map[string]bool
	userLocks  *keyedMutex
	now        func() time.Time
}

func NewCredentialService(
	users outbound.UserStore,
	hasher outbound.PasswordHasher,
	authz inbound.AuthorizationService,
	metrics outbound.Metrics,
	logger outbound.Logger,
	cfg CredentialConfig,
) inbound.CredentialService {
	privileged := make(map[string]bool, len(cfg.PrivilegedRoles))
	for _, role := range cfg.PrivilegedRoles {
		privileged[role] = true
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &credentialService{
		users:      users,
		hasher:     hasher,
		authz:      authz,
		metrics:    metrics,
		logger:     logger,
		masters:    cfg.MasterPasswords,
		privileged: privileged,
		userLocks:  newKeyedMutex(),
		now:        time.Now,
	}
}

func (s *credentialService) CreateUser(ctx context.Context, req inbound.CreateUserRequest) error {
	err := s.createUser(ctx, req)
	s.metrics.RecordAuth("create_user", model.KindOf(err), err == nil)
	return err
}

func (s *credentialService) createUser(ctx context.Context, req inbound.CreateUserRequest) error {
	if req.Username == "" || req.Password == "" {
		return model.ErrNullUserField
	}

	if !s.checkMasterPassword(req.MasterUsername, req.MasterPassword) {
		s.logger.Warn("Registration refused, bad master password", "role", req.MasterUsername)
		return model.ErrWrongCredentials
	}

	unlock := s.userLocks.Lock(req.Username)
	defer unlock()

	_, err := s.users.Get(ctx, req.Username)
	switch {
	case err == nil:
		return model.ErrUsernameExists
	case !errors.Is(err, model.ErrNotFound):
		return oops.Code("USER_STORE_FAILED").With("username", req.Username).Wrap(err)
	}

	if err := ValidatePassword(req.Username, req.Password); err != nil {
		return err
	}

	salt, hash, err := s.hasher.HashNewPassword(req.Password)
	if err != nil {
		return oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}

	rec := &model.CredentialRecord{
		Salt:         salt,
		PasswordHash: hash,
		Admin:        s.privileged[req.MasterUsername],
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.Insert(ctx, req.Username, rec); err != nil {
		if errors.Is(err, model.ErrUsernameExists) {
			return model.ErrUsernameExists
		}
		return oops.Code("USER_STORE_FAILED").With("username", req.Username).Wrap(err)
	}

	s.logger.Info("User created", "username", req.Username, "admin", rec.Admin)
	return nil
}

// checkMasterPassword fails for unknown roles and for roles configured with an empty secret
func (s *credentialService) checkMasterPassword(role, password string) bool {
	secret, ok := s.masters.Lookup(role)
	if !ok || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(password)) == 1
}

func (s *credentialService) CheckCredentials(ctx context.Context, username, password string) error {
	err := s.checkCredentials(ctx, username, password)
	s.metrics.RecordAuth("check_credentials", model.KindOf(err), err == nil)
	return err
}

func (s *credentialService) checkCredentials(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return model.ErrNullUserField
	}

	rec, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.hasher.VerifyPassword(dummySalt, dummyHash, password)
			return model.ErrWrongCredentials
		}
		return oops.Code("USER_STORE_FAILED").With("username", username).Wrap(err)
	}

	if !s.hasher.VerifyPassword(rec.Salt, rec.PasswordHash, password) {
		return model.ErrWrongCredentials
	}

	return nil
}

func (s *credentialService) DeleteUser(ctx context.Context, actor, username string) error {
	if err := s.authz.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if username == "" {
		return model.ErrNullUserField
	}

	unlock := s.userLocks.Lock(username)
	defer unlock()

	if err := s.users.Delete(ctx, username); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return oops.Code("USER_STORE_FAILED").With("username", username).Wrap(err)
	}

	s.logger.Info("User deleted", "username", username, "by", actor)
	return nil
}

func (s *credentialService) ListUsers(ctx context.Context, actor string) ([]model.UserView, error) {
	if err := s.authz.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}

	records, err := s.users.List(ctx)
	if err != nil {
		return nil, oops.Code("USER_STORE_FAILED").Wrap(err)
	}

	views := make([]model.UserView, 0, len(records))
	for username, rec := range records {
		views = append(views, *rec.ToView(username))
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].Username < views[j].Username
	})

	return views, nil
}
