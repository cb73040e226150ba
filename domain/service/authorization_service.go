package service

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type authorizationService struct {
	users  outbound.UserStore
	logger outbound.Logger
}

func NewAuthorizationService(users outbound.UserStore, logger outbound.Logger) inbound.AuthorizationService {
	return &authorizationService{
		users:  users,
		logger: logger,
	}
}

func (s *authorizationService) IsAdmin(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}

	rec, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, oops.Code("USER_STORE_FAILED").With("username", username).Wrap(err)
	}

	return rec.Admin, nil
}

func (s *authorizationService) RequireAdmin(ctx context.Context, subject string) error {
	admin, err := s.IsAdmin(ctx, subject)
	if err != nil {
		return err
	}
	if !admin {
		s.logger.Debug("Admin check refused", "subject", subject)
		return model.ErrNotAdmin
	}
	return nil
}
