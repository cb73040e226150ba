package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const (
	DefaultTokenLifetime = 15 * time.Minute
	LoginTokenLifetime   = 30 * time.Minute
)

var errEmptySecret = errors.New("token signing secret cannot be empty")

type TokenConfig struct {
	Secret          []byte
	DefaultLifetime time.Duration
	LoginLifetime   time.Duration
}

type tokenService struct {
	secret          []byte
	defaultLifetime time.Duration
	loginLifetime   time.Duration
	apiTokens       outbound.APITokenStore
	authz           inbound.AuthorizationService
	metrics         outbound.Metrics
	logger          outbound.Logger
	now             func() time.Time
}

func NewTokenService(
	apiTokens outbound.APITokenStore,
	authz inbound.AuthorizationService,
	metrics outbound.Metrics,
	logger outbound.Logger,
	cfg TokenConfig,
) (inbound.TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errEmptySecret
	}
	if cfg.DefaultLifetime <= 0 {
		cfg.DefaultLifetime = DefaultTokenLifetime
	}
	if cfg.LoginLifetime <= 0 {
		cfg.LoginLifetime = LoginTokenLifetime
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &tokenService{
		secret:          cfg.Secret,
		defaultLifetime: cfg.DefaultLifetime,
		loginLifetime:   cfg.LoginLifetime,
		apiTokens:       apiTokens,
		authz:           authz,
		metrics:         metrics,
		logger:          logger,
		now:             time.Now,
	}, nil
}

func (s *tokenService) DefaultLifetime() time.Duration { return s.defaultLifetime }
func (s *tokenService) LoginLifetime() time.Duration   { return s.loginLifetime }

func (s *tokenService) MintToken(subject string, lifetime time.Duration) (string, error) {
	if subject == "" {
		return "", model.ErrNullUserField
	}
	if lifetime <= 0 {
		lifetime = s.defaultLifetime
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}

	s.metrics.RecordTokenMinted(model.TokenKindSession)
	return token, nil
}

func (s *tokenService) VerifyToken(tokenString string) (string, error) {
	subject, err := s.verifyToken(tokenString)
	s.metrics.RecordAuth("verify_token", model.KindOf(err), err == nil)
	return subject, err
}

func (s *tokenService) verifyToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)

	// the signature is checked before the claims, so an expired token is always authentic
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", model.ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", model.ErrInvalidToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", model.ErrExpiredToken
	default:
		return "", model.ErrInvalidToken
	}

	if claims.Subject == "" {
		return "", model.ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *tokenService) MintAPIToken(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", model.ErrNullUserField
	}

	token := model.NewPrefixedID(model.APITokenPrefix)
	rec := &model.APITokenRecord{
		Username: username,
		IssuedAt: s.now().UTC(),
	}
	if err := s.apiTokens.Put(ctx, token, rec); err != nil {
		return "", oops.Code("API_TOKEN_STORE_FAILED").With("username", username).Wrap(err)
	}

	s.metrics.RecordTokenMinted(model.TokenKindAPI)
	s.logger.Info("API token minted", "username", username)
	return token, nil
}

func (s *tokenService) VerifyAPIToken(ctx context.Context, token string) (string, error) {
	rec, err := s.lookupAPIToken(ctx, token)
	s.metrics.RecordAuth("verify_api_token", model.KindOf(err), err == nil)
	if err != nil {
		return "", err
	}
	return rec.Username, nil
}

func (s *tokenService) lookupAPIToken(ctx context.Context, token string) (*model.APITokenRecord, error) {
	if !model.IsPrefixedID(model.APITokenPrefix, token) {
		return nil, model.ErrMalformedToken
	}

	rec, err := s.apiTokens.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInvalidToken
		}
		return nil, oops.Code("API_TOKEN_STORE_FAILED").Wrap(err)
	}
	return rec, nil
}

// RevokeAPIToken lets the owner or an administrator drop an API token.
func (s *tokenService) RevokeAPIToken(ctx context.Context, actor, token string) error {
	rec, err := s.lookupAPIToken(ctx, token)
	if err != nil {
		return err
	}

	if rec.Username != actor {
		if err := s.authz.RequireAdmin(ctx, actor); err != nil {
			return err
		}
	}

	if err := s.apiTokens.Delete(ctx, token); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrInvalidToken
		}
		return oops.Code("API_TOKEN_STORE_FAILED").Wrap(err)
	}

	s.logger.Info("API token revoked", "username", rec.Username, "by", actor)
	return nil
}
