package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evnchn/3D-Print-Me/adapter/outbound/crypto"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/machineid"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/storage"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/storage/bolt"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/storage/memory"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/storage/sqlite"
	"github.com/evnchn/3D-Print-Me/config"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
	"github.com/evnchn/3D-Print-Me/domain/service"
)

// Store file names under cfg.Storage.Path
const (
	usersFile     = "users.enc"
	apiTokensFile = "api_tokens.enc"
	boltFile      = "portal.bolt"
	sqliteFile    = "portal.sqlite"
)

type stores struct {
	users     outbound.UserStore
	apiTokens outbound.APITokenStore
	close     func() error
}

// openStores opens the user and API token stores of the configured engine
func openStores(ctx context.Context, cfg *config.Config, logger outbound.Logger) (*stores, error) {
	noClose := func() error { return nil }
	engine := strings.ToLower(cfg.Storage.Engine)

	if engine != "memory" {
		if err := os.MkdirAll(cfg.Storage.Path, 0700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	switch engine {
	case "memory":
		logger.Warn("Using the memory store, users and API tokens are lost on exit")
		return &stores{users: memory.NewUserStore(), apiTokens: memory.NewAPITokenStore(), close: noClose}, nil

	case "file":
		cryptoService := crypto.NewAESCryptoService()
		machineID := machineid.NewHardwareMachineID(cfg.Storage.MachineIDFallback)

		users, err := storage.NewSecureUserStore(filepath.Join(cfg.Storage.Path, usersFile), cryptoService, machineID, logger)
		if err != nil {
			return nil, err
		}
		apiTokens, err := storage.NewSecureAPITokenStore(filepath.Join(cfg.Storage.Path, apiTokensFile), cryptoService, machineID, logger)
		if err != nil {
			return nil, err
		}
		return &stores{users: users, apiTokens: apiTokens, close: noClose}, nil

	case "bolt":
		db, err := bolt.New(filepath.Join(cfg.Storage.Path, boltFile))
		if err != nil {
			return nil, err
		}
		return &stores{users: db.Users(), apiTokens: db.APITokens(), close: db.Close}, nil

	case "sqlite":
		db, err := sqlite.New(ctx, filepath.Join(cfg.Storage.Path, sqliteFile))
		if err != nil {
			return nil, err
		}
		return &stores{users: db.Users(), apiTokens: db.APITokens(), close: db.Close}, nil
	}

	return nil, fmt.Errorf("unknown storage engine: %s", cfg.Storage.Engine)
}

// authServices are the credential, token and authorization services over st
type authServices struct {
	credentials   inbound.CredentialService
	tokens        inbound.TokenService
	authorization inbound.AuthorizationService
}

func newAuthServices(cfg *config.Config, st *stores, metrics outbound.Metrics, logger outbound.Logger) (*authServices, error) {
	authz := service.NewAuthorizationService(st.users, logger)

	hasher := crypto.NewArgon2Hasher(crypto.Argon2Params{
		Time:    cfg.Security.Argon2.Time,
		Memory:  cfg.Security.Argon2.MemoryKiB,
		Threads: cfg.Security.Argon2.Threads,
		KeyLen:  cfg.Security.Argon2.KeyLength,
	})

	credentials := service.NewCredentialService(st.users, hasher, authz, metrics, logger, service.CredentialConfig{
		MasterPasswords: cfg.Security.MasterPasswords,
		PrivilegedRoles: cfg.Security.PrivilegedRoles,
	})

	tokens, err := service.NewTokenService(st.apiTokens, authz, metrics, logger, service.TokenConfig{
		Secret:          []byte(cfg.HTTP.JWT.Secret),
		DefaultLifetime: minutes(cfg.HTTP.JWT.DefaultExpirationMinutes),
		LoginLifetime:   minutes(cfg.HTTP.JWT.LoginExpirationMinutes),
	})
	if err != nil {
		return nil, err
	}

	return &authServices{credentials: credentials, tokens: tokens, authorization: authz}, nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
