package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
)

const (
	normalMaster = "normal-secret"
	adminMaster  = "admin-secret"
)

func testCredentialConfig() CredentialConfig {
	return CredentialConfig{
		MasterPasswords: model.MasterPasswords{
			"normal": normalMaster,
			"admin":  adminMaster,
		},
		PrivilegedRoles: []string{"admin"},
	}
}

func setupCredentialService() (*credentialService, *fakeUserStore) {
	users := newFakeUserStore()
	logger := newMockLogger()
	authz := NewAuthorizationService(users, logger)
	svc := NewCredentialService(users, sha256Hasher{}, authz, nil, logger, testCredentialConfig())
	return svc.(*credentialService), users
}

func createReq(role, master, username, password string) inbound.CreateUserRequest {
	return inbound.CreateUserRequest{
		MasterUsername: role,
		MasterPassword: master,
		Username:       username,
		Password:       password,
	}
}

func TestCreateUser_Success(t *testing.T) {
	svc, users := setupCredentialService()
	ctx := context.Background()

	err := svc.CreateUser(ctx, createReq("normal", normalMaster, "bob", "Str0ng!Pass99"))
	require.NoError(t, err)

	rec, err := users.Get(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, rec.Admin)
	assert.Len(t, rec.Salt, 16)
	assert.NotEmpty(t, rec.PasswordHash)
	assert.NotContains(t, string(rec.PasswordHash), "Str0ng!Pass99")
	assert.False(t, rec.CreatedAt.IsZero())

	assert.NoError(t, svc.CheckCredentials(ctx, "bob", "Str0ng!Pass99"))
}

func TestCreateUser_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  inbound.CreateUserRequest
		want error
	}{
		{"empty username", createReq("normal", normalMaster, "", "Str0ng!Pass99"), model.ErrNullUserField},
		{"empty password", createReq("normal", normalMaster, "bob", ""), model.ErrNullUserField},
		{"empty fields beat bad master", createReq("normal", "nope", "", ""), model.ErrNullUserField},
		{"wrong master password", createReq("normal", "nope", "bob", "Str0ng!Pass99"), model.ErrWrongCredentials},
		{"unknown role", createReq("root", "", "bob", "Str0ng!Pass99"), model.ErrWrongCredentials},
		{"unknown role with empty secret", createReq("ghost", "", "bob", "Str0ng!Pass99"), model.ErrWrongCredentials},
		{"master of other role", createReq("admin", normalMaster, "bob", "Str0ng!Pass99"), model.ErrWrongCredentials},
		{"insecure password", createReq("normal", normalMaster, "alice", "alicepassword123"), model.ErrInsecurePassword},
		{"short password", createReq("normal", normalMaster, "ab", "short"), model.ErrInsecurePassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users := setupCredentialService()
			err := svc.CreateUser(context.Background(), tt.req)
			assert.Equal(t, tt.want, err)
			assert.Empty(t, users.users)
		})
	}
}

func TestCreateUser_EmptyConfiguredSecretDisablesRole(t *testing.T) {
	users := newFakeUserStore()
	logger := newMockLogger()
	cfg := testCredentialConfig()
	cfg.MasterPasswords["normal"] = ""
	svc := NewCredentialService(users, sha256Hasher{}, NewAuthorizationService(users, logger), nil, logger, cfg)

	err := svc.CreateUser(context.Background(), createReq("normal", "", "bob", "Str0ng!Pass99"))
	assert.Equal(t, model.ErrWrongCredentials, err)
}

func TestCreateUser_Duplicate(t *testing.T) {
	svc, _ := setupCredentialService()
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, createReq("normal", normalMaster, "carol", "Str0ng!Pass99")))
	err := svc.CreateUser(ctx, createReq("admin", adminMaster, "carol", "An0ther!Secret"))
	assert.Equal(t, model.ErrUsernameExists, err)

	// the first record wins
	assert.NoError(t, svc.CheckCredentials(ctx, "carol", "Str0ng!Pass99"))
	assert.Equal(t, model.ErrWrongCredentials, svc.CheckCredentials(ctx, "carol", "An0ther!Secret"))
}

func TestCreateUser_ExistingUsernameCheckedBeforePolicy(t *testing.T) {
	svc, _ := setupCredentialService()
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, createReq("normal", normalMaster, "carol", "Str0ng!Pass99")))
	err := svc.CreateUser(ctx, createReq("normal", normalMaster, "carol", "weak"))
	assert.Equal(t, model.ErrUsernameExists, err)
}

func TestCreateUser_PrivilegeDerivation(t *testing.T) {
	svc, _ := setupCredentialService()
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, createReq("admin", adminMaster, "root1", "Str0ng!Pass99")))
	require.NoError(t, svc.CreateUser(ctx, createReq("normal", normalMaster, "user1", "Str0ng!Pass99")))

	admin, err := svc.authz.IsAdmin(ctx, "root1")
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = svc.authz.IsAdmin(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestCreateUser_ConcurrentSameUsername(t *testing.T) {
	svc, users := setupCredentialService()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.CreateUser(ctx, createReq("normal", normalMaster, "racer", fmt.Sprintf("Str0ng!Pass%02d", i)))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.Equal(t, model.ErrUsernameExists, err)
	}
	assert.Equal(t, 1, successes)
	assert.Len(t, users.users, 1)
	assert.Equal(t, 0, svc.userLocks.size())
}

func TestCreateUser_StoreRaceStillReportsExists(t *testing.T) {
	store := &MockUserStore{}
	logger := newMockLogger()
	svc := NewCredentialService(store, sha256Hasher{}, nil, nil, logger, testCredentialConfig())
	ctx := context.Background()

	// another process inserted between Get and Insert
	store.On("Get", ctx, "dan").Return(nil, model.ErrNotFound)
	store.On("Insert", ctx, "dan", mock.AnythingOfType("*model.CredentialRecord")).Return(model.ErrUsernameExists)

	err := svc.CreateUser(ctx, createReq("normal", normalMaster, "dan", "Str0ng!Pass99"))
	assert.Equal(t, model.ErrUsernameExists, err)
	store.AssertExpectations(t)
}

func TestCreateUser_StoreFailureIsUnexpected(t *testing.T) {
	store := &MockUserStore{}
	logger := newMockLogger()
	svc := NewCredentialService(store, sha256Hasher{}, nil, nil, logger, testCredentialConfig())
	ctx := context.Background()

	store.On("Get", ctx, "dan").Return(nil, errors.New("disk on fire"))

	err := svc.CreateUser(ctx, createReq("normal", normalMaster, "dan", "Str0ng!Pass99"))
	require.Error(t, err)
	assert.Equal(t, model.KindUnexpected, model.KindOf(err))
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckCredentials(t *testing.T) {
	svc, _ := setupCredentialService()
	ctx := context.Background()
	require.NoError(t, svc.CreateUser(ctx, createReq("normal", normalMaster, "erin", "Str0ng!Pass99")))

	assert.NoError(t, svc.CheckCredentials(ctx, "erin", "Str0ng!Pass99"))
	assert.Equal(t, model.ErrWrongCredentials, svc.CheckCredentials(ctx, "erin", "str0ng!Pass99"))
	assert.Equal(t, model.ErrWrongCredentials, svc.CheckCredentials(ctx, "nobody", "Str0ng!Pass99"))
	assert.Equal(t, model.ErrWrongCredentials, svc.CheckCredentials(ctx, "Erin", "Str0ng!Pass99"))
	assert.Equal(t, model.ErrNullUserField, svc.CheckCredentials(ctx, "", "Str0ng!Pass99"))
	assert.Equal(t, model.ErrNullUserField, svc.CheckCredentials(ctx, "erin", ""))
}

func TestCheckCredentials_UnknownUserStillHashes(t *testing.T) {
	users := newFakeUserStore()
	hasher := &countingHasher{}
	svc := NewCredentialService(users, hasher, nil, nil, newMockLogger(), testCredentialConfig())
	ctx := context.Background()
	require.NoError(t, svc.CreateUser(ctx, createReq("normal", normalMaster, "erin", "Str0ng!Pass99")))

	assert.Equal(t, model.ErrWrongCredentials, svc.CheckCredentials(ctx, "erin", "wrong-Passw0rd!"))
	assert.Equal(t, 1, hasher.count())

	assert.Equal(t, model.ErrWrongCredentials, svc.CheckCredentials(ctx, "nobody", "wrong-Passw0rd!"))
	assert.Equal(t, 2, hasher.count())
}

func TestCheckCredentials_RecordsMetrics(t *testing.T) {
	users := newFakeUserStore()
	logger := newMockLogger()
	metrics := &MockMetrics{}
	svc := NewCredentialService(users, sha256Hasher{}, nil, metrics, logger, testCredentialConfig())

	metrics.On("RecordAuth", "check_credentials", model.KindWrongCredentials, false).Once()

	err := svc.CheckCredentials(context.Background(), "nobody", "whatever-password")
	assert.Equal(t, model.ErrWrongCredentials, err)
	metrics.AssertExpectations(t)
}

func TestListAndDeleteUsers(t *testing.T) {
	svc, users := setupCredentialService()
	ctx := context.Background()
	require.NoError(t, svc.CreateUser(ctx, createReq("admin", adminMaster, "boss", "Str0ng!Pass99")))
	require.NoError(t, svc.CreateUser(ctx, createReq("normal", normalMaster, "zed", "Str0ng!Pass99")))
	require.NoError(t, svc.CreateUser(ctx, createReq("normal", normalMaster, "amy", "Str0ng!Pass99")))

	_, err := svc.ListUsers(ctx, "zed")
	assert.Equal(t, model.ErrNotAdmin, err)

	views, err := svc.ListUsers(ctx, "boss")
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "amy", views[0].Username)
	assert.Equal(t, "boss", views[1].Username)
	assert.True(t, views[1].Admin)
	assert.Equal(t, "zed", views[2].Username)

	assert.Equal(t, model.ErrNotAdmin, svc.DeleteUser(ctx, "zed", "amy"))
	assert.Equal(t, model.ErrNotAdmin, svc.DeleteUser(ctx, "ghost", "amy"))
	assert.NoError(t, svc.DeleteUser(ctx, "boss", "amy"))
	assert.ErrorIs(t, svc.DeleteUser(ctx, "boss", "amy"), model.ErrNotFound)
	assert.Len(t, users.users, 2)

	// the name is free again
	assert.NoError(t, svc.CreateUser(ctx, createReq("normal", normalMaster, "amy", "Str0ng!Pass99")))
}
