package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

func TestIsAdmin(t *testing.T) {
	users := newFakeUserStore()
	users.users["boss"] = &model.CredentialRecord{Admin: true}
	users.users["worker"] = &model.CredentialRecord{}
	authz := NewAuthorizationService(users, newMockLogger())
	ctx := context.Background()

	tests := []struct {
		username string
		want     bool
	}{
		{"boss", true},
		{"worker", false},
		{"ghost", false},
		{"", false},
		{"BOSS", false},
	}
	for _, tt := range tests {
		got, err := authz.IsAdmin(ctx, tt.username)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.username)
	}
}

func TestRequireAdmin(t *testing.T) {
	users := newFakeUserStore()
	users.users["boss"] = &model.CredentialRecord{Admin: true}
	users.users["worker"] = &model.CredentialRecord{}
	authz := NewAuthorizationService(users, newMockLogger())
	ctx := context.Background()

	assert.NoError(t, authz.RequireAdmin(ctx, "boss"))
	assert.Equal(t, model.ErrNotAdmin, authz.RequireAdmin(ctx, "worker"))
	assert.Equal(t, model.ErrNotAdmin, authz.RequireAdmin(ctx, "ghost"))
}

func TestIsAdmin_StoreFailure(t *testing.T) {
	store := &MockUserStore{}
	authz := NewAuthorizationService(store, newMockLogger())
	ctx := context.Background()
	store.On("Get", ctx, "boss").Return(nil, errors.New("io error"))

	_, err := authz.IsAdmin(ctx, "boss")
	require.Error(t, err)
	assert.Equal(t, model.KindUnexpected, model.KindOf(err))

	err = authz.RequireAdmin(ctx, "boss")
	assert.NotErrorIs(t, err, model.ErrNotAdmin)
}
