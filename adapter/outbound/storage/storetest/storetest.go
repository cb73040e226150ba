// Package storetest holds the behaviour every UserStore and APITokenStore engine must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

func record(admin bool) *model.CredentialRecord {
	return &model.CredentialRecord{
		Salt:         []byte{0x00, 0x01, 0xfe, 0xff, 0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90, 0xa0, 0xb0, 0xc0},
		PasswordHash: []byte("0123456789abcdef0123456789abcdef"),
		Admin:        admin,
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// RunUserStoreTests exercises a fresh, empty store returned by newStore
func RunUserStoreTests(t *testing.T, newStore func(t *testing.T) outbound.UserStore) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "nobody")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("insert and get", func(t *testing.T) {
		store := newStore(t)
		want := record(true)
		require.NoError(t, store.Insert(ctx, "alice", want))

		got, err := store.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, want.Salt, got.Salt)
		assert.Equal(t, want.PasswordHash, got.PasswordHash)
		assert.True(t, got.Admin)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("usernames are case sensitive", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, "alice", record(false)))
		require.NoError(t, store.Insert(ctx, "Alice", record(true)))

		got, err := store.Get(ctx, "Alice")
		require.NoError(t, err)
		assert.True(t, got.Admin)
	})

	t.Run("insert duplicate keeps first", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, "alice", record(false)))

		err := store.Insert(ctx, "alice", record(true))
		assert.ErrorIs(t, err, model.ErrUsernameExists)

		got, err := store.Get(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, got.Admin)
	})

	t.Run("concurrent inserts", func(t *testing.T) {
		store := newStore(t)
		const n = 16
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.Insert(ctx, "racer", record(i%2 == 0))
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, model.ErrUsernameExists)
			}
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("delete and list", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Insert(ctx, fmt.Sprintf("user%d", i), record(i == 0)))
		}

		all, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		assert.True(t, all["user0"].Admin)

		require.NoError(t, store.Delete(ctx, "user1"))
		assert.ErrorIs(t, store.Delete(ctx, "user1"), model.ErrNotFound)

		all, err = store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.NotContains(t, all, "user1")

		// deleted names can be registered again
		assert.NoError(t, store.Insert(ctx, "user1", record(false)))
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, "alice", record(false)))

		got, err := store.Get(ctx, "alice")
		require.NoError(t, err)
		got.Admin = true

		again, err := store.Get(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, again.Admin)
	})
}

// RunAPITokenStoreTests exercises a fresh, empty token store
func RunAPITokenStoreTests(t *testing.T, newStore func(t *testing.T) outbound.APITokenStore) {
	ctx := context.Background()
	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("put lookup delete", func(t *testing.T) {
		store := newStore(t)
		token := model.NewPrefixedID(model.APITokenPrefix)

		_, err := store.Lookup(ctx, token)
		assert.ErrorIs(t, err, model.ErrNotFound)

		require.NoError(t, store.Put(ctx, token, &model.APITokenRecord{Username: "bob", IssuedAt: issued}))

		rec, err := store.Lookup(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "bob", rec.Username)
		assert.True(t, issued.Equal(rec.IssuedAt))

		require.NoError(t, store.Delete(ctx, token))
		assert.ErrorIs(t, store.Delete(ctx, token), model.ErrNotFound)

		_, err = store.Lookup(ctx, token)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("put never overwrites", func(t *testing.T) {
		store := newStore(t)
		token := model.NewPrefixedID(model.APITokenPrefix)
		require.NoError(t, store.Put(ctx, token, &model.APITokenRecord{Username: "bob", IssuedAt: issued}))

		err := store.Put(ctx, token, &model.APITokenRecord{Username: "mallory", IssuedAt: issued})
		assert.ErrorIs(t, err, model.ErrTokenExists)

		rec, err := store.Lookup(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "bob", rec.Username)
	})
}
