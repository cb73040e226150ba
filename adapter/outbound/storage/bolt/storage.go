// Package bolt keeps users and API tokens in a single bbolt file.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
	"go.etcd.io/bbolt"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

var (
	bucketUsers     = []byte("users")
	bucketAPITokens = []byte("api_tokens")
)

// Storage owns the bbolt handle shared by the user and token stores
type Storage struct {
	db *bbolt.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketAPITokens} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Storage) Users() outbound.UserStore {
	return &userStore{db: s.db}
}

func (s *Storage) APITokens() outbound.APITokenStore {
	return &tokenStore{db: s.db}
}

type userStore struct {
	db *bbolt.DB
}

func (u *userStore) Get(ctx context.Context, username string) (*model.CredentialRecord, error) {
	var rec model.CredentialRecord
	err := u.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(username))
		if data == nil {
			return model.ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert checks and writes inside one update transaction, bbolt serializes writers
func (u *userStore) Insert(ctx context.Context, username string, rec *model.CredentialRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = u.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(username)) != nil {
			return model.ErrUsernameExists
		}
		return b.Put([]byte(username), data)
	})
	if err != nil && !errors.Is(err, model.ErrUsernameExists) {
		return oops.Code("BOLT_INSERT_FAILED").With("username", username).Wrap(err)
	}
	return err
}

func (u *userStore) Delete(ctx context.Context, username string) error {
	return u.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(username)) == nil {
			return model.ErrNotFound
		}
		return b.Delete([]byte(username))
	})
}

func (u *userStore) List(ctx context.Context) (map[string]*model.CredentialRecord, error) {
	out := make(map[string]*model.CredentialRecord)
	err := u.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var rec model.CredentialRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("user %q: %w", k, model.ErrStoreCorrupted)
			}
			out[string(k)] = &rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type tokenStore struct {
	db *bbolt.DB
}

func (t *tokenStore) Put(ctx context.Context, token string, rec *model.APITokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAPITokens)
		if b.Get([]byte(token)) != nil {
			return model.ErrTokenExists
		}
		return b.Put([]byte(token), data)
	})
}

func (t *tokenStore) Lookup(ctx context.Context, token string) (*model.APITokenRecord, error) {
	var rec model.APITokenRecord
	err := t.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAPITokens).Get([]byte(token))
		if data == nil {
			return model.ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *tokenStore) Delete(ctx context.Context, token string) error {
	return t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAPITokens)
		if b.Get([]byte(token)) == nil {
			return model.ErrNotFound
		}
		return b.Delete([]byte(token))
	})
}
