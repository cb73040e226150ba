package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

type userStore struct {
	db *sql.DB
}

func (u *userStore) Get(ctx context.Context, username string) (*model.CredentialRecord, error) {
	query := `SELECT salt, pw_hash, admin, created_at FROM users WHERE username = ?`

	var (
		rec       model.CredentialRecord
		createdAt int64
	)
	err := u.db.QueryRowContext(ctx, query, username).Scan(&rec.Salt, &rec.PasswordHash, &rec.Admin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("SQLITE_QUERY_FAILED").With("username", username).Wrap(err)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

// Insert leans on the primary key, a conflicting row leaves nothing affected
func (u *userStore) Insert(ctx context.Context, username string, rec *model.CredentialRecord) error {
	query := `
		INSERT INTO users (username, salt, pw_hash, admin, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO NOTHING
	`
	res, err := u.db.ExecContext(ctx, query,
		username,
		nonNil(rec.Salt),
		nonNil(rec.PasswordHash),
		rec.Admin,
		rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return oops.Code("SQLITE_INSERT_FAILED").With("username", username).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrUsernameExists
	}
	return nil
}

func (u *userStore) Delete(ctx context.Context, username string) error {
	res, err := u.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return oops.Code("SQLITE_DELETE_FAILED").With("username", username).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (u *userStore) List(ctx context.Context) (map[string]*model.CredentialRecord, error) {
	rows, err := u.db.QueryContext(ctx, `SELECT username, salt, pw_hash, admin, created_at FROM users`)
	if err != nil {
		return nil, oops.Code("SQLITE_QUERY_FAILED").Wrap(err)
	}
	defer rows.Close()

	out := make(map[string]*model.CredentialRecord)
	for rows.Next() {
		var (
			username  string
			rec       model.CredentialRecord
			createdAt int64
		)
		if err := rows.Scan(&username, &rec.Salt, &rec.PasswordHash, &rec.Admin, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		out[username] = &rec
	}
	return out, rows.Err()
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
