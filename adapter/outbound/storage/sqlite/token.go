package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

type tokenStore struct {
	db *sql.DB
}

func (t *tokenStore) Put(ctx context.Context, token string, rec *model.APITokenRecord) error {
	query := `
		INSERT INTO api_tokens (token, username, issued_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`
	res, err := t.db.ExecContext(ctx, query, token, rec.Username, rec.IssuedAt.UnixNano())
	if err != nil {
		return oops.Code("SQLITE_INSERT_FAILED").With("username", rec.Username).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrTokenExists
	}
	return nil
}

func (t *tokenStore) Lookup(ctx context.Context, token string) (*model.APITokenRecord, error) {
	var (
		rec      model.APITokenRecord
		issuedAt int64
	)
	err := t.db.QueryRowContext(ctx, `SELECT username, issued_at FROM api_tokens WHERE token = ?`, token).
		Scan(&rec.Username, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("SQLITE_QUERY_FAILED").Wrap(err)
	}
	rec.IssuedAt = time.Unix(0, issuedAt).UTC()
	return &rec, nil
}

func (t *tokenStore) Delete(ctx context.Context, token string) error {
	res, err := t.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE token = ?`, token)
	if err != nil {
		return oops.Code("SQLITE_DELETE_FAILED").Wrap(err)
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
