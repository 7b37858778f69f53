package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/kvstore"
)

var _ kvstore.Store = (*KV)(nil)

// KV is the key-value view of the database, stored in the kv table. It
// shares the snippet store's connection.
type KV struct {
	db *DB
}

// KV returns the key-value store backed by this database.
func (db *DB) KV() *KV {
	return &KV{db: db}
}

// Get reads one key. A missing key is ("", false, nil).
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := kv.db.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperror.Storage("reading "+key, err)
	}
	return value, true, nil
}

// Set writes one key, replacing any previous value.
func (kv *KV) Set(ctx context.Context, key, value string) error {
	_, err := kv.db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return apperror.Storage("writing "+key, err)
	}
	return nil
}

// Delete removes all keys in a single transaction.
func (kv *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := kv.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Storage("deleting keys", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return apperror.Storage("deleting keys", fmt.Errorf("key %s: %w", k, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return apperror.Storage("deleting keys", err)
	}
	return nil
}
