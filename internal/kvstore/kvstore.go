// Package kvstore defines the key-value capability the credential store,
// the auto-sync toggle and the fallback snippet store are built on.
//
// Two implementations exist: the sqlite-backed primary store
// (repository/sqlite.DB) and the JSON FileStore in this package. Which one is
// used is decided once, at construction time, by Select.
package kvstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Well-known keys. Each is independently readable and writable.
const (
	KeyToken       = "githubToken"
	KeyRemoteDocID = "gistId"
	KeyLastSync    = "lastSyncTime"
	KeyAutoSync    = "autoSyncEnabled"
	KeySnippets    = "snippets"
)

// probeKey is written and removed by Select to check a backend works.
const probeKey = "__codepocket_probe"

// Store is a string key-value store.
//
// Get reports ok=false for a missing key; that is not an error. Delete removes
// all given keys or none of them: a reader never observes a partial delete.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Select returns primary when it passes a write/read/delete probe and
// fallback otherwise. A nil primary always selects the fallback.
func Select(ctx context.Context, primary, fallback Store, logger *slog.Logger) Store {
	if primary == nil {
		logger.Warn("primary storage not configured, using fallback storage")
		return fallback
	}
	if err := Probe(ctx, primary); err != nil {
		logger.Warn("primary storage unavailable, falling back",
			slog.String("error", err.Error()),
		)
		return fallback
	}
	return primary
}

// Probe checks that s can round-trip a value.
func Probe(ctx context.Context, s Store) error {
	if err := s.Set(ctx, probeKey, "probe"); err != nil {
		return fmt.Errorf("kvstore: probe write: %w", err)
	}
	v, ok, err := s.Get(ctx, probeKey)
	if err != nil {
		return fmt.Errorf("kvstore: probe read: %w", err)
	}
	if !ok || v != "probe" {
		return fmt.Errorf("kvstore: probe read back %q", v)
	}
	if err := s.Delete(ctx, probeKey); err != nil {
		return fmt.Errorf("kvstore: probe delete: %w", err)
	}
	return nil
}
