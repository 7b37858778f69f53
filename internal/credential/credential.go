// Package credential persists the session: the GitHub token, the ID of the
// backup Gist and the time of the last successful upload.
//
// Nothing is cached. Every call goes to the underlying key-value store, so a
// change made through one Store (or by another process sharing the backend)
// is seen by the next call on any other.
package credential

import (
	"context"
	"time"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/kvstore"
	"github.com/sakif/codepocket/internal/model"
)

// Store reads and writes credential keys.
type Store struct {
	kv  kvstore.Store
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for TouchLastSync.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(kv kvstore.Store, opts ...Option) *Store {
	s := &Store{kv: kv, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Token returns the stored token, or "" when none is stored.
func (s *Store) Token(ctx context.Context) (string, error) {
	v, _, err := s.kv.Get(ctx, kvstore.KeyToken)
	return v, err
}

func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.kv.Set(ctx, kvstore.KeyToken, token)
}

// RemoteDocID returns the backup Gist ID, or "" when none is stored.
func (s *Store) RemoteDocID(ctx context.Context) (string, error) {
	v, _, err := s.kv.Get(ctx, kvstore.KeyRemoteDocID)
	return v, err
}

func (s *Store) SetRemoteDocID(ctx context.Context, id string) error {
	return s.kv.Set(ctx, kvstore.KeyRemoteDocID, id)
}

// LastSync returns the last successful upload time, or nil if there was none
// or the stored value cannot be parsed.
func (s *Store) LastSync(ctx context.Context) (*time.Time, error) {
	v, ok, err := s.kv.Get(ctx, kvstore.KeyLastSync)
	if err != nil || !ok || v == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

// TouchLastSync records the current time as the last successful upload.
func (s *Store) TouchLastSync(ctx context.Context) error {
	return s.kv.Set(ctx, kvstore.KeyLastSync, s.now().UTC().Format(time.RFC3339Nano))
}

// ClearAll removes token, remote ID and last sync time together. This is the
// only path that removes the remote ID.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.kv.Delete(ctx, kvstore.KeyToken, kvstore.KeyRemoteDocID, kvstore.KeyLastSync)
}

// IsAuthenticated reports whether a non-empty token is stored.
func (s *Store) IsAuthenticated(ctx context.Context) (bool, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return false, err
	}
	return tok != "", nil
}

// RequireToken returns the token or an AuthError when none is stored.
func (s *Store) RequireToken(ctx context.Context) (string, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", apperror.Auth("no authentication token")
	}
	return tok, nil
}

// Load reads every credential key.
func (s *Store) Load(ctx context.Context) (model.Credential, error) {
	var c model.Credential
	var err error
	if c.Token, err = s.Token(ctx); err != nil {
		return c, err
	}
	if c.RemoteDocID, err = s.RemoteDocID(ctx); err != nil {
		return c, err
	}
	if c.LastSync, err = s.LastSync(ctx); err != nil {
		return c, err
	}
	return c, nil
}
