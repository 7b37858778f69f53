package handler_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/auth"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/repository/sqlite"
	"github.com/sakif/codepocket/internal/service"
	synceng "github.com/sakif/codepocket/internal/sync"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newSnippetService wires the real service to an in-memory sqlite store with
// no syncer attached.
func newSnippetService(t *testing.T) (*service.SnippetService, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return service.NewSnippetService(db, nil, quietLogger()), db
}

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("handler-test-secret-1234")
	require.NoError(t, err)
	return ts
}

// fakeSession answers Authenticate for a single accepted token.
type fakeSession struct {
	accept      string
	disconnects int
}

func (f *fakeSession) Authenticate(_ context.Context, token string) (*synceng.AuthResult, error) {
	if token != f.accept {
		return nil, apperror.Auth("invalid token")
	}
	return &synceng.AuthResult{Account: &model.Account{ID: 42, Login: "octocat"}, RemoteDocID: "gist0001"}, nil
}

func (f *fakeSession) Disconnect(context.Context) error {
	f.disconnects++
	return nil
}

type fakeAccounts struct {
	acct *model.Account
	err  error
}

func (f fakeAccounts) Account(context.Context) (*model.Account, error) {
	return f.acct, f.err
}

// fakeEngine records what the sync handler asked for.
type fakeEngine struct {
	status   *synceng.Status
	upload   *synceng.UploadResult
	err      error
	decision synceng.Decision
	pulled   int
	autoSync *bool
}

func (f *fakeEngine) Status(context.Context) (*synceng.Status, error) {
	return f.status, f.err
}

func (f *fakeEngine) Upload(context.Context) (*synceng.UploadResult, error) {
	return f.upload, f.err
}

func (f *fakeEngine) Pull(ctx context.Context, c synceng.Confirmer) (*synceng.PullResult, error) {
	f.pulled++
	if f.err != nil {
		return nil, f.err
	}
	d, err := c.ConfirmMergeOrReplace(ctx, 1, 2)
	if err != nil {
		return nil, err
	}
	f.decision = d
	return &synceng.PullResult{Decision: d, Mode: d.String(), Remote: 2, Total: 3}, nil
}

func (f *fakeEngine) SetAutoSync(_ context.Context, enabled bool) error {
	if f.err != nil {
		return f.err
	}
	f.autoSync = &enabled
	return nil
}
