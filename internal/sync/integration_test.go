package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/credential"
	"github.com/sakif/codepocket/internal/gist"
	"github.com/sakif/codepocket/internal/gist/gisttest"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/repository/sqlite"
)

const githubToken = "ghp_integration"

var created = time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)

func fullSnippet(id string) model.Snippet {
	return model.Snippet{
		ID:          id,
		Title:       "Snippet " + id,
		Description: "does " + id,
		Language:    "python",
		Code:        "def f():\n    return '" + id + "'\n",
		Tags:        []string{"demo", id},
		CreatedAt:   created,
		UpdatedAt:   created.Add(time.Minute),
	}
}

type stack struct {
	github   *gisttest.Server
	engine   *Engine
	creds    *credential.Store
	snippets *sqlite.DB
}

// newStack wires the engine to a real Gist client talking to a fake GitHub,
// with sqlite for both key-value and snippet storage.
func newStack(t *testing.T, token string) *stack {
	t.Helper()
	srv := gisttest.NewServer(t, githubToken)

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	creds := credential.New(db.KV())
	if token != "" {
		require.NoError(t, creds.SetToken(context.Background(), token))
	}
	client := gist.New(creds, gist.WithBaseURL(srv.URL), gist.WithHTTPClient(srv.Client()))
	e := New(creds, db.KV(), client, db, WithScheduler(&fakeScheduler{}))
	t.Cleanup(e.Close)

	return &stack{github: srv, engine: e, creds: creds, snippets: db}
}

func (s *stack) local(t *testing.T) []model.Snippet {
	t.Helper()
	all, err := s.snippets.GetAll(context.Background())
	require.NoError(t, err)
	return all
}

// Uploading S and pulling it back with replace yields S.
func TestRoundTrip_UploadThenReplace(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	want := []model.Snippet{fullSnippet("a"), fullSnippet("b"), fullSnippet("c")}
	require.NoError(t, s.snippets.ReplaceAll(ctx, want))

	res, err := s.engine.Upload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.NotEmpty(t, res.RemoteDocID)
	assert.Equal(t, "https://gist.github.com/"+res.RemoteDocID, res.RemoteURL)

	require.NoError(t, s.snippets.ReplaceAll(ctx, []model.Snippet{fullSnippet("z")}))

	pull, err := s.engine.Pull(ctx, StaticDecision(Replace))
	require.NoError(t, err)
	assert.Equal(t, "replace", pull.Mode)
	assert.Equal(t, 3, pull.Total)
	assert.Equal(t, want, s.local(t))
}

func TestPull_Merge(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	remote := []model.Snippet{fullSnippet("b"), fullSnippet("c")}
	_, err := s.engine.UploadSnippets(ctx, remote)
	require.NoError(t, err)

	localB := fullSnippet("b")
	localB.Title = "local edit"
	require.NoError(t, s.snippets.ReplaceAll(ctx, []model.Snippet{fullSnippet("a"), localB}))

	pull, err := s.engine.Pull(ctx, StaticDecision(Merge))
	require.NoError(t, err)
	assert.Equal(t, 1, pull.Added)
	assert.Equal(t, 3, pull.Total)

	got := s.local(t)
	assert.Equal(t, []string{"c", "a", "b"}, model.IDs(got))
	assert.Equal(t, "local edit", got[2].Title)
}

func TestPull_Abort(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	_, err := s.engine.UploadSnippets(ctx, []model.Snippet{fullSnippet("r")})
	require.NoError(t, err)
	require.NoError(t, s.snippets.ReplaceAll(ctx, []model.Snippet{fullSnippet("l")}))

	pull, err := s.engine.Pull(ctx, StaticDecision(Abort))
	require.NoError(t, err)
	assert.Equal(t, "abort", pull.Mode)
	assert.Equal(t, []string{"l"}, model.IDs(s.local(t)))
}

type countingConfirmer struct{ calls int }

func (c *countingConfirmer) ConfirmMergeOrReplace(context.Context, int, int) (Decision, error) {
	c.calls++
	return Replace, nil
}

func TestPull_EmptyRemoteChangesNothing(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	_, err := s.engine.UploadSnippets(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.snippets.ReplaceAll(ctx, []model.Snippet{fullSnippet("l")}))

	c := &countingConfirmer{}
	pull, err := s.engine.Pull(ctx, c)
	require.NoError(t, err)
	assert.True(t, pull.Empty)
	assert.Zero(t, c.calls)
	assert.Equal(t, []string{"l"}, model.IDs(s.local(t)))
}

// No known Gist and none to discover: NotFound, and the local collection
// is untouched.
func TestDownload_NothingToDiscover(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	s.github.Put(model.Gist{ID: "unrelated", Description: "dotfiles"})
	require.NoError(t, s.snippets.ReplaceAll(ctx, []model.Snippet{fullSnippet("l")}))

	_, err := s.engine.DownloadSnippets(ctx)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	_, err = s.engine.Pull(ctx, StaticDecision(Replace))
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	assert.Equal(t, []model.Snippet{fullSnippet("l")}, s.local(t))
	id, err := s.creds.RemoteDocID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDownload_DiscoversMostRecent(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()

	older, err := gist.EncodePayload([]model.Snippet{fullSnippet("old")}, created)
	require.NoError(t, err)
	newer, err := gist.EncodePayload([]model.Snippet{fullSnippet("new")}, created)
	require.NoError(t, err)
	s.github.Put(model.Gist{
		ID: "g-old", Description: model.GistDescription, UpdatedAt: created,
		Files: map[string]model.GistFile{model.GistFileName: {Content: older}},
	})
	s.github.Put(model.Gist{
		ID: "g-new", Description: "renamed by user", UpdatedAt: created.Add(time.Hour),
		Files: map[string]model.GistFile{model.GistFileName: {Content: newer}},
	})

	d, err := s.engine.DownloadSnippets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "g-new", d.RemoteDocID)
	assert.Equal(t, []string{"new"}, model.IDs(d.Snippets))

	id, err := s.creds.RemoteDocID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "g-new", id)
}

func TestDownload_MissingFile(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	s.github.Put(model.Gist{ID: "g1", Files: map[string]model.GistFile{"notes.md": {Content: "hi"}}})
	require.NoError(t, s.creds.SetRemoteDocID(ctx, "g1"))

	_, err := s.engine.DownloadSnippets(ctx)
	assert.True(t, errors.Is(err, apperror.ErrParse), "got %v", err)
}

// A Gist deleted on github.com is recreated by the next upload.
func TestUpload_RecreatesDeletedGist(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	require.NoError(t, s.snippets.ReplaceAll(ctx, []model.Snippet{fullSnippet("a")}))

	first, err := s.engine.Upload(ctx)
	require.NoError(t, err)
	s.github.Remove(first.RemoteDocID)

	second, err := s.engine.Upload(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.RemoteDocID, second.RemoteDocID)
	assert.Equal(t, 2, s.github.Calls(gisttest.RouteCreateGist))
	assert.Equal(t, 1, s.github.Calls(gisttest.RouteUpdateGist))

	id, err := s.creds.RemoteDocID(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RemoteDocID, id)
}

func TestUpload_RemoteErrorSurfaces(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	require.NoError(t, s.snippets.ReplaceAll(ctx, []model.Snippet{fullSnippet("a")}))
	s.github.FailWith(gisttest.RouteCreateGist, http.StatusForbidden, "Resource not accessible")

	_, err := s.engine.Upload(ctx)
	require.Error(t, err)
	assert.Equal(t, "failed to create Gist: Resource not accessible", err.Error())
}

func TestAuthenticate(t *testing.T) {
	t.Run("invalid token is not stored", func(t *testing.T) {
		s := newStack(t, "")

		_, err := s.engine.Authenticate(context.Background(), "ghp_wrong")
		assert.True(t, errors.Is(err, apperror.ErrAuth))

		ok, err := s.creds.IsAuthenticated(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("blank token", func(t *testing.T) {
		s := newStack(t, "")

		_, err := s.engine.Authenticate(context.Background(), "   ")
		assert.True(t, errors.Is(err, apperror.ErrAuth))
		assert.Zero(t, s.github.Calls(gisttest.RouteUser))
	})

	t.Run("reconnects to existing backup", func(t *testing.T) {
		s := newStack(t, "")
		s.github.Put(model.Gist{ID: "backup", Description: model.GistDescription})

		res, err := s.engine.Authenticate(context.Background(), " "+githubToken+"\n")
		require.NoError(t, err)
		assert.True(t, res.Reconnected)
		assert.Equal(t, "backup", res.RemoteDocID)
		require.NotNil(t, res.Account)
		assert.Equal(t, "octocat", res.Account.Login)

		tok, err := s.creds.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, githubToken, tok)
	})

	t.Run("discovery failure is not fatal", func(t *testing.T) {
		s := newStack(t, "")
		s.github.FailWith(gisttest.RouteListGists, http.StatusInternalServerError, "boom")

		res, err := s.engine.Authenticate(context.Background(), githubToken)
		require.NoError(t, err)
		assert.False(t, res.Reconnected)
		assert.Empty(t, res.RemoteDocID)

		ok, err := s.creds.IsAuthenticated(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestDisconnectAndStatus(t *testing.T) {
	s := newStack(t, githubToken)
	ctx := context.Background()
	require.NoError(t, s.snippets.ReplaceAll(ctx, []model.Snippet{fullSnippet("a")}))
	require.NoError(t, s.engine.SetAutoSync(ctx, false))
	_, err := s.engine.Upload(ctx)
	require.NoError(t, err)

	st, err := s.engine.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.True(t, st.HasGist)
	assert.True(t, st.CanSync)
	assert.False(t, st.AutoSyncEnabled)
	assert.NotNil(t, st.LastSync)
	assert.Equal(t, "idle", st.State)

	require.NoError(t, s.engine.Disconnect(ctx))

	st, err = s.engine.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)
	assert.False(t, st.HasGist)
	assert.False(t, st.CanSync)
	assert.Nil(t, st.LastSync)
	assert.False(t, st.AutoSyncEnabled, "disconnect keeps the toggle")
	assert.Len(t, s.local(t), 1, "disconnect keeps local snippets")
}

func TestAccount(t *testing.T) {
	s := newStack(t, "")
	_, err := s.engine.Account(context.Background())
	assert.True(t, errors.Is(err, apperror.ErrAuth))
	assert.Zero(t, s.github.Calls(gisttest.RouteUser))

	require.NoError(t, s.creds.SetToken(context.Background(), githubToken))
	acct, err := s.engine.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octocat", acct.Login)
	assert.Equal(t, int64(42), acct.ID)
}
