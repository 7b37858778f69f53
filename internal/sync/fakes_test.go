package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sakif/codepocket/internal/credential"
	"github.com/sakif/codepocket/internal/kvstore"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/repository"
	"github.com/sakif/codepocket/internal/repository/kvrepo"
)

// fakeRemote counts uploads. When entered is set, every upload announces
// itself on entered and waits for a value on proceed or for ctx to end.
type fakeRemote struct {
	mu      sync.Mutex
	uploads [][]model.Snippet
	err     error
	token   string

	entered chan struct{}
	proceed chan struct{}
}

func (f *fakeRemote) ValidateToken(_ context.Context, token string) bool {
	return token == f.token
}

func (f *fakeRemote) UserInfo(context.Context) (*model.Account, error) {
	return &model.Account{Login: "octocat"}, nil
}

func (f *fakeRemote) Create(ctx context.Context, s []model.Snippet) (*model.Gist, error) {
	return f.upload(ctx, s)
}

func (f *fakeRemote) Update(ctx context.Context, id string, s []model.Snippet) (*model.Gist, error) {
	return f.upload(ctx, s)
}

func (f *fakeRemote) Fetch(context.Context, string) (*model.Gist, error) {
	return nil, nil
}

func (f *fakeRemote) FindSnippetGists(context.Context) ([]model.Gist, error) {
	return nil, nil
}

func (f *fakeRemote) upload(ctx context.Context, s []model.Snippet) (*model.Gist, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, s)
	err := f.err
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
		select {
		case <-f.proceed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.Gist{ID: "g1", HTMLURL: "https://gist.github.com/g1"}, nil
}

func (f *fakeRemote) Uploads() [][]model.Snippet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]model.Snippet(nil), f.uploads...)
}

// fakeScheduler records timers; tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d  time.Duration
	f  func()
	mu sync.Mutex

	stopped bool
	fired   bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Timers() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeTimer(nil), s.timers...)
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the callback unless the timer was stopped.
func (t *fakeTimer) Fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type harness struct {
	engine   *Engine
	creds    *credential.Store
	kv       kvstore.Store
	snippets repository.SnippetStore
	sched    *fakeScheduler
}

// newHarness wires an engine to a file-backed store. When token is not
// empty it is stored as if the user had logged in.
func newHarness(t *testing.T, remote Remote, token string) *harness {
	t.Helper()
	kv := kvstore.NewFileStore(t.TempDir() + "/store.json")
	creds := credential.New(kv)
	if token != "" {
		if err := creds.SetToken(context.Background(), token); err != nil {
			t.Fatalf("storing token: %v", err)
		}
	}
	repo := kvrepo.New(kv)
	sched := &fakeScheduler{}
	e := New(creds, kv, remote, repo, WithScheduler(sched))
	t.Cleanup(e.Close)
	return &harness{engine: e, creds: creds, kv: kv, snippets: repo, sched: sched}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// goDone runs f in a goroutine and returns a channel closed when it returns.
func goDone(f func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	return done
}
