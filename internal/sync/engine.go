package sync

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/codepocket/internal/credential"
	"github.com/sakif/codepocket/internal/kvstore"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/repository"
)

// DefaultRerunDelay is how long a coalesced follow-up push waits.
const DefaultRerunDelay = 2 * time.Second

// Remote is the Gist client surface the engine uses.
type Remote interface {
	ValidateToken(ctx context.Context, token string) bool
	UserInfo(ctx context.Context) (*model.Account, error)
	Create(ctx context.Context, snippets []model.Snippet) (*model.Gist, error)
	Update(ctx context.Context, id string, snippets []model.Snippet) (*model.Gist, error)
	Fetch(ctx context.Context, id string) (*model.Gist, error)
	FindSnippetGists(ctx context.Context) ([]model.Gist, error)
}

// Outcome is what an auto-sync request led to.
type Outcome string

const (
	// OutcomeSkipped: auto-sync is off or there is no token.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeQueued: a push was in flight; this request rides on the
	// follow-up run.
	OutcomeQueued Outcome = "queued"
	OutcomeSynced Outcome = "synced"
	OutcomeFailed Outcome = "failed"
)

// Engine reconciles the local collection with the backup Gist. It is safe
// for concurrent use.
type Engine struct {
	creds    *credential.Store
	settings kvstore.Store
	remote   Remote
	snippets repository.SnippetStore
	logger   *slog.Logger
	sched    Scheduler
	delay    time.Duration
	now      func() time.Time

	// flight is the single network-call token.
	flight chan struct{}

	// base parents deferred runs; Close cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	timer   Timer
	gen     uint64 // bumped whenever a timer is armed or cancelled
	closed  bool
	last    *RunReport
	running sync.WaitGroup
}

// RunReport describes the latest automatic push.
type RunReport struct {
	At      time.Time `json:"at"`
	Outcome Outcome   `json:"outcome"`
	Error   string    `json:"error,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithScheduler replaces time.AfterFunc for the follow-up delay.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithRerunDelay sets the follow-up delay. Non-positive values keep the
// default.
func WithRerunDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine. settings holds the auto-sync toggle; it is usually
// the same store the credentials live in.
func New(creds *credential.Store, settings kvstore.Store, remote Remote, snippets repository.SnippetStore, opts ...Option) *Engine {
	e := &Engine{
		creds:    creds,
		settings: settings,
		remote:   remote,
		snippets: snippets,
		logger:   slog.Default(),
		sched:    clockScheduler{},
		delay:    DefaultRerunDelay,
		now:      time.Now,
		flight:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}
	e.base, e.cancel = context.WithCancel(context.Background())
	return e
}

// State returns the current auto-sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastRun returns the latest automatic push report, or nil.
func (e *Engine) LastRun() *RunReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	r := *e.last
	return &r
}

// AutoSync pushes the local collection when auto-sync is enabled and a
// token is stored. Errors are logged and recorded, never returned. If a
// push is already in flight the request is coalesced and AutoSync returns
// at once.
func (e *Engine) AutoSync(ctx context.Context) {
	_, _ = e.request(ctx)
}

// Trigger starts AutoSync in the background. Mutation paths call it so a
// slow network never blocks a local save.
func (e *Engine) Trigger() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.running.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.running.Done()
		e.AutoSync(e.base)
	}()
}

// SyncNow is AutoSync that reports what happened, for callers that show the
// result (import). A queued request returns OutcomeQueued and no error.
func (e *Engine) SyncNow(ctx context.Context) (Outcome, error) {
	return e.request(ctx)
}

// Close cancels a scheduled follow-up run and waits for background runs.
// A push already in flight runs to completion or failure before Close
// returns.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.stopTimerLocked()
	if e.state == Scheduled {
		e.state = Idle
	}
	e.mu.Unlock()

	e.running.Wait()
	e.cancel()
}

func (e *Engine) request(ctx context.Context) (Outcome, error) {
	if !e.gate(ctx) {
		return OutcomeSkipped, nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return OutcomeSkipped, nil
	}
	from := e.state
	next, act := Transition(e.state, Request)
	e.state = next
	if act == CancelAndStart {
		e.stopTimerLocked()
	}
	e.mu.Unlock()

	e.logger.Debug("auto-sync requested",
		slog.String("from", from.String()),
		slog.String("to", next.String()),
		slog.String("action", act.String()),
	)

	if act != Start && act != CancelAndStart {
		return OutcomeQueued, nil
	}
	return e.run(ctx)
}

// run performs one automatic push and feeds Done into the machine.
func (e *Engine) run(ctx context.Context) (Outcome, error) {
	outcome, err := e.push(ctx)

	report := &RunReport{At: e.now(), Outcome: outcome}
	if err != nil {
		report.Error = err.Error()
		e.logger.Warn("auto-sync failed", slog.String("error", err.Error()))
	} else if outcome == OutcomeSynced {
		e.logger.Info("auto-sync completed")
	}

	e.mu.Lock()
	e.last = report
	next, act := Transition(e.state, Done)
	e.state = next
	if act == Arm && !e.closed {
		e.armTimerLocked()
	} else if act == Arm {
		e.state = Idle
	}
	e.mu.Unlock()

	return outcome, err
}

// push re-checks the gate (a deferred run may find auto-sync switched off),
// then uploads the collection as it is now.
func (e *Engine) push(ctx context.Context) (Outcome, error) {
	if !e.gate(ctx) {
		return OutcomeSkipped, nil
	}
	if err := e.acquire(ctx); err != nil {
		return OutcomeFailed, err
	}
	defer e.release()

	all, err := e.snippets.GetAll(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	if _, err := e.uploadLocked(ctx, all); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeSynced, nil
}

func (e *Engine) armTimerLocked() {
	e.gen++
	gen := e.gen
	e.running.Add(1)
	e.timer = e.sched.AfterFunc(e.delay, func() {
		defer e.running.Done()
		e.fire(gen)
	})
}

// stopTimerLocked cancels the armed timer. A callback that already started
// sees a stale generation and returns.
func (e *Engine) stopTimerLocked() {
	if e.timer != nil && e.timer.Stop() {
		// The callback will never run; balance armTimerLocked.
		e.running.Done()
	}
	e.timer = nil
	e.gen++
}

func (e *Engine) fire(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.closed {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	next, act := Transition(e.state, TimerFired)
	e.state = next
	e.mu.Unlock()

	if act == Start {
		e.run(e.base)
	}
}

// gate reports whether auto-sync may run: the toggle is on and a token is
// stored. Read errors close the gate.
func (e *Engine) gate(ctx context.Context) bool {
	enabled, err := e.AutoSyncEnabled(ctx)
	if err != nil {
		e.logger.Warn("reading auto-sync setting", slog.String("error", err.Error()))
		return false
	}
	if !enabled {
		e.logger.Debug("auto-sync disabled, skipping")
		return false
	}
	authed, err := e.creds.IsAuthenticated(ctx)
	if err != nil {
		e.logger.Warn("reading credentials", slog.String("error", err.Error()))
		return false
	}
	if !authed {
		e.logger.Debug("not authenticated, skipping auto-sync")
	}
	return authed
}

// AutoSyncEnabled reads the persisted toggle. Unset means enabled.
func (e *Engine) AutoSyncEnabled(ctx context.Context) (bool, error) {
	v, ok, err := e.settings.Get(ctx, kvstore.KeyAutoSync)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true, nil
	}
	return enabled, nil
}

// SetAutoSync persists the toggle.
func (e *Engine) SetAutoSync(ctx context.Context, enabled bool) error {
	if err := e.settings.Set(ctx, kvstore.KeyAutoSync, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	e.logger.Info("auto-sync toggled", slog.Bool("enabled", enabled))
	return nil
}

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.flight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.flight
}
