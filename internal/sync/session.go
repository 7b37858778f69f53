package sync

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/model"
)

// AuthResult is returned by a successful Authenticate.
type AuthResult struct {
	Account *model.Account `json:"account,omitempty"`
	// RemoteDocID is the backup Gist in use after authentication, if any.
	RemoteDocID string `json:"remoteDocId,omitempty"`
	// Reconnected is set when an existing backup was found and adopted.
	Reconnected bool `json:"reconnected"`
}

// Status is the sync panel summary.
type Status struct {
	Authenticated   bool       `json:"authenticated"`
	HasGist         bool       `json:"hasGist"`
	RemoteDocID     string     `json:"remoteDocId,omitempty"`
	LastSync        *time.Time `json:"lastSync"`
	CanSync         bool       `json:"canSync"`
	AutoSyncEnabled bool       `json:"autoSyncEnabled"`
	State           string     `json:"state"`
	LastRun         *RunReport `json:"lastRun,omitempty"`
}

// Authenticate stores token once GitHub accepts it, then tries to reconnect
// to an existing backup Gist. Reconnect failures are logged and ignored; the
// next upload then creates a Gist.
func (e *Engine) Authenticate(ctx context.Context, token string) (*AuthResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.Auth("token is required")
	}
	if !e.remote.ValidateToken(ctx, token) {
		return nil, apperror.Auth("invalid token")
	}
	if err := e.creds.SetToken(ctx, token); err != nil {
		return nil, err
	}

	res := &AuthResult{}
	if acct, err := e.remote.UserInfo(ctx); err == nil {
		res.Account = acct
	} else {
		e.logger.Warn("fetching account after login", slog.String("error", err.Error()))
	}

	id, err := e.creds.RemoteDocID(ctx)
	if err != nil {
		return nil, err
	}
	if id != "" {
		res.RemoteDocID = id
		return res, nil
	}

	if err := e.acquire(ctx); err != nil {
		return res, nil
	}
	defer e.release()

	found, err := e.discover(ctx)
	if err != nil {
		e.logger.Warn("looking for an existing backup gist", slog.String("error", err.Error()))
		return res, nil
	}
	if found != nil {
		res.RemoteDocID = found.ID
		res.Reconnected = true
	}
	return res, nil
}

// Account returns the GitHub account behind the stored token.
func (e *Engine) Account(ctx context.Context) (*model.Account, error) {
	if _, err := e.creds.RequireToken(ctx); err != nil {
		return nil, err
	}
	return e.remote.UserInfo(ctx)
}

// Disconnect forgets the token, the Gist ID and the last sync time. Local
// snippets and the auto-sync toggle are kept.
func (e *Engine) Disconnect(ctx context.Context) error {
	if err := e.creds.ClearAll(ctx); err != nil {
		return err
	}
	e.logger.Info("disconnected from GitHub")
	return nil
}

// Status reports the session and auto-sync state.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	c, err := e.creds.Load(ctx)
	if err != nil {
		return nil, err
	}
	enabled, err := e.AutoSyncEnabled(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Authenticated:   c.Authenticated(),
		HasGist:         c.RemoteDocID != "",
		RemoteDocID:     c.RemoteDocID,
		LastSync:        c.LastSync,
		CanSync:         c.Authenticated(),
		AutoSyncEnabled: enabled,
		State:           e.State().String(),
		LastRun:         e.LastRun(),
	}, nil
}
