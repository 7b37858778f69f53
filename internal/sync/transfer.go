package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/gist"
	"github.com/sakif/codepocket/internal/model"
)

// UploadResult describes the Gist after a push.
type UploadResult struct {
	RemoteDocID string    `json:"remoteDocId"`
	RemoteURL   string    `json:"remoteUrl"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Count       int       `json:"count"`
}

// Download is the decoded content of the backup Gist.
type Download struct {
	RemoteDocID string          `json:"remoteDocId"`
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Snippets    []model.Snippet `json:"snippets"`
}

// PullResult describes what a pull did to the local collection.
type PullResult struct {
	Decision Decision `json:"-"`
	Mode     string   `json:"mode"`
	Remote   int      `json:"remote"`
	Added    int      `json:"added"`
	Total    int      `json:"total"`
	// Empty is set when the Gist held no snippets; nothing was asked or
	// changed.
	Empty bool `json:"empty"`
}

// UploadSnippets pushes snippets as the full remote collection. With no
// known Gist it creates one; otherwise it updates, and the client recreates
// a Gist that has disappeared.
func (e *Engine) UploadSnippets(ctx context.Context, snippets []model.Snippet) (*UploadResult, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()
	return e.uploadLocked(ctx, snippets)
}

// Upload is the manual push of the current local collection. An empty
// collection is refused.
func (e *Engine) Upload(ctx context.Context) (*UploadResult, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	if _, err := e.creds.RequireToken(ctx); err != nil {
		return nil, err
	}
	all, err := e.snippets.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, apperror.ValidationFailed("snippets", "no snippets to upload")
	}
	return e.uploadLocked(ctx, all)
}

// uploadLocked expects the flight token to be held.
func (e *Engine) uploadLocked(ctx context.Context, snippets []model.Snippet) (*UploadResult, error) {
	// Read fresh: the auth flow may have changed it since the last call.
	id, err := e.creds.RemoteDocID(ctx)
	if err != nil {
		return nil, err
	}

	var g *model.Gist
	if id == "" {
		g, err = e.remote.Create(ctx, snippets)
	} else {
		g, err = e.remote.Update(ctx, id, snippets)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("uploaded snippets",
		slog.String("gist_id", g.ID),
		slog.Int("count", len(snippets)),
	)
	return &UploadResult{
		RemoteDocID: g.ID,
		RemoteURL:   g.HTMLURL,
		UpdatedAt:   g.UpdatedAt,
		Count:       len(snippets),
	}, nil
}

// DownloadSnippets fetches and decodes the backup Gist. With no known Gist
// it adopts the most recently updated backup among the user's Gists, or
// fails with NotFound when there is none. The local collection is never
// touched.
func (e *Engine) DownloadSnippets(ctx context.Context) (*Download, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	id, err := e.creds.RemoteDocID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		found, err := e.discover(ctx)
		if err != nil {
			return nil, err
		}
		if found == nil {
			return nil, apperror.NotFound("snippets Gist", "")
		}
		id = found.ID
	}

	g, err := e.remote.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := gist.DecodePayload(g)
	if err != nil {
		return nil, err
	}
	return &Download{
		RemoteDocID: id,
		Version:     p.Version,
		Timestamp:   p.Timestamp,
		Snippets:    p.Snippets,
	}, nil
}

// Pull downloads the backup, asks c how to apply it and applies the answer.
// An empty backup changes nothing and asks nothing.
func (e *Engine) Pull(ctx context.Context, c Confirmer) (*PullResult, error) {
	d, err := e.DownloadSnippets(ctx)
	if err != nil {
		return nil, err
	}
	res := &PullResult{Remote: len(d.Snippets)}
	if len(d.Snippets) == 0 {
		res.Empty = true
		res.Mode = Abort.String()
		return res, nil
	}

	local, err := e.snippets.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	decision, err := c.ConfirmMergeOrReplace(ctx, len(local), len(d.Snippets))
	if err != nil {
		return nil, err
	}
	res.Decision = decision
	res.Mode = decision.String()

	switch decision {
	case Merge:
		added := remoteOnly(local, d.Snippets)
		if len(added) > 0 {
			if err := e.snippets.UpsertMany(ctx, added); err != nil {
				return nil, err
			}
		}
		res.Added = len(added)
	case Replace:
		if err := e.snippets.ReplaceAll(ctx, ReplaceSnippets(d.Snippets)); err != nil {
			return nil, err
		}
	default:
		res.Total = len(local)
		return res, nil
	}

	after, err := e.snippets.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	res.Total = len(after)

	e.logger.Info("pulled snippets",
		slog.String("mode", res.Mode),
		slog.Int("remote", res.Remote),
		slog.Int("added", res.Added),
		slog.Int("total", res.Total),
	)
	return res, nil
}

// discover finds the most recently updated backup Gist and stores its ID.
// It returns nil when the user has none. Callers hold the flight token.
func (e *Engine) discover(ctx context.Context) (*model.Gist, error) {
	gists, err := e.remote.FindSnippetGists(ctx)
	if err != nil {
		return nil, err
	}
	var best *model.Gist
	for i := range gists {
		if best == nil || gists[i].UpdatedAt.After(best.UpdatedAt) {
			best = &gists[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	if err := e.creds.SetRemoteDocID(ctx, best.ID); err != nil {
		return nil, err
	}
	e.logger.Info("connected to existing backup gist", slog.String("gist_id", best.ID))
	return best, nil
}
