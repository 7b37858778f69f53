// Package kvrepo stores the snippet collection as one JSON array under the
// "snippets" key of a kvstore.Store. It is the snippet store used when the
// sqlite backend is unavailable, and it reads the same layout the browser
// extension writes.
package kvrepo

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/kvstore"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/repository"
)

var _ repository.SnippetStore = (*Repo)(nil)

// Repo serialises read-modify-write cycles on the collection with a mutex.
// The store itself only guarantees single-key atomicity.
type Repo struct {
	kv kvstore.Store
	mu sync.Mutex
}

func New(kv kvstore.Store) *Repo {
	return &Repo{kv: kv}
}

func (r *Repo) GetAll(ctx context.Context) ([]model.Snippet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *Repo) ReplaceAll(ctx context.Context, snippets []model.Snippet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Snippet, 0, len(snippets))
	seen := make(map[string]struct{}, len(snippets))
	for _, s := range snippets {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return r.save(ctx, out)
}

func (r *Repo) UpsertMany(ctx context.Context, snippets []model.Snippet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return err
	}
	index := make(map[string]int, len(all))
	for i, s := range all {
		index[s.ID] = i
	}

	var fresh []model.Snippet
	seen := make(map[string]struct{}, len(snippets))
	for _, s := range snippets {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		if i, ok := index[s.ID]; ok {
			all[i] = s
			continue
		}
		fresh = append(fresh, s)
	}
	return r.save(ctx, append(fresh, all...))
}

func (r *Repo) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, apperror.NotFound("snippet", id)
}

// Create prepends snippet. The ID must be set and unused.
func (r *Repo) Create(ctx context.Context, snippet *model.Snippet) error {
	if snippet.ID == "" {
		return apperror.ValidationFailed("id", "snippet id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.ID == snippet.ID {
			return apperror.ValidationFailed("id", "snippet id already exists: "+snippet.ID)
		}
	}
	return r.save(ctx, append([]model.Snippet{*snippet}, all...))
}

func (r *Repo) Update(ctx context.Context, snippet *model.Snippet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].ID == snippet.ID {
			all[i] = *snippet
			return r.save(ctx, all)
		}
	}
	return apperror.NotFound("snippet", snippet.ID)
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].ID == id {
			return r.save(ctx, append(all[:i], all[i+1:]...))
		}
	}
	return apperror.NotFound("snippet", id)
}

// load decodes the collection. A missing key is an empty collection.
func (r *Repo) load(ctx context.Context) ([]model.Snippet, error) {
	raw, ok, err := r.kv.Get(ctx, kvstore.KeySnippets)
	if err != nil {
		return nil, err
	}
	out := make([]model.Snippet, 0)
	if !ok || raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, apperror.Parse("stored snippets are malformed", err)
	}
	for i := range out {
		out[i].Tags = model.NormalizeTags(out[i].Tags)
	}
	return out, nil
}

func (r *Repo) save(ctx context.Context, snippets []model.Snippet) error {
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	b, err := json.Marshal(snippets)
	if err != nil {
		return apperror.Storage("encoding snippets", err)
	}
	return r.kv.Set(ctx, kvstore.KeySnippets, string(b))
}
