// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler / CLI / Watcher  → parse input, render output
//	Service                  → validates, enforces rules, orchestrates
//	Repository               → reads/writes the snippet store
//
// Every front end (the local HTTP API, the cobra CLI, the inbox watcher)
// calls the same service methods, so validation and the auto-sync hook live
// in exactly one place.
//
// DEPENDENCY INJECTION:
// SnippetService takes a repository.SnippetStore (interface) and a Syncer
// (interface). main wires the sqlite or key-value store and the sync engine;
// tests pass in-memory fakes.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/repository"
	synceng "github.com/sakif/codepocket/internal/sync"
)

// Validation limits.
const (
	MaxTitleLength = 200
	MaxCodeLength  = 1 << 20 // 1 MiB of code
)

// CaptureTag marks snippets that arrived through the capture path.
const CaptureTag = "web-capture"

// Syncer is the slice of the sync engine the service needs.
//
//   - Trigger is fire-and-forget: called after every local mutation.
//   - SyncNow is used after an import, where the caller reports the outcome.
type Syncer interface {
	Trigger()
	SyncNow(ctx context.Context) (synceng.Outcome, error)
}

// SnippetService handles business logic for code snippets.
type SnippetService struct {
	repo   repository.SnippetStore
	syncer Syncer
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewSnippetService creates a new SnippetService.
//
// syncer may be nil, in which case mutations never trigger a sync.
func NewSnippetService(repo repository.SnippetStore, syncer Syncer, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		syncer: syncer,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return xid.New().String() },
	}
}

// SnippetInput is what a user submits from the editor. An empty ID creates
// a new snippet; a set ID edits that snippet.
type SnippetInput struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Code        string   `json:"code"`
	Tags        []string `json:"tags"`
}

// Filter narrows List. Search matches title, description, code and tags,
// case-insensitively. Language must match exactly. Empty fields match all.
type Filter struct {
	Search   string
	Language string
}

// Save validates in and creates or updates the snippet.
//
// RULES:
//   - title, language and code are required (code is checked for
//     non-whitespace but stored byte-for-byte)
//   - a new snippet gets a fresh xid and is prepended to the collection
//   - an edit keeps the original createdAt and bumps updatedAt
//
// On success an auto-sync is triggered in the background.
func (s *SnippetService) Save(ctx context.Context, in SnippetInput) (*model.Snippet, error) {
	snippet, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if in.ID == "" {
		snippet.ID = s.newID()
		snippet.CreatedAt = now
		snippet.UpdatedAt = now
		if err := s.repo.Create(ctx, snippet); err != nil {
			s.logger.Error("failed to create snippet",
				slog.String("title", snippet.Title),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("creating snippet: %w", err)
		}
		s.logger.Info("snippet created",
			slog.String("id", snippet.ID),
			slog.String("language", snippet.Language),
		)
		s.trigger()
		return snippet, nil
	}

	existing, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	snippet.ID = existing.ID
	snippet.CreatedAt = existing.CreatedAt
	snippet.UpdatedAt = now
	if err := s.repo.Update(ctx, snippet); err != nil {
		return nil, fmt.Errorf("updating snippet %s: %w", in.ID, err)
	}
	s.logger.Info("snippet updated", slog.String("id", snippet.ID))
	s.trigger()
	return snippet, nil
}

// Delete removes a snippet and triggers an auto-sync.
func (s *SnippetService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperror.ValidationFailed("id", "snippet id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("snippet deleted", slog.String("id", id))
	s.trigger()
	return nil
}

// Get returns one snippet.
func (s *SnippetService) Get(ctx context.Context, id string) (*model.Snippet, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// List returns the collection in order, narrowed by f.
func (s *SnippetService) List(ctx context.Context, f Filter) ([]model.Snippet, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.Snippet, 0, len(all))
	for _, sn := range all {
		if f.Language != "" && sn.Language != f.Language {
			continue
		}
		if search != "" && !matches(sn, search) {
			continue
		}
		out = append(out, sn)
	}
	return out, nil
}

// Languages returns the distinct languages in the collection, in order of
// first appearance. The UI builds its language filter from it.
func (s *SnippetService) Languages(ctx context.Context) ([]string, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, sn := range all {
		if _, ok := seen[sn.Language]; ok || sn.Language == "" {
			continue
		}
		seen[sn.Language] = struct{}{}
		out = append(out, sn.Language)
	}
	return out, nil
}

// CaptureInput is a selection handed over by the capture path (browser
// extension or inbox file).
type CaptureInput struct {
	Title     string   `json:"title"`
	Code      string   `json:"code"`
	Language  string   `json:"language"`
	PageTitle string   `json:"pageTitle"`
	PageURL   string   `json:"pageUrl"`
	Tags      []string `json:"tags"`
}

// Capture stores a captured selection at the top of the collection.
//
// Only code is required. Missing fields get defaults: language "plaintext",
// a title built from the page title, a "Captured from" description, and the
// web-capture tag plus the page's domain.
func (s *SnippetService) Capture(ctx context.Context, in CaptureInput) (*model.Snippet, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, apperror.ValidationFailed("code", "captured code is empty")
	}
	if len(in.Code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or less", MaxCodeLength))
	}

	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = "plaintext"
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = captureTitle(in.PageTitle, language)
	}
	title = truncate(title, MaxTitleLength)

	tags := append([]string{CaptureTag}, in.Tags...)
	var description string
	if in.PageURL != "" {
		description = "Captured from: " + in.PageURL
		if host := domainTag(in.PageURL); host != "" {
			tags = append(tags, host)
		}
	}

	now := s.now().UTC()
	snippet := &model.Snippet{
		ID:          s.newID(),
		Title:       title,
		Description: description,
		Language:    language,
		Code:        in.Code,
		Tags:        model.NormalizeTags(tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, snippet); err != nil {
		return nil, fmt.Errorf("capturing snippet: %w", err)
	}
	s.logger.Info("snippet captured",
		slog.String("id", snippet.ID),
		slog.String("source", in.PageURL),
	)
	s.trigger()
	return snippet, nil
}

// ImportResult reports an import and the sync that followed it.
type ImportResult struct {
	Imported  int             `json:"imported"`
	Skipped   int             `json:"skipped"`
	Sync      synceng.Outcome `json:"sync"`
	SyncError string          `json:"syncError,omitempty"`
	Snippets  []model.Snippet `json:"-"`
}

// importEntry is one element of an import file. Fields are decoded loosely
// so one bad entry does not reject the whole file.
type importEntry struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Language    string     `json:"language"`
	Code        string     `json:"code"`
	Tags        []string   `json:"tags"`
	CreatedAt   *time.Time `json:"createdAt"`
}

// Import adds the snippets of an exported JSON array.
//
// IMPORT RULES:
//   - the file must be a JSON array; anything else is a ParseError
//   - entries without title, language or code are skipped
//   - every imported snippet gets a fresh ID (no collisions with local data)
//   - createdAt is kept when present, updatedAt is now
//   - the imported snippets go to the top, in file order
//
// After storing, a sync runs immediately and its outcome is reported in the
// result. A failed sync does not fail the import.
func (s *SnippetService) Import(ctx context.Context, data []byte) (*ImportResult, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperror.Parse("invalid file format, expected a JSON array of snippets", err)
	}

	now := s.now().UTC()
	res := &ImportResult{Sync: synceng.OutcomeSkipped}
	for _, r := range raw {
		var e importEntry
		if err := json.Unmarshal(r, &e); err != nil {
			res.Skipped++
			continue
		}
		if strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.Language) == "" || e.Code == "" {
			res.Skipped++
			continue
		}
		created := now
		if e.CreatedAt != nil && !e.CreatedAt.IsZero() {
			created = e.CreatedAt.UTC()
		}
		res.Snippets = append(res.Snippets, model.Snippet{
			ID:          s.newID(),
			Title:       strings.TrimSpace(e.Title),
			Description: e.Description,
			Language:    strings.TrimSpace(e.Language),
			Code:        e.Code,
			Tags:        model.NormalizeTags(e.Tags),
			CreatedAt:   created,
			UpdatedAt:   now,
		})
	}
	if len(res.Snippets) == 0 {
		return nil, apperror.ValidationFailed("snippets", "no valid snippets found in the imported file")
	}

	if err := s.repo.UpsertMany(ctx, res.Snippets); err != nil {
		return nil, fmt.Errorf("importing snippets: %w", err)
	}
	res.Imported = len(res.Snippets)
	s.logger.Info("snippets imported",
		slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped),
	)

	if s.syncer != nil {
		outcome, err := s.syncer.SyncNow(ctx)
		res.Sync = outcome
		if err != nil {
			res.SyncError = err.Error()
			s.logger.Warn("sync after import failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// Export renders the whole collection as an indented JSON array, the
// format Import reads. An empty collection is refused.
func (s *SnippetService) Export(ctx context.Context) ([]byte, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting snippets: %w", err)
	}
	if len(all) == 0 {
		return nil, apperror.ValidationFailed("snippets", "no snippets to export")
	}
	b, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("exporting snippets: %w", err)
	}
	return b, nil
}

// ExportFileName is the suggested download name for an export made at t.
func ExportFileName(t time.Time) string {
	return "code-snippets-" + t.UTC().Format("2006-01-02") + ".json"
}

func (s *SnippetService) validate(in SnippetInput) (*model.Snippet, error) {
	title := strings.TrimSpace(in.Title)
	language := strings.TrimSpace(in.Language)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if language == "" {
		return nil, apperror.ValidationFailed("language", "language is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	if len(in.Code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or less", MaxCodeLength))
	}

	return &model.Snippet{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Language:    language,
		Code:        in.Code,
		Tags:        model.NormalizeTags(in.Tags),
	}, nil
}

func (s *SnippetService) trigger() {
	if s.syncer != nil {
		s.syncer.Trigger()
	}
}

func matches(sn model.Snippet, search string) bool {
	if strings.Contains(strings.ToLower(sn.Title), search) ||
		strings.Contains(strings.ToLower(sn.Description), search) ||
		strings.Contains(strings.ToLower(sn.Code), search) {
		return true
	}
	for _, t := range sn.Tags {
		if strings.Contains(strings.ToLower(t), search) {
			return true
		}
	}
	return false
}

func captureTitle(pageTitle, language string) string {
	pageTitle = strings.TrimSpace(pageTitle)
	if pageTitle == "" {
		return language + " snippet"
	}
	return language + " snippet from " + pageTitle
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// domainTag returns the host of pageURL without a leading "www.".
func domainTag(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
