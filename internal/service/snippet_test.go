package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/model"
	synceng "github.com/sakif/codepocket/internal/sync"
)

// =========================================================================
// MOCK REPOSITORY
// =========================================================================
//
// mockSnippetRepo implements repository.SnippetStore over an ordered slice,
// the same contract as sqlite.DB and kvrepo.Repo. The service doesn't know
// or care which one it gets.
//
// failNext lets a test simulate a storage failure on the next write.

type mockSnippetRepo struct {
	snippets []model.Snippet
	failNext error
}

func newMockRepo() *mockSnippetRepo {
	return &mockSnippetRepo{}
}

func (m *mockSnippetRepo) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *mockSnippetRepo) index(id string) int {
	for i, s := range m.snippets {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (m *mockSnippetRepo) GetAll(_ context.Context) ([]model.Snippet, error) {
	out := make([]model.Snippet, len(m.snippets))
	copy(out, m.snippets)
	return out, nil
}

func (m *mockSnippetRepo) ReplaceAll(_ context.Context, snippets []model.Snippet) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.snippets = append([]model.Snippet(nil), snippets...)
	return nil
}

func (m *mockSnippetRepo) UpsertMany(_ context.Context, snippets []model.Snippet) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	var fresh []model.Snippet
	for _, s := range snippets {
		if i := m.index(s.ID); i >= 0 {
			m.snippets[i] = s
			continue
		}
		fresh = append(fresh, s)
	}
	m.snippets = append(fresh, m.snippets...)
	return nil
}

func (m *mockSnippetRepo) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	i := m.index(id)
	if i < 0 {
		return nil, apperror.NotFound("snippet", id)
	}
	// Return a copy so the caller can't modify our internal state
	result := m.snippets[i]
	return &result, nil
}

func (m *mockSnippetRepo) Create(_ context.Context, snippet *model.Snippet) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	if m.index(snippet.ID) >= 0 {
		return apperror.ValidationFailed("id", "duplicate id")
	}
	m.snippets = append([]model.Snippet{*snippet}, m.snippets...)
	return nil
}

func (m *mockSnippetRepo) Update(_ context.Context, snippet *model.Snippet) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	i := m.index(snippet.ID)
	if i < 0 {
		return apperror.NotFound("snippet", snippet.ID)
	}
	m.snippets[i] = *snippet
	return nil
}

func (m *mockSnippetRepo) Delete(_ context.Context, id string) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	i := m.index(id)
	if i < 0 {
		return apperror.NotFound("snippet", id)
	}
	m.snippets = append(m.snippets[:i], m.snippets[i+1:]...)
	return nil
}

// fakeSyncer counts auto-sync triggers and answers SyncNow with a canned
// outcome.
type fakeSyncer struct {
	triggers int
	syncs    int
	outcome  synceng.Outcome
	err      error
}

func (f *fakeSyncer) Trigger() { f.triggers++ }

func (f *fakeSyncer) SyncNow(context.Context) (synceng.Outcome, error) {
	f.syncs++
	return f.outcome, f.err
}

// =========================================================================
// TEST HELPER
// =========================================================================

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestService wires the mock repository and fake syncer, with a fixed
// clock and sequential IDs so assertions are deterministic.
func newTestService(t *testing.T) (*SnippetService, *mockSnippetRepo, *fakeSyncer) {
	t.Helper()
	repo := newMockRepo()
	syncer := &fakeSyncer{outcome: synceng.OutcomeSynced}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewSnippetService(repo, syncer, logger)
	svc.now = func() time.Time { return fixedNow }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return svc, repo, syncer
}

func validInput() SnippetInput {
	return SnippetInput{
		Title:    "hello world",
		Language: "go",
		Code:     "fmt.Println(\"hi\")\n",
		Tags:     []string{"go", " basics ", "go"},
	}
}

// =========================================================================
// SAVE TESTS
// =========================================================================

func TestSave_CreatePrependsAndTriggers(t *testing.T) {
	svc, repo, syncer := newTestService(t)
	ctx := context.Background()

	first, err := svc.Save(ctx, validInput())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	in := validInput()
	in.Title = "second"
	second, err := svc.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if first.ID != "id-1" || second.ID != "id-2" {
		t.Errorf("IDs = %q, %q, want id-1, id-2", first.ID, second.ID)
	}
	if got := model.IDs(repo.snippets); strings.Join(got, ",") != "id-2,id-1" {
		t.Errorf("order = %v, want newest first", got)
	}
	if !first.CreatedAt.Equal(fixedNow) || !first.UpdatedAt.Equal(fixedNow) {
		t.Errorf("timestamps = %v/%v, want %v", first.CreatedAt, first.UpdatedAt, fixedNow)
	}
	if strings.Join(first.Tags, ",") != "go,basics" {
		t.Errorf("Tags = %v, want [go basics]", first.Tags)
	}
	if first.Code != "fmt.Println(\"hi\")\n" {
		t.Errorf("Code was altered: %q", first.Code)
	}
	if syncer.triggers != 2 {
		t.Errorf("triggers = %d, want 2", syncer.triggers)
	}
}

func TestSave_EditKeepsCreatedAt(t *testing.T) {
	svc, repo, syncer := newTestService(t)
	ctx := context.Background()

	created, err := svc.Save(ctx, validInput())
	if err != nil {
		t.Fatalf("setup: Save() error = %v", err)
	}

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	in := validInput()
	in.ID = created.ID
	in.Title = "renamed"
	updated, err := svc.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save() edit error = %v", err)
	}

	if updated.Title != "renamed" {
		t.Errorf("Title = %q, want %q", updated.Title, "renamed")
	}
	if !updated.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", updated.CreatedAt, fixedNow)
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, later)
	}
	if len(repo.snippets) != 1 {
		t.Errorf("len = %d, want 1", len(repo.snippets))
	}
	if syncer.triggers != 2 {
		t.Errorf("triggers = %d, want 2", syncer.triggers)
	}
}

func TestSave_EditUnknownID(t *testing.T) {
	svc, _, syncer := newTestService(t)

	in := validInput()
	in.ID = "missing"
	_, err := svc.Save(context.Background(), in)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if syncer.triggers != 0 {
		t.Errorf("triggers = %d, want 0", syncer.triggers)
	}
}

func TestSave_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*SnippetInput)
		wantField string
	}{
		{"empty title", func(in *SnippetInput) { in.Title = "" }, "title"},
		{"whitespace title", func(in *SnippetInput) { in.Title = "   " }, "title"},
		{"long title", func(in *SnippetInput) { in.Title = strings.Repeat("a", MaxTitleLength+1) }, "title"},
		{"empty language", func(in *SnippetInput) { in.Language = "" }, "language"},
		{"whitespace code", func(in *SnippetInput) { in.Code = " \n\t" }, "code"},
		{"huge code", func(in *SnippetInput) { in.Code = strings.Repeat("x", MaxCodeLength+1) }, "code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, syncer := newTestService(t)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Save(context.Background(), in)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("error = %v, want a validation error", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
			if len(repo.snippets) != 0 || syncer.triggers != 0 {
				t.Error("a rejected save must not store or trigger")
			}
		})
	}
}

func TestSave_StorageFailureDoesNotTrigger(t *testing.T) {
	svc, repo, syncer := newTestService(t)
	repo.failNext = apperror.Storage("writing snippets", errors.New("disk full"))

	_, err := svc.Save(context.Background(), validInput())
	if !errors.Is(err, apperror.ErrStorage) {
		t.Errorf("error = %v, want ErrStorage", err)
	}
	if syncer.triggers != 0 {
		t.Errorf("triggers = %d, want 0", syncer.triggers)
	}
}

// =========================================================================
// DELETE / GET / LIST TESTS
// =========================================================================

func TestDelete(t *testing.T) {
	svc, repo, syncer := newTestService(t)
	ctx := context.Background()
	created, _ := svc.Save(ctx, validInput())

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(repo.snippets) != 0 {
		t.Errorf("len = %d, want 0", len(repo.snippets))
	}
	if syncer.triggers != 2 {
		t.Errorf("triggers = %d, want 2", syncer.triggers)
	}

	if err := svc.Delete(ctx, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Delete(\"\") error = %v, want ErrValidation", err)
	}
}

func TestGet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	created, _ := svc.Save(ctx, validInput())

	found, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found.Title != "hello world" {
		t.Errorf("Title = %q, want %q", found.Title, "hello world")
	}

	if _, err := svc.Get(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestListFilters(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.snippets = []model.Snippet{
		{ID: "a", Title: "HTTP server", Language: "go", Code: "http.ListenAndServe", Tags: []string{"net"}},
		{ID: "b", Title: "list comp", Language: "python", Code: "[x for x in y]", Tags: []string{"basics"}},
		{ID: "c", Title: "goroutines", Language: "go", Code: "go f()", Description: "Concurrency demo", Tags: []string{}},
	}
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"no filter keeps order", Filter{}, "a,b,c"},
		{"language", Filter{Language: "go"}, "a,c"},
		{"search title case-insensitive", Filter{Search: "http"}, "a"},
		{"search description", Filter{Search: "concurrency"}, "c"},
		{"search tags", Filter{Search: "BASICS"}, "b"},
		{"search and language", Filter{Search: "go", Language: "python"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if ids := strings.Join(model.IDs(got), ","); ids != tt.want {
				t.Errorf("List() = %q, want %q", ids, tt.want)
			}
		})
	}
}

func TestLanguages(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.snippets = []model.Snippet{
		{ID: "a", Language: "go"},
		{ID: "b", Language: "python"},
		{ID: "c", Language: "go"},
	}

	got, err := svc.Languages(context.Background())
	if err != nil {
		t.Fatalf("Languages() error = %v", err)
	}
	if strings.Join(got, ",") != "go,python" {
		t.Errorf("Languages() = %v, want [go python]", got)
	}
}

// =========================================================================
// CAPTURE TESTS
// =========================================================================

func TestCapture_Defaults(t *testing.T) {
	svc, repo, syncer := newTestService(t)

	sn, err := svc.Capture(context.Background(), CaptureInput{
		Code:      "SELECT 1;",
		PageTitle: "SQL tips",
		PageURL:   "https://www.example.com/sql",
	})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	if sn.Language != "plaintext" {
		t.Errorf("Language = %q, want plaintext", sn.Language)
	}
	if sn.Title != "plaintext snippet from SQL tips" {
		t.Errorf("Title = %q", sn.Title)
	}
	if sn.Description != "Captured from: https://www.example.com/sql" {
		t.Errorf("Description = %q", sn.Description)
	}
	if strings.Join(sn.Tags, ",") != "web-capture,example.com" {
		t.Errorf("Tags = %v, want [web-capture example.com]", sn.Tags)
	}
	if len(repo.snippets) != 1 || syncer.triggers != 1 {
		t.Errorf("stored=%d triggers=%d, want 1/1", len(repo.snippets), syncer.triggers)
	}
}

func TestCapture_LongTitleKeepsRunesWhole(t *testing.T) {
	svc, _, _ := newTestService(t)

	// 1 + 150*2 bytes: a byte cut at 200 would land inside an "é".
	sn, err := svc.Capture(context.Background(), CaptureInput{
		Code:  "x := 1",
		Title: "a" + strings.Repeat("é", 150),
	})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	if !utf8.ValidString(sn.Title) {
		t.Fatalf("Title is not valid UTF-8: %q", sn.Title)
	}
	if want := "a" + strings.Repeat("é", 99); sn.Title != want {
		t.Errorf("Title has %d bytes, want %d", len(sn.Title), len(want))
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"日本語", 7, "日本"},
		{"日本語", 2, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestCapture_EmptyCode(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Capture(context.Background(), CaptureInput{Code: "  "})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// IMPORT / EXPORT TESTS
// =========================================================================

func TestImport_SkipsInvalidAndSyncs(t *testing.T) {
	svc, repo, syncer := newTestService(t)
	repo.snippets = []model.Snippet{{ID: "existing", Title: "old", Language: "go", Code: "x"}}

	data := `[
		{"id":"existing","title":"kept","language":"go","code":"a","createdAt":"2020-01-02T03:04:05Z"},
		{"title":"","language":"go","code":"b"},
		{"title":"no code","language":"go"},
		42,
		{"title":"second","language":"rust","code":"fn main(){}","tags":["rust","rust"]}
	]`

	res, err := svc.Import(context.Background(), []byte(data))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if res.Imported != 2 || res.Skipped != 3 {
		t.Errorf("Imported/Skipped = %d/%d, want 2/3", res.Imported, res.Skipped)
	}
	if res.Sync != synceng.OutcomeSynced || res.SyncError != "" {
		t.Errorf("Sync = %q (%q), want synced", res.Sync, res.SyncError)
	}
	if syncer.syncs != 1 || syncer.triggers != 0 {
		t.Errorf("syncs=%d triggers=%d, want 1/0", syncer.syncs, syncer.triggers)
	}
	// Imported entries get fresh IDs and go on top in file order.
	if ids := strings.Join(model.IDs(repo.snippets), ","); ids != "id-1,id-2,existing" {
		t.Errorf("order = %q", ids)
	}
	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if !repo.snippets[0].CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", repo.snippets[0].CreatedAt, want)
	}
	if strings.Join(repo.snippets[1].Tags, ",") != "rust" {
		t.Errorf("Tags = %v, want [rust]", repo.snippets[1].Tags)
	}
}

func TestImport_SyncFailureIsReported(t *testing.T) {
	svc, repo, syncer := newTestService(t)
	syncer.outcome = synceng.OutcomeFailed
	syncer.err = apperror.Remote("update Gist", 500, "boom")

	res, err := svc.Import(context.Background(), []byte(`[{"title":"t","language":"go","code":"c"}]`))
	if err != nil {
		t.Fatalf("Import() error = %v, a failed sync must not fail the import", err)
	}
	if res.Sync != synceng.OutcomeFailed || !strings.Contains(res.SyncError, "boom") {
		t.Errorf("Sync = %q (%q)", res.Sync, res.SyncError)
	}
	if len(repo.snippets) != 1 {
		t.Errorf("len = %d, want 1", len(repo.snippets))
	}
}

func TestImport_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		target error
	}{
		{"not json", "nope", apperror.ErrParse},
		{"object instead of array", `{"title":"x"}`, apperror.ErrParse},
		{"no valid entries", `[{"title":"x"}]`, apperror.ErrValidation},
		{"empty array", `[]`, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, syncer := newTestService(t)

			_, err := svc.Import(context.Background(), []byte(tt.data))
			if !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
			if len(repo.snippets) != 0 || syncer.syncs != 0 {
				t.Error("a rejected import must not store or sync")
			}
		})
	}
}

func TestExport(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Export(ctx); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Export() on empty store error = %v, want ErrValidation", err)
	}

	repo.snippets = []model.Snippet{
		{ID: "a", Title: "one", Language: "go", Code: "x", Tags: []string{}},
		{ID: "b", Title: "two", Language: "go", Code: "y", Tags: []string{}},
	}
	data, err := svc.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var back []model.Snippet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if ids := strings.Join(model.IDs(back), ","); ids != "a,b" {
		t.Errorf("exported order = %q, want a,b", ids)
	}
	if !strings.Contains(string(data), "\n  {") {
		t.Error("export should be indented")
	}
}

func TestExportFileName(t *testing.T) {
	got := ExportFileName(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	if got != "code-snippets-2026-03-01.json" {
		t.Errorf("ExportFileName() = %q", got)
	}
}
