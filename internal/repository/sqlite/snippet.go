package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK: *DB must satisfy the snippet store contract.
var _ repository.SnippetStore = (*DB)(nil)

const snippetColumns = `id, title, description, language, code, tags, created_at, updated_at`

// execer is the subset of *sql.DB and *sql.Tx the write helpers need, so
// the same insert code runs inside or outside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetAll returns the collection ordered by position, newest first.
func (db *DB) GetAll(ctx context.Context) ([]model.Snippet, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets ORDER BY position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	// Rows hold a pooled connection until closed.
	defer rows.Close()

	snippets := make([]model.Snippet, 0)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		snippets = append(snippets, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	return snippets, nil
}

// ReplaceAll swaps the whole collection in one transaction. Duplicate IDs in
// the input keep their first occurrence.
func (db *DB) ReplaceAll(ctx context.Context, snippets []model.Snippet) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: replacing snippets: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snippets`); err != nil {
		return fmt.Errorf("sqlite: clearing snippets: %w", err)
	}

	seen := make(map[string]struct{}, len(snippets))
	pos := 0
	for i := range snippets {
		s := &snippets[i]
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		if err := insertSnippet(ctx, tx, s, pos); err != nil {
			return err
		}
		pos++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing snippets: %w", err)
	}
	return nil
}

// UpsertMany updates existing snippets in place and prepends the new ones in
// their given order, all in one transaction.
func (db *DB) UpsertMany(ctx context.Context, snippets []model.Snippet) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: upserting snippets: %w", err)
	}
	defer tx.Rollback()

	var fresh []*model.Snippet
	seen := make(map[string]struct{}, len(snippets))
	for i := range snippets {
		s := &snippets[i]
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}

		n, err := updateSnippet(ctx, tx, s)
		if err != nil {
			return err
		}
		if n == 0 {
			fresh = append(fresh, s)
		}
	}

	if len(fresh) > 0 {
		top, err := minPosition(ctx, tx)
		if err != nil {
			return err
		}
		start := top - len(fresh)
		for i, s := range fresh {
			if err := insertSnippet(ctx, tx, s, start+i); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing snippets: %w", err)
	}
	return nil
}

// GetByID returns one snippet or a NotFound error.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ?`, id,
	)
	s, err := scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("snippet", id)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create prepends snippet to the collection. The ID must be set and unused.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	if snippet.ID == "" {
		return apperror.ValidationFailed("id", "snippet id is required")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM snippets WHERE id = ?`, snippet.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}
	if exists > 0 {
		return apperror.ValidationFailed("id", "snippet id already exists: "+snippet.ID)
	}

	top, err := minPosition(ctx, tx)
	if err != nil {
		return err
	}
	if err := insertSnippet(ctx, tx, snippet, top-1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}
	return nil
}

// Update overwrites every field of an existing snippet but keeps its
// position. Timestamps are stored as given.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	n, err := updateSnippet(ctx, db.conn, snippet)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("snippet", snippet.ID)
	}
	return nil
}

// Delete removes a snippet by ID.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

func insertSnippet(ctx context.Context, ex execer, s *model.Snippet, position int) error {
	tags, err := encodeTags(s.Tags)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO snippets (id, position, title, description, language, code, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, position, s.Title, s.Description, s.Language, s.Code, tags,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting snippet %s: %w", s.ID, err)
	}
	return nil
}

// updateSnippet returns the number of rows changed (0 or 1).
func updateSnippet(ctx context.Context, ex execer, s *model.Snippet) (int64, error) {
	tags, err := encodeTags(s.Tags)
	if err != nil {
		return 0, err
	}
	result, err := ex.ExecContext(ctx,
		`UPDATE snippets
		 SET title = ?, description = ?, language = ?, code = ?, tags = ?, created_at = ?, updated_at = ?
		 WHERE id = ?`,
		s.Title, s.Description, s.Language, s.Code, tags,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: updating snippet %s: %w", s.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// minPosition returns the smallest position in use, or 0 for an empty table.
func minPosition(ctx context.Context, ex execer) (int, error) {
	var top sql.NullInt64
	if err := ex.QueryRowContext(ctx, `SELECT MIN(position) FROM snippets`).Scan(&top); err != nil {
		return 0, fmt.Errorf("sqlite: reading top position: %w", err)
	}
	if !top.Valid {
		return 0, nil
	}
	return int(top.Int64), nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSnippet(sc scanner) (*model.Snippet, error) {
	var (
		s                model.Snippet
		tags             string
		created, updated string
	)
	err := sc.Scan(&s.ID, &s.Title, &s.Description, &s.Language, &s.Code, &tags, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
		return nil, fmt.Errorf("sqlite: decoding tags of %s: %w", s.ID, err)
	}
	s.Tags = model.NormalizeTags(s.Tags)

	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("sqlite: decoding created_at of %s: %w", s.ID, err)
	}
	if s.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("sqlite: decoding updated_at of %s: %w", s.ID, err)
	}
	return &s, nil
}

func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(model.NormalizeTags(tags))
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
