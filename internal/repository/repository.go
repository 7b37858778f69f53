// Package repository declares the snippet store contract.
//
// The store owns the canonical local collection. The collection is ordered:
// index 0 is the newest capture, and reconciliation prepends remote-only
// snippets. Every implementation must keep IDs unique.
package repository

import (
	"context"

	"github.com/sakif/codepocket/internal/model"
)

// SnippetStore is the full local snippet store.
//
// GetAll, ReplaceAll and UpsertMany are what the sync engine needs; the rest
// serve the snippet service.
type SnippetStore interface {
	// GetAll returns the whole collection in order.
	GetAll(ctx context.Context) ([]model.Snippet, error)
	// ReplaceAll makes the collection exactly snippets, in that order.
	ReplaceAll(ctx context.Context, snippets []model.Snippet) error
	// UpsertMany updates snippets whose ID already exists in place and
	// prepends the rest, keeping their relative order.
	UpsertMany(ctx context.Context, snippets []model.Snippet) error

	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	// Create prepends a new snippet. The caller supplies the ID.
	Create(ctx context.Context, snippet *model.Snippet) error
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error
}
