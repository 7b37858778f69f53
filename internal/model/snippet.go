// Package model defines the data structures shared by the store, the Gist
// client and the sync engine.
//
// The `json:"..."` tags fix the wire names. They match the names the browser
// extension has always written into the backup file, so a backup written by
// either side can be read by the other.
package model

import (
	"strings"
	"time"
)

// Snippet is a captured code sample.
//
// Code is kept byte-for-byte: no trimming, no newline normalisation. Tags is
// an ordered set; use NormalizeTags before storing user input.
type Snippet struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	Code        string    `json:"code"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NormalizeTags trims every tag, drops empty ones and removes duplicates while
// keeping first-seen order. A nil or empty input yields an empty, non-nil
// slice so the JSON form is always `[]`.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// SplitTags parses a comma-separated tag field ("go, http ,cli").
func SplitTags(field string) []string {
	return NormalizeTags(strings.Split(field, ","))
}

// IDs returns the snippet IDs in collection order.
func IDs(snippets []Snippet) []string {
	ids := make([]string, len(snippets))
	for i, s := range snippets {
		ids[i] = s.ID
	}
	return ids
}
