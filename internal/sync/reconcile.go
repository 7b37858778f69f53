package sync

import (
	"context"

	"github.com/sakif/codepocket/internal/model"
)

// Decision is the user's answer to "merge or replace?".
type Decision int

const (
	// Abort leaves the local collection untouched.
	Abort Decision = iota
	// Merge adds remote-only snippets in front of the local collection.
	Merge
	// Replace makes the local collection exactly the remote one.
	Replace
)

func (d Decision) String() string {
	switch d {
	case Merge:
		return "merge"
	case Replace:
		return "replace"
	default:
		return "abort"
	}
}

// ParseDecision maps "merge" and "replace" to their Decision. Anything else
// is Abort with ok=false.
func ParseDecision(s string) (Decision, bool) {
	switch s {
	case "merge":
		return Merge, true
	case "replace":
		return Replace, true
	default:
		return Abort, false
	}
}

// Confirmer asks the user how to apply a download. local and remote are the
// collection sizes on each side.
type Confirmer interface {
	ConfirmMergeOrReplace(ctx context.Context, local, remote int) (Decision, error)
}

// StaticDecision is a Confirmer that always answers the same. Used when the
// decision was made up front (a --mode flag, a query parameter).
type StaticDecision Decision

func (d StaticDecision) ConfirmMergeOrReplace(context.Context, int, int) (Decision, error) {
	return Decision(d), nil
}

// MergeSnippets returns remote snippets whose ID is not already local, in remote
// order and first occurrence only, followed by local unchanged. On an ID
// collision the local snippet wins.
func MergeSnippets(local, remote []model.Snippet) []model.Snippet {
	added := remoteOnly(local, remote)
	out := make([]model.Snippet, 0, len(added)+len(local))
	out = append(out, added...)
	return append(out, local...)
}

// ReplaceSnippets returns remote with duplicate IDs collapsed to their first
// occurrence.
func ReplaceSnippets(remote []model.Snippet) []model.Snippet {
	out := make([]model.Snippet, 0, len(remote))
	seen := make(map[string]struct{}, len(remote))
	for _, s := range remote {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// remoteOnly returns the remote snippets merge would add.
func remoteOnly(local, remote []model.Snippet) []model.Snippet {
	seen := make(map[string]struct{}, len(local)+len(remote))
	for _, s := range local {
		seen[s.ID] = struct{}{}
	}
	var out []model.Snippet
	for _, s := range remote {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
