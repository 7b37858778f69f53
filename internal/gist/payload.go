package gist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/model"
)

// EncodePayload renders the backup file: the full collection wrapped in a
// versioned envelope, indented with two spaces. HTML characters in code are
// written as-is.
func EncodePayload(snippets []model.Snippet, now time.Time) (string, error) {
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	p := model.Payload{
		Version:   model.PayloadVersion,
		Timestamp: now.UTC(),
		Snippets:  snippets,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("gist: encoding payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodePayload extracts the backup document from a Gist. A missing file or
// malformed content is a ParseError. A payload without a snippets array
// yields an empty collection.
func DecodePayload(g *model.Gist) (*model.Payload, error) {
	f, found := g.Files[model.GistFileName]
	if !found {
		return nil, apperror.Parse("snippets file not found in Gist", nil)
	}

	var p model.Payload
	if err := json.Unmarshal([]byte(f.Content), &p); err != nil {
		return nil, apperror.Parse("invalid data format in Gist", err)
	}
	if p.Snippets == nil {
		p.Snippets = []model.Snippet{}
	}
	for i := range p.Snippets {
		p.Snippets[i].Tags = model.NormalizeTags(p.Snippets[i].Tags)
	}
	return &p, nil
}
