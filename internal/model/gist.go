package model

import "time"

const (
	// PayloadVersion is written into every backup file.
	PayloadVersion = "1.0"

	// GistFileName is the single file inside the backup Gist.
	GistFileName = "code-snippets-data.json"

	// GistDescription identifies backup Gists among the user's other Gists.
	GistDescription = "Code Snippet Saver - Backup Data"
)

// Payload is the JSON document stored in GistFileName. Snippets is always
// the full collection; there are no partial or delta updates.
type Payload struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Snippets  []Snippet `json:"snippets"`
}

// GistFile is one file entry in a Gist. Only Content is sent on writes.
type GistFile struct {
	Filename  string `json:"filename,omitempty"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
	RawURL    string `json:"raw_url,omitempty"`
}

// Gist is the remote document as returned by the GitHub Gists API.
type Gist struct {
	ID          string              `json:"id"`
	HTMLURL     string              `json:"html_url"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// IsSnippetBackup reports whether g looks like a backup written by this
// application: either the well-known description or the well-known file.
func (g Gist) IsSnippetBackup() bool {
	if g.Description == GistDescription {
		return true
	}
	_, ok := g.Files[GistFileName]
	return ok
}
