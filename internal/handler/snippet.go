package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/service"
)

// maxImportBytes caps an import upload.
const maxImportBytes = 16 << 20

// SnippetHandler exposes the snippet service over HTTP.
//
// The handler only parses requests and renders responses. Validation, IDs,
// ordering and the auto-sync trigger all live in service.SnippetService, so
// the CLI and the inbox watcher behave exactly the same.
type SnippetHandler struct {
	service *service.SnippetService
	logger  *slog.Logger
	now     func() time.Time
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(svc *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{service: svc, logger: logger, now: time.Now}
}

// HandleList returns the collection, newest capture first.
//
// HTTP: GET /api/snippets?q=<search>&language=<lang>
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snippets, err := h.service.List(r.Context(), service.Filter{
		Search:   q.Get("q"),
		Language: q.Get("language"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleLanguages returns the distinct languages for the filter dropdown.
//
// HTTP: GET /api/snippets/languages
func (h *SnippetHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.service.Languages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, langs)
}

// HandleGet returns one snippet.
//
// HTTP: GET /api/snippets/{id}
//
// Chi fills r.PathValue("id") from the route pattern.
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets
// REQUEST BODY: {"title":"...","language":"go","code":"...","tags":["a"]}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.ID = "" // the server assigns IDs

	snippet, err := h.service.Save(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleUpdate edits an existing snippet.
//
// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.ID = r.PathValue("id")
	if in.ID == "" {
		writeError(w, apperror.ValidationFailed("id", "snippet id is required"))
		return
	}

	snippet, err := h.service.Save(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCapture stores a selection sent by the browser extension.
//
// HTTP: POST /api/snippets/capture
func (h *SnippetHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var in service.CaptureInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	snippet, err := h.service.Capture(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleImport reads an exported JSON array from the request body.
//
// HTTP: POST /api/snippets/import
//
// The response carries the import counts and the outcome of the sync that
// runs right after it.
func (h *SnippetHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, apperror.ValidationFailed("body", "import file is too large or unreadable"))
		return
	}
	res, err := h.service.Import(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleExport downloads the whole collection as a JSON file.
//
// HTTP: GET /api/snippets/export
func (h *SnippetHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+service.ExportFileName(h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("writing export", slog.String("error", err.Error()))
	}
}
