// Package gisttest provides an in-memory GitHub Gists API for tests.
//
// It implements just enough of the real API for the client: GET /user,
// POST /gists, GET /gists (paginated with Link headers), GET /gists/{id} and
// PATCH /gists/{id}. Requests must carry "Authorization: Bearer <Token>".
package gisttest

import (
	"bytes"
	"encoding/json"
	"io"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codepocket/internal/model"
)

// Route keys used by Calls and FailWith.
const (
	RouteUser       = "GET /user"
	RouteCreateGist = "POST /gists"
	RouteListGists  = "GET /gists"
	RouteGetGist    = "GET /gists/{id}"
	RouteUpdateGist = "PATCH /gists/{id}"
)

type failure struct {
	status  int
	message string
}

// Server is a fake api.github.com. The zero value is not usable; call
// NewServer.
type Server struct {
	*httptest.Server

	// Token is the only accepted bearer token.
	Token string
	// User is returned by GET /user.
	User model.Account
	// PageSize caps page length on GET /gists. Zero means per_page decides.
	PageSize int

	mu       sync.Mutex
	gists    map[string]*model.Gist
	nextID   int
	clock    time.Time
	calls    map[string]int
	failures map[string]failure
	bodies   map[string][]byte
}

// NewServer starts a server that accepts token. It is closed when t ends.
func NewServer(t testing.TB, token string) *Server {
	t.Helper()
	s := &Server{
		Token:    token,
		User:     model.Account{ID: 42, Login: "octocat", Name: "The Octocat"},
		gists:    make(map[string]*model.Gist),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		calls:    make(map[string]int),
		failures: make(map[string]failure),
		bodies:   make(map[string][]byte),
	}

	r := chi.NewRouter()
	r.Get("/user", s.route(RouteUser, s.getUser))
	r.Post("/gists", s.route(RouteCreateGist, s.createGist))
	r.Get("/gists", s.route(RouteListGists, s.listGists))
	r.Get("/gists/{id}", s.route(RouteGetGist, s.getGist))
	r.Patch("/gists/{id}", s.route(RouteUpdateGist, s.updateGist))

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Calls returns how many requests hit route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// LastBody returns the body of the latest request to route.
func (s *Server) LastBody(route string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[route]
}

// FailWith makes every later request to route answer status with message.
// A zero status clears the failure.
func (s *Server) FailWith(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = failure{status: status, message: message}
}

// Put stores g as if the user had created it. A zero UpdatedAt is filled
// from the server clock.
func (s *Server) Put(g model.Gist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = s.tick()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = g.UpdatedAt
	}
	s.gists[g.ID] = &g
}

// Remove deletes a gist, as if the user had deleted it on github.com.
func (s *Server) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gists, id)
}

// Gist returns a stored gist.
func (s *Server) Gist(id string) (model.Gist, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gists[id]
	if !ok {
		return model.Gist{}, false
	}
	return *g, true
}

// Len returns the number of stored gists.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gists)
}

// tick advances the clock one second. Callers hold mu.
func (s *Server) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Server) route(key string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body = readAll(r)
		}

		s.mu.Lock()
		s.calls[key]++
		s.bodies[key] = body
		f, failing := s.failures[key]
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		if failing {
			writeJSON(w, f.status, map[string]string{"message": f.message})
			return
		}
		r.Body = newBody(body)
		h(w, r)
	}
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.User)
}

type writeRequest struct {
	Description *string                   `json:"description"`
	Public      bool                      `json:"public"`
	Files       map[string]model.GistFile `json:"files"`
}

func (s *Server) createGist(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("gist%04d", s.nextID)
	now := s.tick()
	g := &model.Gist{
		ID:        id,
		HTMLURL:   "https://gist.github.com/" + id,
		Public:    req.Public,
		Files:     make(map[string]model.GistFile),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Description != nil {
		g.Description = *req.Description
	}
	for name, f := range req.Files {
		g.Files[name] = model.GistFile{Filename: name, Content: f.Content}
	}
	s.gists[id] = g
	out := *g
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) updateGist(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}

	s.mu.Lock()
	g, ok := s.gists[chi.URLParam(r, "id")]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if req.Description != nil {
		g.Description = *req.Description
	}
	for name, f := range req.Files {
		g.Files[name] = model.GistFile{Filename: name, Content: f.Content}
	}
	g.UpdatedAt = s.tick()
	out := *g
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getGist(w http.ResponseWriter, r *http.Request) {
	g, ok := s.Gist(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// listGists serves pages newest first, like the real API.
func (s *Server) listGists(w http.ResponseWriter, r *http.Request) {
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 {
		perPage = 30
	}
	if s.PageSize > 0 && s.PageSize < perPage {
		perPage = s.PageSize
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}

	s.mu.Lock()
	all := make([]model.Gist, 0, len(s.gists))
	for _, g := range s.gists {
		all = append(all, *g)
	}
	s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	if end < len(all) {
		next := fmt.Sprintf("%s/gists?per_page=%d&page=%d", s.URL, perPage, page+1)
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next", <%s/gists?per_page=%d&page=1>; rel="first"`, next, s.URL, perPage))
	}
	writeJSON(w, http.StatusOK, all[start:end])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readAll(r *http.Request) []byte {
	b, _ := io.ReadAll(r.Body)
	r.Body.Close()
	return b
}

func newBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
