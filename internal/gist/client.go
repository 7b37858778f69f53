// Package gist is the client for the remote document: a private GitHub Gist
// holding the whole snippet collection as one JSON file.
//
// The client keeps no session state. The token and the Gist ID are read from
// the credential store on every call, so a disconnect or a token change takes
// effect on the next request.
package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/model"
)

// DefaultBaseURL is the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

// RawContentHost serves the full content of truncated Gist files.
const RawContentHost = "gist.githubusercontent.com"

// maxRedirects matches net/http's default policy.
const maxRedirects = 10

// listPageSize is the largest page GitHub allows for GET /gists.
const listPageSize = 100

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Credentials is the part of the credential store the client uses.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	SetRemoteDocID(ctx context.Context, id string) error
	TouchLastSync(ctx context.Context) error
}

// Client talks to the GitHub Gists API.
type Client struct {
	creds   Credentials
	baseURL string
	base    http.RoundTripper
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, GHES).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient takes the transport and timeout from hc. The client still
// adds its own auth layer on top of the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc.Transport != nil {
			c.base = hc.Transport
		}
		c.timeout = hc.Timeout
	}
}

// WithClock replaces time.Now for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client that reads credentials from creds.
func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:   creds,
		baseURL: DefaultBaseURL,
		base:    http.DefaultTransport,
		timeout: 30 * time.Second,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ValidateToken reports whether GitHub accepts token. It never fails: any
// transport, status or decode problem means the token is not usable.
func (c *Client) ValidateToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	resp, err := c.do(ctx, token, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		c.logger.Debug("token validation request failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return false
	}
	var acct model.Account
	return json.NewDecoder(resp.Body).Decode(&acct) == nil
}

// UserInfo returns the account that owns the stored token.
func (c *Client) UserInfo(ctx context.Context) (*model.Account, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, token, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, apperror.Transport("get user info", err)
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return nil, apperror.Auth("failed to get user info")
	}
	var acct model.Account
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return nil, apperror.Parse("malformed user info response", err)
	}
	return &acct, nil
}

// Create makes a new private backup Gist holding snippets, then records its
// ID and the sync time.
func (c *Client) Create(ctx context.Context, snippets []model.Snippet) (*model.Gist, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.writeRequest(snippets, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, token, http.MethodPost, c.baseURL+"/gists", body)
	if err != nil {
		return nil, apperror.Transport("create Gist", err)
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return nil, remoteError("create Gist", resp)
	}
	g, err := decodeGist(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := c.creds.SetRemoteDocID(ctx, g.ID); err != nil {
		return nil, err
	}
	if err := c.creds.TouchLastSync(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("created backup gist",
		slog.String("gist_id", g.ID),
		slog.Int("snippets", len(snippets)),
	)
	return g, nil
}

// Update overwrites the backup file of Gist id. When the Gist no longer
// exists it creates a new one instead, exactly once.
func (c *Client) Update(ctx context.Context, id string, snippets []model.Snippet) (*model.Gist, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.writeRequest(snippets, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, token, http.MethodPatch, c.baseURL+"/gists/"+url.PathEscape(id), body)
	if err != nil {
		return nil, apperror.Transport("update Gist", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Warn("backup gist is gone, creating a new one", slog.String("gist_id", id))
		return c.Create(ctx, snippets)
	}
	if !ok(resp) {
		return nil, remoteError("update Gist", resp)
	}
	g, err := decodeGist(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := c.creds.TouchLastSync(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Fetch returns Gist id. Truncated backup file content is completed from
// the file's raw URL.
func (c *Client) Fetch(ctx context.Context, id string) (*model.Gist, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, token, http.MethodGet, c.baseURL+"/gists/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, apperror.Transport("fetch Gist", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperror.NotFound("Gist", id)
	}
	if !ok(resp) {
		return nil, remoteError("fetch Gist", resp)
	}
	g, err := decodeGist(resp.Body)
	if err != nil {
		return nil, err
	}

	if f, found := g.Files[model.GistFileName]; found && f.Truncated && f.RawURL != "" {
		content, err := c.raw(ctx, token, f.RawURL)
		if err != nil {
			return nil, err
		}
		f.Content = content
		f.Truncated = false
		g.Files[model.GistFileName] = f
	}
	return g, nil
}

// ListOwned returns every Gist of the authenticated user, following
// pagination.
func (c *Client) ListOwned(ctx context.Context) ([]model.Gist, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var all []model.Gist
	next := fmt.Sprintf("%s/gists?per_page=%d", c.baseURL, listPageSize)
	for next != "" {
		page, link, err := c.listPage(ctx, token, next)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		next = nextLink(link)
	}
	return all, nil
}

// FindSnippetGists returns the user's Gists that look like snippet backups.
func (c *Client) FindSnippetGists(ctx context.Context) ([]model.Gist, error) {
	all, err := c.ListOwned(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Gist
	for _, g := range all {
		if g.IsSnippetBackup() {
			out = append(out, g)
		}
	}
	return out, nil
}

func (c *Client) listPage(ctx context.Context, token, pageURL string) ([]model.Gist, string, error) {
	resp, err := c.do(ctx, token, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", apperror.Transport("fetch Gists", err)
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return nil, "", remoteError("fetch Gists", resp)
	}
	var page []model.Gist
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", apperror.Parse("malformed Gist list response", err)
	}
	return page, resp.Header.Get("Link"), nil
}

func (c *Client) raw(ctx context.Context, token, rawURL string) (string, error) {
	resp, err := c.do(ctx, token, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", apperror.Transport("fetch Gist file", err)
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return "", remoteError("fetch Gist file", resp)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperror.Transport("fetch Gist file", err)
	}
	return string(b), nil
}

// token reads the stored token fresh and fails with an AuthError when
// there is none.
func (c *Client) token(ctx context.Context) (string, error) {
	tok, err := c.creds.Token(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", apperror.Auth("no authentication token")
	}
	return tok, nil
}

// do sends one request. For GitHub hosts the bearer header comes from an
// oauth2 transport wrapped around the configured base transport; anything
// else is sent without credentials.
func (c *Client) do(ctx context.Context, token, method, target string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("gist: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := &http.Client{Transport: c.base, Timeout: c.timeout}
	if c.carriesToken(req.URL) {
		hc.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   c.base,
		}
		// The transport signs every hop, so redirects must stay on GitHub.
		hc.CheckRedirect = func(next *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("gist: stopped after %d redirects", maxRedirects)
			}
			if !c.carriesToken(next.URL) {
				return fmt.Errorf("gist: refusing authenticated redirect to %s", next.URL.Host)
			}
			return nil
		}
	} else {
		c.logger.Debug("sending request without token", slog.String("host", req.URL.Host))
	}
	return hc.Do(req)
}

// carriesToken reports whether target may see the bearer token: the API
// host itself, or GitHub's raw content host over https. raw_url and Link
// values come from response bodies and headers, so they are checked too.
func (c *Client) carriesToken(target *url.URL) bool {
	api, err := url.Parse(c.baseURL)
	if err == nil && target.Scheme == api.Scheme && strings.EqualFold(target.Host, api.Host) {
		return true
	}
	return target.Scheme == "https" && strings.EqualFold(target.Hostname(), RawContentHost)
}

// writeRequest builds the POST/PATCH body. Only creation sends the
// visibility flag.
func (c *Client) writeRequest(snippets []model.Snippet, create bool) ([]byte, error) {
	content, err := EncodePayload(snippets, c.now())
	if err != nil {
		return nil, err
	}

	req := map[string]any{
		"description": model.GistDescription,
		"files": map[string]model.GistFile{
			model.GistFileName: {Content: content},
		},
	}
	if create {
		req["public"] = false
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gist: encoding request: %w", err)
	}
	return b, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func decodeGist(r io.Reader) (*model.Gist, error) {
	var g model.Gist
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, apperror.Parse("malformed Gist response", err)
	}
	return &g, nil
}

// remoteError turns a non-2xx response into a RemoteError carrying the
// server's message field.
func remoteError(op string, resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	// An unreadable error body leaves Message empty.
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body)
	return apperror.Remote(op, resp.StatusCode, body.Message)
}
