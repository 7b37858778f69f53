package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/codepocket/internal/auth"
	"github.com/sakif/codepocket/internal/model"
	"github.com/sakif/codepocket/internal/service"
)

// AccountSource looks up the GitHub account behind the stored token.
type AccountSource interface {
	Account(ctx context.Context) (*model.Account, error)
}

// AuthHandler manages the local API session.
//
// HANDLER RESPONSIBILITIES:
//   - HandleToken  → accept a GitHub token, issue a session JWT
//   - HandleLogout → forget the GitHub session, clear the cookie
//   - HandleMe     → return the GitHub profile behind the session
type AuthHandler struct {
	auth     *service.AuthService
	accounts AccountSource
	ttlSecs  int
	secure   bool
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookie should be true when the
// API is served over HTTPS.
func NewAuthHandler(svc *service.AuthService, accounts AccountSource, tokens *auth.TokenService, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     svc,
		accounts: accounts,
		ttlSecs:  int(tokens.TTL().Seconds()),
		secure:   secureCookie,
		logger:   logger,
	}
}

type tokenRequest struct {
	Token string `json:"token"`
}

// HandleToken logs in with a GitHub token.
//
// HTTP: POST /auth/token
// REQUEST BODY: {"token":"ghp_..."}
//
// The session JWT is returned in the body (for the CLI and the extension)
// and set as an HttpOnly cookie (for a browser tab).
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.LoginWithGitHubToken(r.Context(), req.Token)
	if err != nil {
		h.logger.Warn("login rejected", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   h.ttlSecs,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout disconnects from GitHub and clears the session cookie.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	// MaxAge -1 tells the browser to delete the cookie now.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the GitHub profile of the connected account.
//
// HTTP: GET /api/me (session required)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Account(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
