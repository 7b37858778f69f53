package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/codepocket/internal/auth"
	"github.com/sakif/codepocket/internal/model"
	synceng "github.com/sakif/codepocket/internal/sync"
)

// Session is the part of the sync engine that manages the GitHub session.
type Session interface {
	Authenticate(ctx context.Context, token string) (*synceng.AuthResult, error)
	Disconnect(ctx context.Context) error
}

// AuthService connects the local API session to the GitHub session.
//
// FLOW:
//  1. The user hands over a GitHub token (pasted or from the device flow).
//  2. The sync engine validates and stores it, and reconnects to an
//     existing backup Gist if there is one.
//  3. We issue a short-lived HS256 JWT for the local API, with the GitHub
//     login as subject.
//
// The GitHub token never leaves the machine; browser clients of the local
// API only ever see the JWT.
type AuthService struct {
	session Session
	tokens  *auth.TokenService
	logger  *slog.Logger
}

func NewAuthService(session Session, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		session: session,
		tokens:  tokens,
		logger:  logger,
	}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token       string         `json:"token"`
	Account     *model.Account `json:"account,omitempty"`
	RemoteDocID string         `json:"remoteDocId,omitempty"`
	Reconnected bool           `json:"reconnected"`
}

// LoginWithGitHubToken authenticates githubToken and issues a session JWT.
func (s *AuthService) LoginWithGitHubToken(ctx context.Context, githubToken string) (*LoginResult, error) {
	res, err := s.session.Authenticate(ctx, githubToken)
	if err != nil {
		return nil, err
	}

	subject := "local"
	if res.Account != nil && res.Account.Login != "" {
		subject = res.Account.Login
	}
	token, err := s.tokens.Generate(subject)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", subject, err)
	}

	s.logger.Info("authenticated with GitHub",
		slog.String("login", subject),
		slog.Bool("reconnected", res.Reconnected),
	)
	return &LoginResult{
		Token:       token,
		Account:     res.Account,
		RemoteDocID: res.RemoteDocID,
		Reconnected: res.Reconnected,
	}, nil
}

// Logout forgets the GitHub session. Outstanding JWTs expire on their own.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.session.Disconnect(ctx); err != nil {
		return fmt.Errorf("service/auth: disconnecting: %w", err)
	}
	return nil
}

// ValidateToken checks a session JWT and returns its subject.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	subject, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return subject, nil
}
