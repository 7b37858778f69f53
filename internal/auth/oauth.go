package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GistScope is the only scope the application needs.
const GistScope = "gist"

// DeviceLogin runs the GitHub OAuth device flow (RFC 8628).
//
// DEVICE FLOW:
//  1. Ask GitHub for a device code and a short user code.
//  2. The user opens the verification URL and types the user code.
//  3. Poll the token endpoint until the user approves (or the code expires).
//
// No client secret and no redirect URL are involved, which suits a local
// CLI. The OAuth App must have device flow enabled.
type DeviceLogin struct {
	config *oauth2.Config
}

// NewDeviceLogin returns a device flow client for the OAuth App clientID.
func NewDeviceLogin(clientID string) *DeviceLogin {
	return &DeviceLogin{
		config: &oauth2.Config{
			ClientID: clientID,
			Scopes:   []string{GistScope},
			Endpoint: github.Endpoint,
		},
	}
}

// WithEndpoint overrides the GitHub endpoints (tests, GHES).
func (d *DeviceLogin) WithEndpoint(e oauth2.Endpoint) *DeviceLogin {
	d.config.Endpoint = e
	return d
}

// Start requests a device code. Show the returned UserCode and
// VerificationURI to the user, then call Wait.
func (d *DeviceLogin) Start(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	resp, err := d.config.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: requesting device code: %w", err)
	}
	return resp, nil
}

// Wait polls until the user approves and returns the GitHub access token.
// It honours the polling interval GitHub asks for and stops when ctx ends.
func (d *DeviceLogin) Wait(ctx context.Context, da *oauth2.DeviceAuthResponse) (string, error) {
	tok, err := d.config.DeviceAccessToken(ctx, da)
	if err != nil {
		return "", fmt.Errorf("auth: waiting for device authorization: %w", err)
	}
	return tok.AccessToken, nil
}
