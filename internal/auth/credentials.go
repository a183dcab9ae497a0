// Package auth provides OAuth2 token sources for the Google Slides API.
// Credentials come from configuration, Google Secret Manager or, when no
// refresh token is configured, Application Default Credentials.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultScopes are the OAuth2 scopes the mirror needs: read-only access to
// presentations and their thumbnails.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/presentations.readonly",
}

// ErrIncompleteCredentials is returned when a refresh token is configured
// without the OAuth client it was issued to.
var ErrIncompleteCredentials = errors.New("refresh token requires client ID and client secret")

// Credentials identify an OAuth client and, once authorized, a user.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// OAuth2Config returns the oauth2 client configuration for c.
func (c Credentials) OAuth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       DefaultScopes,
		Endpoint:     google.Endpoint,
	}
}

// TokenSource returns a token source for c. With a refresh token the
// configured OAuth client refreshes access tokens; without one Application
// Default Credentials are used.
func TokenSource(ctx context.Context, c Credentials) (oauth2.TokenSource, error) {
	if c.RefreshToken == "" {
		ts, err := google.DefaultTokenSource(ctx, DefaultScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		return ts, nil
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, ErrIncompleteCredentials
	}

	token := &oauth2.Token{RefreshToken: c.RefreshToken}
	return oauth2.ReuseTokenSource(nil, c.OAuth2Config("").TokenSource(ctx, token)), nil
}
