// Package auth builds the OAuth2 token sources the transport
// authenticates with. Trellis issues long-lived refresh tokens; access
// tokens are short-lived and renewed lazily by the source, so callers
// hold one [oauth2.TokenSource] for the life of the client.
package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/xraph/trellis"
)

// DefaultTokenURL is the production token endpoint.
const DefaultTokenURL = "https://auth.trellis.dev/oauth/token"

// Config carries the credentials for one Trellis account. Either a
// RefreshToken (with client credentials) or a bare AccessToken must be
// set.
type Config struct {
	// ClientID and ClientSecret identify the registered application.
	ClientID     string
	ClientSecret string

	// TokenURL overrides the token endpoint. Empty means
	// DefaultTokenURL.
	TokenURL string

	// RefreshToken enables automatic access token renewal.
	RefreshToken string

	// AccessToken is used as-is when no RefreshToken is present. It
	// stops working when it expires; prefer a refresh token for
	// anything long-running.
	AccessToken string
}

// TokenSource builds a caching token source from cfg. With a refresh
// token the first Token call hits the token endpoint and later calls
// reuse the result until it expires; with only an access token the
// source is static. No credentials at all is an error.
func TokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	if cfg.RefreshToken == "" {
		if cfg.AccessToken == "" {
			return nil, trellis.ErrNoCredentials
		}
		return Static(cfg.AccessToken), nil
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: tokenURL,
		},
	}

	// Seed with an already-expired token so the source refreshes on
	// first use; we never know the remaining lifetime of a stored
	// access token.
	seed := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}

	return conf.TokenSource(ctx, seed), nil
}

// Static wraps a fixed access token. Handy for tests and for
// short-lived scripts that already hold a valid token.
func Static(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
}
