package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource builds the bearer credential provider for the upstream stream.
// It returns nil when no credential is configured.
func (a AuthConfig) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if a.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			TokenURL:     a.TokenURL,
			Scopes:       a.Scopes,
		}
		return cc.TokenSource(ctx), nil
	}

	raw := strings.TrimSpace(a.Token)
	if raw == "" && a.TokenFile != "" {
		data, err := os.ReadFile(a.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return nil, nil
	}

	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: raw,
		TokenType:   "Bearer",
		Expiry:      tokenExpiry(raw),
	}), nil
}

// tokenExpiry reads the exp claim of a JWT without verifying it. Opaque tokens never expire.
func tokenExpiry(raw string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
