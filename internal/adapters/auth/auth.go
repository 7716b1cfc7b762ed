// Package auth supplies the bearer credential attached to downstream calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrMissingClientID     = errors.New("oauth2 client id is required")
	ErrMissingClientSecret = errors.New("oauth2 client secret is required")
	ErrMissingTokenURL     = errors.New("oauth2 token url is required")
	ErrEmptyAccessToken    = errors.New("oauth2 token endpoint returned an empty access token")
)

// Static returns the same token on every call. An empty token disables the
// Authorization header.
type Static string

func (s Static) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// OAuth2Provider runs the client credentials grant and reuses the token
// until it expires.
type OAuth2Provider struct {
	mu     sync.Mutex
	source oauth2.TokenSource
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	switch {
	case strings.TrimSpace(cfg.ClientID) == "":
		return nil, ErrMissingClientID
	case strings.TrimSpace(cfg.ClientSecret) == "":
		return nil, ErrMissingClientSecret
	case strings.TrimSpace(cfg.TokenURL) == "":
		return nil, ErrMissingTokenURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})

	return &OAuth2Provider{source: cc.TokenSource(ctx)}, nil
}

func (p *OAuth2Provider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch service token: %w", err)
	}

	if tok.AccessToken == "" {
		return "", ErrEmptyAccessToken
	}

	return tok.AccessToken, nil
}
