package strava

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Scope is sent as one comma separated value; Strava does not accept
// space separated scopes.
const Scope = "read,read_all,profile:read_all,activity:read_all,activity:write"

// OAuth wraps the Strava authorization code and refresh grants.
type OAuth struct {
	config     *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

func NewOAuth(c OAuthConfig) *OAuth {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: c.RedirectURL,
			Scopes:      []string{Scope},
		},
		httpClient: httpClient,
		timeout:    c.Timeout,
	}
}

// AuthURL returns the consent page URL carrying state.
func (o *OAuth) AuthURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "force"))
}

// Exchange trades an authorization code for a token set.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	ctx, cancel := o.context(ctx)
	defer cancel()

	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return toToken(tok), nil
}

// Refresh runs the refresh_token grant. When Strava omits a new refresh
// token the old one is kept.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	ctx, cancel := o.context(ctx)
	defer cancel()

	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	tok, err := o.config.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return toToken(tok), nil
}

func (o *OAuth) context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

// toToken prefers Strava's absolute expires_at over the expiry oauth2 derives
// from expires_in.
func toToken(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.Unix(),
	}
	switch v := tok.Extra("expires_at").(type) {
	case float64:
		out.ExpiresAt = int64(v)
	case int64:
		out.ExpiresAt = v
	}
	if tok.Expiry.IsZero() && out.ExpiresAt < 0 {
		out.ExpiresAt = 0
	}
	return out
}
