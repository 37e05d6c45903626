package strava

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthURL(t *testing.T) {
	o := NewOAuth(OAuthConfig{
		ClientID:    "42",
		AuthURL:     "https://www.strava.com/oauth/authorize",
		TokenURL:    "https://www.strava.com/oauth/token",
		RedirectURL: "http://localhost/strava/callback",
	})

	u, err := url.Parse(o.AuthURL("st4te"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "42", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, "force", q.Get("approval_prompt"))
	assert.Equal(t, Scope, q.Get("scope"))
	assert.Equal(t, "http://localhost/strava/callback", q.Get("redirect_uri"))
}

func tokenServer(t *testing.T, check func(url.Values), body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		check(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExchangeUsesExpiresAt(t *testing.T) {
	srv := tokenServer(t, func(v url.Values) {
		assert.Equal(t, "authorization_code", v.Get("grant_type"))
		assert.Equal(t, "the-code", v.Get("code"))
		assert.Equal(t, "42", v.Get("client_id"))
		assert.Equal(t, "secret", v.Get("client_secret"))
	}, `{"token_type":"Bearer","access_token":"a1","refresh_token":"r1","expires_at":1900000000,"expires_in":21600}`)

	o := NewOAuth(OAuthConfig{ClientID: "42", ClientSecret: "secret", TokenURL: srv.URL, HTTPClient: srv.Client()})
	tok, err := o.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.EqualValues(t, 1900000000, tok.ExpiresAt)
}

func TestRefresh(t *testing.T) {
	srv := tokenServer(t, func(v url.Values) {
		assert.Equal(t, "refresh_token", v.Get("grant_type"))
		assert.Equal(t, "r0", v.Get("refresh_token"))
	}, `{"token_type":"Bearer","access_token":"a2","refresh_token":"r2","expires_in":3600}`)

	o := NewOAuth(OAuthConfig{ClientID: "42", ClientSecret: "secret", TokenURL: srv.URL, HTTPClient: srv.Client(), Timeout: time.Second})
	tok, err := o.Refresh(context.Background(), "r0")
	require.NoError(t, err)
	assert.Equal(t, "a2", tok.AccessToken)
	assert.Equal(t, "r2", tok.RefreshToken)
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), tok.ExpiresAt, 5)
}

func TestRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Bad Request","errors":[{"field":"refresh_token","code":"invalid"}]}`)
	}))
	t.Cleanup(srv.Close)

	o := NewOAuth(OAuthConfig{TokenURL: srv.URL, HTTPClient: srv.Client()})
	_, err := o.Refresh(context.Background(), "bad")
	require.Error(t, err)
}
