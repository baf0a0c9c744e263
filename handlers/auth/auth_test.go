package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"printdesign-server/config"
	"printdesign-server/core"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestTokens(c *clock) *Tokens {
	tokens := NewTokens("test-secret", time.Hour, 24*time.Hour)
	tokens.now = c.now
	return tokens
}

var testUser = &core.User{Subject: "github:42", Login: "alice", Name: "Alice", Email: "alice@example.com"}

func TestTokensRoundTrip(t *testing.T) {
	c := &clock{t: time.Now()}
	tokens := newTestTokens(c)

	signed, err := tokens.Create(testUser)
	require.NoError(t, err)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "github:42", claims.Subject)
	assert.Equal(t, "alice", claims.Login)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestTokensParseExpired(t *testing.T) {
	c := &clock{t: time.Now()}
	tokens := newTestTokens(c)
	signed, err := tokens.Create(testUser)
	require.NoError(t, err)

	c.t = c.t.Add(2 * time.Hour)
	_, err = tokens.Parse(signed)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestTokensRejectForeignSignature(t *testing.T) {
	c := &clock{t: time.Now()}
	other := NewTokens("other-secret", time.Hour, time.Hour)
	signed, err := other.Create(testUser)
	require.NoError(t, err)

	_, err = newTestTokens(c).Parse(signed)
	assert.Error(t, err)
	_, err = newTestTokens(c).Refresh(signed)
	assert.Error(t, err)
}

func TestTokensWithoutSecret(t *testing.T) {
	_, err := NewTokens("", time.Hour, time.Hour).Create(testUser)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestTokensRefresh(t *testing.T) {
	start := time.Now().Truncate(time.Second)
	c := &clock{t: start}
	tokens := newTestTokens(c)
	signed, err := tokens.Create(testUser)
	require.NoError(t, err)

	c.t = start.Add(3 * time.Hour)
	fresh, err := tokens.Refresh(signed)
	require.NoError(t, err)

	claims, err := tokens.Parse(fresh)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Login)
	assert.True(t, claims.ExpiresAt.Time.Equal(c.t.Add(time.Hour)))

	c.t = start.Add(26 * time.Hour)
	_, err = tokens.Refresh(signed)
	assert.ErrorIs(t, err, ErrRefreshWindowElapsed)
}

func TestHandleRefresh(t *testing.T) {
	c := &clock{t: time.Now()}
	tokens := newTestTokens(c)
	h := New(context.Background(), &config.Config{JWTSecret: "test-secret"}, tokens)
	signed, err := tokens.Create(testUser)
	require.NoError(t, err)
	c.t = c.t.Add(90 * time.Minute)

	t.Run("expired inside window", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rr := httptest.NewRecorder()
		h.HandleRefresh(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		_, err := tokens.Parse(body["token"])
		assert.NoError(t, err)
	})

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleRefresh(rr, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		h.HandleRefresh(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "AUTH_EXPIRED")
	})
}

func TestLoginNotConfigured(t *testing.T) {
	h := New(context.Background(), &config.Config{}, NewTokens("s", time.Hour, 0))
	rr := httptest.NewRecorder()
	h.HandleLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = httptest.NewRecorder()
	h.HandleCallback(rr, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGitHubLoginFlow(t *testing.T) {
	github := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/oauth/access_token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"gh-token","token_type":"bearer"}`))
		case "/user":
			if r.Header.Get("Authorization") != "Bearer gh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":42,"login":"alice","name":"Alice","avatar_url":"https://a/x.png"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer github.Close()

	tokens := newTestTokens(&clock{t: time.Now()})
	h := New(context.Background(), &config.Config{
		GitHubClientID:     "id",
		GitHubClientSecret: "secret",
		JWTSecret:          "test-secret",
	}, tokens)
	h.github.Endpoint = oauth2.Endpoint{
		AuthURL:   github.URL + "/login/oauth/authorize",
		TokenURL:  github.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	h.githubUserURL = github.URL + "/user"

	rr := httptest.NewRecorder()
	h.HandleLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	t.Run("state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=other", nil)
		req.AddCookie(cookies[0])
		rr := httptest.NewRecorder()
		h.HandleCallback(rr, req)
		assert.Equal(t, "/", rr.Header().Get("Location"))
	})

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state="+url.QueryEscape(state), nil)
		req.AddCookie(cookies[0])
		rr := httptest.NewRecorder()
		h.HandleCallback(rr, req)

		require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
		redirect := rr.Header().Get("Location")
		require.True(t, strings.HasPrefix(redirect, "/?token="), redirect)
		claims, err := tokens.Parse(strings.TrimPrefix(redirect, "/?token="))
		require.NoError(t, err)
		assert.Equal(t, "github:42", claims.Subject)
		assert.Equal(t, "alice", claims.Login)
	})
}

func TestBearerToken(t *testing.T) {
	tests := map[string]bool{
		"Bearer abc": true,
		"bearer abc": true,
		"Basic abc":  false,
		"Bearer":     false,
		"":           false,
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		_, ok := BearerToken(req)
		assert.Equal(t, want, ok, header)
	}
}
