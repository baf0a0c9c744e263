package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printdesign-server/core"
	"printdesign-server/handlers/auth"
)

func echoSubject(w http.ResponseWriter, r *http.Request) {
	claims, ok := Claims(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(claims.Subject))
}

func TestAuthJWT(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour, time.Hour)
	valid, err := tokens.Create(&core.User{Subject: "github:7"})
	require.NoError(t, err)
	expired, err := auth.NewTokens("secret", -time.Minute, time.Hour).Create(&core.User{Subject: "github:7"})
	require.NoError(t, err)

	handler := AuthJWT(tokens)(http.HandlerFunc(echoSubject))

	tests := []struct {
		name     string
		header   string
		status   int
		contains string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "github:7"},
		{"missing", "", http.StatusUnauthorized, "required"},
		{"wrong scheme", "Token " + valid, http.StatusUnauthorized, "Bearer {token}"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, CodeTokenExpired},
		{"garbage", "Bearer abc", http.StatusUnauthorized, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.contains)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := NewRateLimiter(ctx, 0.001, 2)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/export", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"))
}

func TestRateLimiterKeysBySubject(t *testing.T) {
	limiter := NewRateLimiter(context.Background(), 0.001, 1)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(subject string) int {
		req := httptest.NewRequest(http.MethodPost, "/export", nil)
		claims := &auth.AppClaims{}
		claims.Subject = subject
		req = req.WithContext(context.WithValue(req.Context(), ClaimsContextKey, claims))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusTooManyRequests, call("a"))
	assert.Equal(t, http.StatusOK, call("b"))
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(context.Background(), 1, 1)
	limiter.allow("ip:1")
	limiter.cleanup(time.Now().Add(rateLimitClientTTL + time.Second))
	assert.Empty(t, limiter.clients)
}
