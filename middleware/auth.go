package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"

	"printdesign-server/handlers/auth"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

// CodeTokenExpired tells clients to call the refresh endpoint.
const CodeTokenExpired = "TOKEN_EXPIRED"

// AuthJWT requires a valid Bearer token and stores its claims in the request
// context.
func AuthJWT(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Authorization header is required"})
				return
			}

			tokenString, ok := auth.BearerToken(r)
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Authorization header format must be Bearer {token}"})
				return
			}

			claims, err := tokens.Parse(tokenString)
			if errors.Is(err, jwt.ErrTokenExpired) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Token expired", "code": CodeTokenExpired})
				return
			}
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Claims returns the claims stored by AuthJWT.
func Claims(ctx context.Context) (*auth.AppClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.AppClaims)
	return claims, ok
}
