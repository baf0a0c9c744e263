package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"printdesign-server/core"
)

var (
	ErrNoSecret             = errors.New("JWT secret is not configured")
	ErrRefreshWindowElapsed = errors.New("token is past its refresh window")
)

// AppClaims represents the custom claims for the JWT.
type AppClaims struct {
	jwt.RegisteredClaims
	Login     string `json:"login"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl"`
	Name      string `json:"name"`
}

// Tokens issues and verifies HS256 access tokens.
type Tokens struct {
	secret        []byte
	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

func NewTokens(secret string, ttl, refreshWindow time.Duration) *Tokens {
	return &Tokens{
		secret:        []byte(secret),
		ttl:           ttl,
		refreshWindow: refreshWindow,
		now:           time.Now,
	}
}

// Create signs a token for the user that expires after the configured TTL.
func (t *Tokens) Create(user *core.User) (string, error) {
	now := t.now()
	return t.sign(AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Login:     user.Login,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Name:      user.Name,
	})
}

func (t *Tokens) sign(claims AppClaims) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrNoSecret
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if len(t.secret) == 0 {
		return nil, ErrNoSecret
	}
	return t.secret, nil
}

// Parse verifies the signature and expiry. An expired token yields an error
// matching jwt.ErrTokenExpired.
func (t *Tokens) Parse(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, t.keyFunc, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// Refresh exchanges a correctly signed token, expired or not, for a new one
// as long as it expired less than the refresh window ago.
func (t *Tokens) Refresh(tokenString string) (string, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, &AppClaims{}, t.keyFunc)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*AppClaims)
	if !ok || claims.ExpiresAt == nil {
		return "", fmt.Errorf("invalid token")
	}

	now := t.now()
	if now.After(claims.ExpiresAt.Add(t.refreshWindow)) {
		return "", ErrRefreshWindowElapsed
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	return t.sign(*claims)
}
