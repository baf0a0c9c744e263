// Package auth signs designers in through GitHub or an OIDC provider and
// hands out the access tokens used by the API and the export uploads.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"printdesign-server/config"
	"printdesign-server/core"
)

const (
	githubStateCookie = "oauthstate"
	oidcStateCookie   = "oidc_state"
	githubUserURL     = "https://api.github.com/user"
)

// OIDCClaims represents the claims from OIDC token
type OIDCClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
	Sub               string `json:"sub"`
}

// Handler serves the login, callback and refresh routes.
type Handler struct {
	tokens *Tokens

	github        *oauth2.Config
	githubUserURL string

	oidc     *oauth2.Config
	verifier *oidc.IDTokenVerifier

	login    http.HandlerFunc
	callback http.HandlerFunc
}

// New picks OIDC when it is configured, GitHub otherwise.
func New(ctx context.Context, cfg *config.Config, tokens *Tokens) *Handler {
	h := &Handler{tokens: tokens, githubUserURL: githubUserURL}

	switch {
	case cfg.OIDCConfigured():
		logrus.Info("Initializing OIDC authentication provider.")
		if err := h.initOIDC(ctx, cfg); err != nil {
			logrus.Errorf("Failed to create OIDC provider: %s", err.Error())
			break
		}
		h.login = h.HandleOIDCLogin
		h.callback = h.HandleOIDCCallback
	case cfg.GitHubConfigured():
		logrus.Info("Initializing GitHub authentication provider.")
		h.github = &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}
		h.login = h.HandleGitHubLogin
		h.callback = h.HandleGitHubCallback
	default:
		logrus.Warn("No authentication provider configured.")
	}

	if cfg.JWTSecret == "" {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}
	return h
}

func (h *Handler) initOIDC(ctx context.Context, cfg *config.Config) error {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		return err
	}
	h.oidc = &oauth2.Config{
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint:     provider.Endpoint(),
	}
	h.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
	logrus.Info("OIDC provider initialized")
	return nil
}

func notConfigured(w http.ResponseWriter) {
	http.Error(w, "Authentication not configured", http.StatusInternalServerError)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.login == nil {
		notConfigured(w)
		return
	}
	h.login(w, r)
}

func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if h.callback == nil {
		notConfigured(w)
		return
	}
	h.callback(w, r)
}

// HandleRefresh exchanges the Bearer token for a fresh one.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	tokenString, ok := BearerToken(r)
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Authorization header format must be Bearer {token}"})
		return
	}

	token, err := h.tokens.Refresh(tokenString)
	if err != nil {
		logrus.WithError(err).Warn("Token refresh rejected")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Token cannot be refreshed", "code": string(core.CodeAuthExpired)})
		return
	}
	render.JSON(w, r, map[string]string{"token": token})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setStateCookie(w http.ResponseWriter, r *http.Request, name string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

func checkState(r *http.Request, name string) error {
	cookie, err := r.Cookie(name)
	if err != nil {
		return fmt.Errorf("missing state cookie: %w", err)
	}
	if cookie.Value == "" || cookie.Value != r.FormValue("state") {
		return errors.New("state mismatch")
	}
	return nil
}

func (h *Handler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state, err := setStateCookie(w, r, githubStateCookie)
	if err != nil {
		http.Error(w, "Failed to generate state for GitHub login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.github.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *Handler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if err := checkState(r, githubStateCookie); err != nil {
		logrus.Errorf("invalid oauth state: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	token, err := h.github.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		logrus.Errorf("failed to exchange token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	client := h.github.Client(r.Context(), token)
	resp, err := client.Get(h.githubUserURL)
	if err != nil {
		logrus.Errorf("failed to get user from github: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.Errorf("failed to read github response body: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var githubUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
		Name      string `json:"name"`
		Email     string `json:"email"`
	}
	if err := json.Unmarshal(body, &githubUser); err != nil {
		logrus.Errorf("failed to unmarshal github user: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	h.finishLogin(w, r, &core.User{
		Subject:   fmt.Sprintf("github:%d", githubUser.ID),
		Login:     githubUser.Login,
		Email:     githubUser.Email,
		AvatarURL: githubUser.AvatarURL,
		Name:      githubUser.Name,
	})
}

func (h *Handler) HandleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	state, err := setStateCookie(w, r, oidcStateCookie)
	if err != nil {
		http.Error(w, "Failed to generate state for OIDC login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.oidc.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusTemporaryRedirect)
}

func (h *Handler) HandleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if err := checkState(r, oidcStateCookie); err != nil {
		logrus.Errorf("invalid oidc state: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	code := r.FormValue("code")
	if code == "" {
		logrus.Error("no code in callback")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	token, err := h.oidc.Exchange(r.Context(), code)
	if err != nil {
		logrus.Errorf("failed to exchange token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		logrus.Error("no id_token in token response")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	idToken, err := h.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		logrus.Errorf("failed to verify ID token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		logrus.Errorf("failed to extract claims from ID token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	user := &core.User{
		Subject:   claims.Sub,
		Login:     claims.PreferredUsername,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
		Name:      claims.Name,
	}
	if user.Login == "" && user.Email != "" {
		user.Login = user.Email
	}
	h.finishLogin(w, r, user)
}

// finishLogin redirects to the editor with a freshly signed token.
func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request, user *core.User) {
	jwtToken, err := h.tokens.Create(user)
	if err != nil {
		logrus.Errorf("failed to create JWT: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	logrus.WithFields(logrus.Fields{"subject": user.Subject, "login": user.Login}).Info("User signed in")
	http.Redirect(w, r, fmt.Sprintf("/?token=%s", jwtToken), http.StatusTemporaryRedirect)
}
