package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Credentials supplies the Bearer token for uploads.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	// Refresh exchanges the current token for a new one.
	Refresh(ctx context.Context) (string, error)
}

var ErrNoToken = errors.New("no access token")

// RefreshingToken holds an access token and renews it through the server's
// refresh endpoint.
type RefreshingToken struct {
	mu      sync.Mutex
	token   string
	baseURL string
	client  *http.Client
}

func NewRefreshingToken(baseURL, token string, client *http.Client) *RefreshingToken {
	if client == nil {
		client = http.DefaultClient
	}
	return &RefreshingToken{token: token, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *RefreshingToken) Token(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == "" {
		return "", ErrNoToken
	}
	return t.token, nil
}

func (t *RefreshingToken) Refresh(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == "" {
		return "", ErrNoToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/auth/refresh", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh token: status %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if body.Token == "" {
		return "", ErrNoToken
	}
	t.token = body.Token
	return t.token, nil
}
