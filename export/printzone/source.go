package printzone

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"printdesign-server/core"
)

// StoreSource reads view geometry straight from a template store.
type StoreSource struct {
	Store core.TemplateStore
}

func (s StoreSource) View(ctx context.Context, templateID, viewID string) (*core.TemplateView, error) {
	t, err := s.Store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	v, ok := t.View(viewID)
	if !ok {
		return nil, fmt.Errorf("template %s view %s: %w", templateID, viewID, core.ErrNotFound)
	}
	return v, nil
}

// HTTPSource fetches view geometry from a template metadata endpoint.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSource) View(ctx context.Context, templateID, viewID string) (*core.TemplateView, error) {
	endpoint := fmt.Sprintf("%s/api/v2/templates/%s/views/%s", s.baseURL, url.PathEscape(templateID), url.PathEscape(viewID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch template view: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("template %s view %s: %w", templateID, viewID, core.ErrNotFound)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch template view: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var view core.TemplateView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode template view: %w", err)
	}
	return &view, nil
}

// Cache remembers the views of one template. Asking for a different template
// drops everything cached so far. Failures are not cached.
type Cache struct {
	source TemplateSource

	mu         sync.Mutex
	templateID string
	views      map[string]*core.TemplateView
}

func NewCache(source TemplateSource) *Cache {
	return &Cache{source: source, views: map[string]*core.TemplateView{}}
}

func (c *Cache) View(ctx context.Context, templateID, viewID string) (*core.TemplateView, error) {
	c.mu.Lock()
	if templateID != c.templateID {
		c.templateID = templateID
		c.views = map[string]*core.TemplateView{}
	}
	if v, ok := c.views[viewID]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.source.View(ctx, templateID, viewID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.templateID == templateID {
		c.views[viewID] = v
	}
	c.mu.Unlock()
	return v, nil
}

// Reset forgets the cached template.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.templateID = ""
	c.views = map[string]*core.TemplateView{}
	c.mu.Unlock()
}
