// Package persist uploads rendered print snapshots to the server.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"printdesign-server/canvas"
	"printdesign-server/core"
	"printdesign-server/export/retry"
)

const DefaultRetryDelay = 500 * time.Millisecond

// Meta is the print specification sent alongside the PNG.
type Meta struct {
	TemplateID  string
	PrintAreaPx core.Rect
	PrintAreaMm core.Rect
}

type UploadReceipt struct {
	Record   core.DesignSnapshotRecord
	Attempts int
}

type Client struct {
	baseURL    string
	http       *http.Client
	creds      Credentials
	guard      *Guard
	retryDelay time.Duration
	log        logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

func WithGuard(g *Guard) Option {
	return func(c *Client) { c.guard = g }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       http.DefaultClient,
		creds:      creds,
		guard:      NewGuard(),
		retryDelay: DefaultRetryDelay,
		log:        logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Upload stores the rendered view on the server. Concurrent uploads for the
// same design view run one after the other.
func (c *Client) Upload(ctx context.Context, designID, viewID string, result core.ExportResult, meta Meta) (*UploadReceipt, error) {
	payload, err := canvas.DataURLBytes(result.DataURL)
	if err != nil {
		return nil, &Error{Code: core.CodeInternal, Err: fmt.Errorf("decode data url: %w", err)}
	}

	release, err := c.guard.Acquire(ctx, Key(designID, viewID))
	if err != nil {
		return nil, fmt.Errorf("wait for in-flight upload: %w", err)
	}
	defer release()

	log := c.log.WithFields(logrus.Fields{
		"design_id": designID,
		"view_id":   viewID,
		"size":      len(payload),
	})

	attempts := 0
	refreshed := false
	for {
		var rec *core.DesignSnapshotRecord
		err := retry.Do(ctx, retry.Policy{MaxAttempts: 2, Initial: c.retryDelay, Multiplier: 1}, func(ctx context.Context) error {
			attempts++
			var err error
			rec, err = c.put(ctx, designID, viewID, payload, result, meta)
			if err == nil {
				return nil
			}
			if code, _ := CodeOf(err); code != core.CodeNetworkUnavailable {
				return retry.Permanent(err)
			}
			log.WithError(err).Warn("Snapshot upload attempt failed")
			return err
		})
		if err == nil {
			log.WithField("attempts", attempts).Info("Snapshot uploaded")
			return &UploadReceipt{Record: *rec, Attempts: attempts}, nil
		}

		var pe *Error
		if !errors.As(err, &pe) {
			return nil, err
		}
		if pe.Code != core.CodeAuthExpired {
			log.WithError(err).Error("Snapshot upload failed")
			return nil, pe
		}
		if refreshed {
			pe.Fatal = true
			log.Error("Token rejected after refresh")
			return nil, pe
		}

		refreshed = true
		log.Info("Token expired, refreshing")
		if _, rerr := c.creds.Refresh(ctx); rerr != nil {
			return nil, &Error{Code: core.CodeAuthExpired, Fatal: true, Status: pe.Status, Err: rerr}
		}
	}
}

func (c *Client) put(ctx context.Context, designID, viewID string, payload []byte, result core.ExportResult, meta Meta) (*core.DesignSnapshotRecord, error) {
	body, contentType, err := multipartBody(payload, result, meta, designID, viewID)
	if err != nil {
		return nil, &Error{Code: core.CodeInternal, Err: err}
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, &Error{Code: core.CodeAuthExpired, Err: err}
	}

	endpoint := fmt.Sprintf("%s/api/v2/designs/%s/views/%s/snapshot", c.baseURL, url.PathEscape(designID), url.PathEscape(viewID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return nil, &Error{Code: core.CodeInternal, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Code: core.CodeNetworkUnavailable, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var rec core.DesignSnapshotRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return nil, &Error{Code: core.CodeInternal, Status: resp.StatusCode, Err: fmt.Errorf("decode receipt: %w", err)}
		}
		return &rec, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Code: core.CodeAuthExpired, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		var tooLarge struct {
			Limit int64 `json:"limit"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&tooLarge)
		return nil, &Error{Code: core.CodePayloadTooLarge, Fatal: true, Status: resp.StatusCode, Size: int64(len(payload)), Limit: tooLarge.Limit}
	case resp.StatusCode >= 500:
		return nil, &Error{Code: core.CodeNetworkUnavailable, Status: resp.StatusCode}
	}
	return nil, &Error{Code: core.CodeInternal, Status: resp.StatusCode}
}

func multipartBody(payload []byte, result core.ExportResult, meta Meta, designID, viewID string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	mime, ext := "image/png", "png"
	if strings.HasPrefix(result.DataURL, "data:image/jpeg") {
		mime, ext = "image/jpeg", "jpg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="png_file"; filename="%s-%s.%s"`, designID, viewID, ext))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", err
	}

	px, err := json.Marshal(meta.PrintAreaPx)
	if err != nil {
		return nil, "", err
	}
	mm, err := json.Marshal(meta.PrintAreaMm)
	if err != nil {
		return nil, "", err
	}
	fields := []struct{ name, value string }{
		{"template_id", meta.TemplateID},
		{"print_area_px", string(px)},
		{"print_area_mm", string(mm)},
		{"dpi", strconv.FormatFloat(result.DPI, 'f', -1, 64)},
		{"width", strconv.Itoa(result.PixelWidth)},
		{"height", strconv.Itoa(result.PixelHeight)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
