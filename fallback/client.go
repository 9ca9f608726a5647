// Package fallback reaches the backend over plain HTTP when the
// realtime channel is unavailable: audio upload and page analysis POST
// endpoints with bounded retries.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseBody caps response reads from the backend (10 MiB).
const maxResponseBody int64 = 10 << 20

// ErrStatus is returned for non-2xx backend responses.
type ErrStatus struct {
	Code int
	Body string
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("fallback: backend status %d: %s", e.Code, e.Body)
}

// Config carries the fallback endpoints and retry tunables.
type Config struct {
	// AudioURL receives raw audio segments.
	AudioURL string
	// AnalyzeURL receives page-content analysis requests.
	AnalyzeURL string

	// MaxRetries is the number of retry attempts after the first
	// failure. Default: 2.
	MaxRetries int
	// BaseBackoff is the initial wait between retries, doubled each
	// attempt. Default: 250ms.
	BaseBackoff time.Duration
	// Timeout bounds each HTTP call. Default: 30s.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 250 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client posts to the backend's HTTP endpoints with retries.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a fallback Client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
	}
}

// UploadAudio sends a captured segment and returns the backend's raw
// JSON response.
func (c *Client) UploadAudio(ctx context.Context, audio []byte) ([]byte, error) {
	return c.post(ctx, c.cfg.AudioURL, "application/octet-stream", audio)
}

// AnalyzePage sends a page-content payload for analysis and returns the
// backend's raw JSON response.
func (c *Client) AnalyzePage(ctx context.Context, html, text, url string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"html": html,
		"text": text,
		"url":  url,
	})
	if err != nil {
		return nil, fmt.Errorf("fallback: encode analysis request: %w", err)
	}
	return c.post(ctx, c.cfg.AnalyzeURL, "application/json", body)
}

// post delivers a payload with exponential-backoff retries. Non-2xx
// responses count as failures and are retried; the last error wins.
func (c *Client) post(ctx context.Context, url, contentType string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.once(ctx, url, contentType, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
		if attempt < c.cfg.MaxRetries {
			wait := c.cfg.BaseBackoff * (1 << uint(attempt))
			c.logger.WarnContext(ctx, "fallback: retrying call",
				"attempt", attempt+1,
				"max_retries", c.cfg.MaxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(wait):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, url, contentType string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("fallback: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fallback: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("fallback: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ErrStatus{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
