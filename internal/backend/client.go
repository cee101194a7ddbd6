// Package backend talks to the remote learning backend over JSON/HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration // per request; 0 leaves it to the HTTP client
	HTTPClient *http.Client
}

// Client is a thin JSON client for the learning backend.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a client for the backend at opts.BaseURL.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base URL required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("backend base URL %q must start with http:// or https://", baseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		timeout:    opts.Timeout,
		httpClient: hc,
	}, nil
}

// BaseURL returns the normalised backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// doJSON sends body and decodes the reply into out when the envelope status equals want.
func (c *Client) doJSON(ctx context.Context, method, path string, want int, body, out any) error {
	endpoint := method + " " + path

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", endpoint, err)
		}
		reader = bytes.NewReader(buf)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read reply: %w", endpoint, err)
	}
	slog.Debug("backend call", "endpoint", endpoint, "http_status", resp.StatusCode,
		"bytes", len(raw), "elapsed", time.Since(start))

	var env envelope
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &env); err != nil {
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Want: want, Message: string(trimmed)}
			}
			return fmt.Errorf("%s: decode reply: %w", endpoint, err)
		}
	}
	code := env.StatusCode
	if code == 0 {
		code = resp.StatusCode
	}
	if code != want {
		return &StatusError{Endpoint: endpoint, Code: code, Want: want, Message: env.Message}
	}

	if out == nil || len(trimmed) == 0 {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%s: decode reply: %w", endpoint, err)
	}
	return nil
}
