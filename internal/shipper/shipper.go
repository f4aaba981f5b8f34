// Package shipper submits log events to a remote securelog daemon over HTTP.
package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/al-bashkir/securelog/internal/wire"
)

// EventsPath is the ingest endpoint relative to the daemon's base URL
const EventsPath = "/v1/events"

// Options configures a Client
type Options struct {
	// URL is the daemon's base URL, e.g. "https://logs.example.com:9020"
	URL string
	// APIKey is sent as X-API-Key when set
	APIKey string
	// Credentials fetches bearer tokens with the OAuth2 client-credentials
	// grant when set. Mutually exclusive with APIKey.
	Credentials *clientcredentials.Config
	// Timeout bounds each request. Defaults to 10s.
	Timeout time.Duration
	// DisableCompression sends bodies without gzip
	DisableCompression bool
}

// Result is the daemon's answer to an accepted batch
type Result struct {
	Accepted  int    `json:"accepted"`
	RequestID string `json:"request_id"`
}

// StatusError is returned for a non-2xx response
type StatusError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *StatusError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("daemon returned %d: %s (request_id %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client is safe for concurrent use
type Client struct {
	endpoint string
	apiKey   string
	gzip     bool
	http     *http.Client
}

// New creates a Client. ctx is used for token fetches over the lifetime
// of the client.
func New(ctx context.Context, opts Options) (*Client, error) {
	base := strings.TrimRight(opts.URL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("daemon URL must be a valid HTTP(S) URL")
	}
	if opts.APIKey != "" && opts.Credentials != nil {
		return nil, errors.New("API key and client credentials are mutually exclusive")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := &http.Client{Timeout: timeout}
	if opts.Credentials != nil {
		hc = opts.Credentials.Client(ctx)
		hc.Timeout = timeout
	}

	return &Client{
		endpoint: base + EventsPath,
		apiKey:   opts.APIKey,
		gzip:     !opts.DisableCompression,
		http:     hc,
	}, nil
}

// Send submits events as one batch
func (c *Client) Send(ctx context.Context, events []wire.Event) (*Result, error) {
	payload, err := wire.Encode(events)
	if err != nil {
		return nil, err
	}
	return c.SendRaw(ctx, payload)
}

// SendRaw submits already encoded wire JSON
func (c *Client) SendRaw(ctx context.Context, payload []byte) (*Result, error) {
	body := payload
	if c.gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("failed to compress body: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress body: %w", err)
		}
		body = buf.Bytes()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send events: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error     string `json:"error"`
			RequestID string `json:"request_id"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg, RequestID: errResp.RequestID}
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
