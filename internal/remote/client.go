// Package remote talks to the portfolio backend.
//
// The client fetches sealed snapshots, probes backend health and replays
// captured form submissions. Every request carries an X-Correlation-ID and
// is logged with its method, url, status and duration.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roach88/folio/internal/codec"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/outbox"
)

const (
	// SnapshotPath serves the sealed snapshot envelope.
	SnapshotPath = "/api/local-first/snapshot"

	// HealthPath reports whether the backend and its database are reachable.
	HealthPath = "/api/local-first/health"

	// DefaultTimeout bounds each request when no http.Client is supplied.
	DefaultTimeout = 30 * time.Second

	// IdempotencyHeader carries an intent's idempotency key on replay.
	IdempotencyHeader = "Idempotency-Key"

	// CorrelationHeader carries the per-request correlation id.
	CorrelationHeader = "X-Correlation-ID"
)

// Client is an HTTP client for the backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     zerolog.Logger
	cookie  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. Default: a disabled logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l.With().Str("component", "remote").Logger() }
}

// WithSessionCookie sends the given Cookie header with every request.
func WithSessionCookie(cookie string) Option {
	return func(c *Client) { c.cookie = cookie }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse backend url: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend base url.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Resolve turns an intent url, absolute or relative, into an absolute one
// against the backend.
func (c *Client) Resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return c.baseURL.ResolveReference(r).String(), nil
}

// HealthResult is the body of the health endpoint.
type HealthResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Health probes the backend. A nil error means the backend answered ok.
func (c *Client) Health(ctx context.Context) (HealthResult, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint(HealthPath), nil, nil)
	if err != nil {
		return HealthResult{}, fmt.Errorf("health: %w", err)
	}
	defer resp.Body.Close()

	var result HealthResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&result); err != nil && resp.StatusCode == http.StatusOK {
		return HealthResult{}, fmt.Errorf("health: decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return result, &StatusError{Op: "health", StatusCode: resp.StatusCode, Reason: result.Reason}
	}
	return result, nil
}

// FetchSnapshot downloads the current snapshot envelope.
//
// The envelope hash is recomputed locally; a mismatch is logged and the
// payload is still returned.
func (c *Client) FetchSnapshot(ctx context.Context) (model.Envelope, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint(SnapshotPath), nil, nil)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
		return model.Envelope{}, &StatusError{Op: "snapshot", StatusCode: resp.StatusCode, Reason: body.Error}
	}

	var raw struct {
		Hash     string          `json:"hash"`
		Snapshot *model.Snapshot `json:"snapshot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.Envelope{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if raw.Hash == "" || raw.Snapshot == nil {
		return model.Envelope{}, fmt.Errorf("snapshot: incomplete envelope")
	}

	env := model.Envelope{Hash: raw.Hash, Snapshot: raw.Snapshot.Clone()}
	if local, err := codec.Hash(env.Snapshot); err == nil && local != env.Hash {
		c.log.Warn().
			Str("remoteHash", env.Hash).
			Str("localHash", local).
			Msg("snapshot hash mismatch")
	}
	return env, nil
}

// Replay re-submits a captured intent as a multipart form POST.
// Any final status below 400 counts as success.
func (c *Client) Replay(ctx context.Context, in model.Intent) error {
	body, contentType, err := outbox.EncodeBody(in.Fields)
	if err != nil {
		return fmt.Errorf("replay %d: %w", in.ID, err)
	}
	target, err := c.Resolve(in.URL)
	if err != nil {
		return fmt.Errorf("replay %d: %w", in.ID, err)
	}

	method := in.Method
	if method == "" {
		method = http.MethodPost
	}
	headers := http.Header{}
	headers.Set("Content-Type", contentType)
	if in.IdempotencyKey != "" {
		headers.Set(IdempotencyHeader, in.IdempotencyKey)
	}

	resp, err := c.do(ctx, method, target, bytes.NewReader(body), headers)
	if err != nil {
		return fmt.Errorf("replay %d: %w", in.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 {
		return &StatusError{Op: "replay", StatusCode: resp.StatusCode}
	}
	return nil
}

// endpoint joins a fixed API path onto the backend base url.
func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, headers http.Header) (*http.Response, error) {
	correlationID := uuid.New().String()
	logger := c.log.With().
		Str("method", method).
		Str("url", target).
		Str("correlationId", correlationID).
		Logger()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(CorrelationHeader, correlationID)
	req.Header.Set("Cache-Control", "no-store")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		logger.Debug().Err(err).Dur("duration", duration).Msg("HTTP request failed")
		return nil, err
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("HTTP request completed")
	return resp, nil
}
