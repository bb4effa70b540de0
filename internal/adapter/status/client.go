// Package status implements the HTTP client for the stations' JSON status endpoints.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/ports"
)

// DefaultTimeout bounds a single status request.
const DefaultTimeout = 8 * time.Second

// maxBodySize caps how much of a status body is read.
const maxBodySize = 1 << 20

// Client fetches and decodes status documents.
type Client struct {
	logger    *slog.Logger
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the per-request timeout. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// NewClient creates a status client.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		logger:    logger.With(slog.String("component", "status-client")),
		http:      &http.Client{},
		timeout:   DefaultTimeout,
		userAgent: "PrimalRadio/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch issues a GET against url and decodes the status document.
func (c *Client) Fetch(ctx context.Context, url string) (domain.StatusPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.StatusPayload{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.StatusPayload{}, fmt.Errorf("failed to fetch status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return domain.StatusPayload{}, &domain.StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return domain.StatusPayload{}, fmt.Errorf("failed to read status body: %w", err)
	}

	payload, err := Decode(body)
	if err != nil {
		return domain.StatusPayload{}, &domain.DecodeError{URL: url, Err: err}
	}

	c.logger.Debug("status fetched", slog.String("url", url), slog.String("nowplaying", payload.NowPlaying))
	return payload, nil
}

// document is the wire shape of a status body. The numeric fields are sent
// either as numbers or as numeric strings depending on the server version.
type document struct {
	NowPlaying  *string         `json:"nowplaying"`
	CoverArt    string          `json:"coverart"`
	Connections json.RawMessage `json:"connections"`
	Bitrate     json.RawMessage `json:"bitrate"`
	Format      json.RawMessage `json:"format"`
}

// Decode parses a status body. A body without a nowplaying string is rejected.
func Decode(body []byte) (domain.StatusPayload, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.StatusPayload{}, err
	}
	if doc.NowPlaying == nil {
		return domain.StatusPayload{}, errors.New("missing nowplaying field")
	}

	return domain.StatusPayload{
		NowPlaying:  *doc.NowPlaying,
		CoverArt:    doc.CoverArt,
		Connections: flexInt(doc.Connections),
		Bitrate:     flexInt(doc.Bitrate),
		Formats:     flexStrings(doc.Format),
	}, nil
}

// flexInt reads a number or a numeric string. Anything else is treated as absent.
func flexInt(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = []byte(strings.TrimSpace(s))
	}

	if n, err := strconv.Atoi(string(raw)); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		n := int(f)
		return &n
	}
	return nil
}

// flexStrings reads an array of strings or a single string.
func flexStrings(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

// Verify interface compliance at compile time
var _ ports.StatusFetcher = (*Client)(nil)
