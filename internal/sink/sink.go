// Package sink delivers finished multiple-choice questions to the remote
// quiz server.
//
// Delivery is fire-and-forget with at-most-once semantics: a failed POST is
// reported to the caller and never retried here, because the far side may
// already have accepted the question.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Question is one finished quiz question ready for delivery.
type Question struct {
	// Text is the question in concise quiz form.
	Text string

	// Options are the four shuffled answers.
	Options []string

	// CorrectIndex is the zero-based position of the correct answer within
	// Options.
	CorrectIndex int
}

// Deliverer is the delivery boundary the pipeline depends on. The returned
// string is the sink's opaque response text, logged but not interpreted.
type Deliverer interface {
	Deliver(ctx context.Context, q Question) (string, error)
}

// Config configures a [Client].
type Config struct {
	// URL is the full endpoint to POST questions to
	// (e.g. "https://quiz.example.com/admin/addQuiz").
	URL string

	// Secret is the shared secret the server authenticates with.
	Secret string

	// Code is the session/room code the question is published under.
	Code string

	// Format selects the wire shape. Empty means [WireQuiz].
	Format WireFormat

	// Timeout is the per-request HTTP timeout. Default: 10s.
	Timeout time.Duration
}

// Client implements [Deliverer] over HTTP. It is stateless between calls
// and safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ Deliverer = (*Client)(nil)

// New creates a Client for the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("sink: URL must not be empty")
	}
	if !cfg.Format.Valid() {
		return nil, fmt.Errorf("sink: unknown wire format %q", cfg.Format)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Deliver POSTs q as JSON in the configured wire shape and returns the
// response body text. Any HTTP status outside 2xx is an error.
func (c *Client) Deliver(ctx context.Context, q Question) (string, error) {
	body, err := encodePayload(c.cfg.Format, c.cfg.Secret, c.cfg.Code, q)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("sink: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sink: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("sink: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("sink: server returned HTTP %d: %s", resp.StatusCode, data)
	}
	return string(data), nil
}
