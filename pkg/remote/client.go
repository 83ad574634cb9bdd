// Package remote is the HTTP client for the document store that receives
// synced flights and alerts, plus the connectivity monitor that gates the
// sync queue.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"soartrack/pkg/config"
)

var (
	// ErrUnreachable wraps transport-level failures so the sync queue can
	// tell a dead network from a rejected write.
	ErrUnreachable = errors.New("remote store unreachable")

	// ErrUnauthorized marks rejected credentials; the safety monitor turns
	// this into a credential alert instead of retrying forever.
	ErrUnauthorized = errors.New("remote store rejected credentials")
)

// Client writes documents to the remote store. Create is a full-document
// PUT, Merge a partial PATCH; the server fills ServerTimestamp-tagged
// fields with its own clock.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	backoff    *Backoff
	monitor    *Monitor
}

// NewClient creates a document store client. The monitor may be nil.
func NewClient(cfg config.RemoteConfig, monitor *Monitor) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout)},
		baseURL:    cfg.BaseURL,
		backoff:    NewBackoff(time.Duration(cfg.BackoffBase), time.Duration(cfg.BackoffMax)),
		monitor:    monitor,
	}
}

// SetAPIKey sets the bearer token sent with every request.
func (c *Client) SetAPIKey(key string) {
	c.apiKey = key
}

// Create writes the full document, replacing any previous version.
func (c *Client) Create(ctx context.Context, collection, docID string, doc []byte) error {
	return c.write(ctx, http.MethodPut, collection, docID, doc)
}

// Merge writes only the supplied fields into the document.
func (c *Client) Merge(ctx context.Context, collection, docID string, doc []byte) error {
	return c.write(ctx, http.MethodPatch, collection, docID, doc)
}

func (c *Client) write(ctx context.Context, method, collection, docID string, doc []byte) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: no base URL configured", ErrUnreachable)
	}

	if wait := c.backoff.Delay(); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	u := fmt.Sprintf("%s/%s/%s", c.baseURL, collection, docID)
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.backoff.RecordFailure()
		c.markOnline(false)
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.backoff.RecordSuccess()
		c.markOnline(true)
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The server answered, so the network is up
		c.markOnline(true)
		return fmt.Errorf("%w: %s %s: %s", ErrUnauthorized, method, u, resp.Status)
	default:
		c.backoff.RecordFailure()
		c.markOnline(true)
		return fmt.Errorf("remote write failed: %s %s: %s", method, u, resp.Status)
	}
}

func (c *Client) markOnline(online bool) {
	if c.monitor == nil {
		return
	}
	c.monitor.SetOnline(online)
}

// Probe checks whether the remote store answers at all.
func (c *Client) Probe(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: no base URL configured", ErrUnreachable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	if resp.StatusCode >= 500 {
		return fmt.Errorf("remote unhealthy: %s", resp.Status)
	}
	return nil
}

// RunProbe polls the remote store until the context ends, feeding the
// connectivity monitor. This is what flips the monitor back online after
// an outage so queued operations drain promptly.
func (c *Client) RunProbe(ctx context.Context, interval time.Duration, monitor *Monitor) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.Probe(ctx)
			monitor.SetOnline(err == nil)
			if err != nil {
				slog.Debug("Remote: probe failed", "error", err)
			}
		}
	}
}
