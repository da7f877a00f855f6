// Package notify pushes violation-alert events to the security desk
// webhook so guards see flagged visitors without watching the log UI.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Alert is the webhook payload for a scan that carried violations.
type Alert struct {
	LogID       string `json:"log_id"`
	SubjectID   string `json:"subject_id"`
	SubjectType string `json:"subject_type"`
	Event       string `json:"event"`
	Date        string `json:"date"`
	AlertCount  int    `json:"alert_count"`
}

// Client posts alerts to a configured webhook. With skip set it is a
// no-op, so dev environments run without a receiver.
type Client struct {
	baseURL string
	skip    bool
	http    *http.Client
}

// New creates a webhook client.
func New(baseURL string, skip bool) *Client {
	return &Client{
		baseURL: baseURL,
		skip:    skip,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Health checks that the webhook endpoint is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("notify: webhook unhealthy (%d)", resp.StatusCode)
	}
	return nil
}

// Send delivers one alert. Failures are returned to the caller; the
// worker logs and moves on rather than retrying.
func (c *Client) Send(ctx context.Context, alert Alert) error {
	if c.skip {
		return nil
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("notify: encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook rejected alert (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}
