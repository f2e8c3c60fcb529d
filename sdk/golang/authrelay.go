// Package authrelay is the tenant-side SDK for an authrelay deployment.
//
// A tenant links its users to LoginURL, and serves HookHandler at the
// destination URL it registered: the relay posts each authenticated user's
// profile there and sends the browser wherever the hook answers.
package authrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

// Config holds the configuration for an authrelay client.
type Config struct {
	BaseURL string
	App     string // the tenant ID registered with the relay
	Timeout time.Duration
}

type healthResponse struct {
	Status string `json:"status"`
}

// Client talks to an authrelay deployment on behalf of one tenant.
type Client struct {
	baseURL string
	app     string
	http    *http.Client
}

// New creates a new authrelay client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		app:     cfg.App,
		http:    &http.Client{Timeout: timeout},
	}
}

// LoginURL is where to send a user to sign in through the relay.
func (c *Client) LoginURL() string {
	params := url.Values{}
	params.Set("app", c.app)
	return c.baseURL + "/login?" + params.Encode()
}

// HealthCheck returns true if the relay is up.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.status(ctx, "/health") == "ok"
}

// Ready returns true if the relay can reach its tenant registry.
func (c *Client) Ready(ctx context.Context) bool {
	return c.status(ctx, "/health/ready") == "ready"
}

func (c *Client) status(ctx context.Context, path string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return ""
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var data healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ""
	}
	return data.Status
}
