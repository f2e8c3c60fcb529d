package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/BlackMission/authrelay/internal/domain"
	"github.com/BlackMission/authrelay/internal/tenant"
)

const (
	defaultForwardTimeout = 10 * time.Second
	maxForwardResponse    = 1 << 20
	maxDetailBytes        = 512
)

// ForwarderConfig holds the outbound settings for tenant destinations.
type ForwarderConfig struct {
	Timeout time.Duration
	// InsecureSkipVerify disables TLS certificate checks on destinations.
	InsecureSkipVerify bool
}

// HTTPForwarder posts profiles to the destination registered for a tenant.
type HTTPForwarder struct {
	registry   tenant.Registry
	httpClient *http.Client
}

// NewHTTPForwarder creates a forwarder resolving destinations through registry.
func NewHTTPForwarder(registry tenant.Registry, cfg ForwarderConfig) *HTTPForwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultForwardTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit operator opt-out
	}

	return &HTTPForwarder{
		registry: registry,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			// A destination redirecting the POST is treated as its response.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Forward resolves tenantID again, posts {"app", "user"} to its destination
// and returns the login_url from the reply.
func (f *HTTPForwarder) Forward(ctx context.Context, tenantID string, profile domain.UserProfile) (string, error) {
	dest, err := f.registry.Resolve(ctx, tenantID)
	if err != nil {
		return "", err
	}

	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(domain.RelayPayload{App: tenantID, User: profile}); err != nil {
		return "", fmt.Errorf("encoding relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest, &payload)
	if err != nil {
		return "", fmt.Errorf("creating relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: forwarding to tenant %q: %w", domain.ErrTransport, tenantID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxForwardResponse))
	if err != nil {
		return "", fmt.Errorf("%w: reading tenant %q response: %w", domain.ErrTransport, tenantID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.UpstreamError{Kind: domain.ErrTenantRejected, StatusCode: resp.StatusCode, Detail: truncate(body)}
	}

	var out domain.RelayResponse
	if err := json.Unmarshal(body, &out); err != nil || !absoluteURL(out.LoginURL) {
		return "", &domain.UpstreamError{Kind: domain.ErrMissingRedirect, StatusCode: resp.StatusCode, Detail: truncate(body)}
	}
	return out.LoginURL, nil
}

// absoluteURL reports whether raw can be sent as a Location to the browser.
// A relative URL would resolve against the relay's own /callback.
func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

// truncate cuts body to maxDetailBytes on a rune boundary.
func truncate(body []byte) string {
	if len(body) <= maxDetailBytes {
		return string(body)
	}
	cut := maxDetailBytes
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
