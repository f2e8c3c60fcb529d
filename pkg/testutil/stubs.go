package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ProviderStub imitates the provider's token and profile endpoints under
// /api. Every code is accepted exactly once.
type ProviderStub struct {
	Server      *httptest.Server
	AccessToken string
	Profile     string

	mu           sync.Mutex
	usedCodes    map[string]bool
	tokenCalls   int
	profileCalls int
}

// NewProviderStub starts a provider stub issuing accessToken and serving profile.
func NewProviderStub(t *testing.T, accessToken, profile string) *ProviderStub {
	t.Helper()
	p := &ProviderStub{
		AccessToken: accessToken,
		Profile:     profile,
		usedCodes:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/oauth2/token", p.token)
	mux.HandleFunc("GET /api/users/@me", p.profile)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// APIBaseURL is the base URL to configure the provider client with.
func (p *ProviderStub) APIBaseURL() string {
	return p.Server.URL + "/api"
}

// TokenCalls returns how many token requests were received.
func (p *ProviderStub) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

// ProfileCalls returns how many profile requests were received.
func (p *ProviderStub) ProfileCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profileCalls
}

func (p *ProviderStub) token(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenCalls++

	code := r.FormValue("code")
	if code == "" || p.usedCodes[code] {
		writeStubJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": `Invalid "code" in request.`,
		})
		return
	}
	p.usedCodes[code] = true

	writeStubJSON(w, http.StatusOK, map[string]any{
		"access_token": p.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   604800,
	})
}

func (p *ProviderStub) profile(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.profileCalls++
	p.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+p.AccessToken {
		writeStubJSON(w, http.StatusUnauthorized, map[string]any{"message": "401: Unauthorized", "code": 0})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, p.Profile)
}

// TenantStub imitates a tenant destination endpoint.
type TenantStub struct {
	Server *httptest.Server
	Status int
	Body   string

	mu       sync.Mutex
	received []map[string]json.RawMessage
}

// NewTenantStub starts a tenant destination replying with status and body.
func NewTenantStub(t *testing.T, status int, body string) *TenantStub {
	t.Helper()
	ts := &TenantStub{Status: status, Body: body}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.serve))
	t.Cleanup(ts.Server.Close)
	return ts
}

// HookURL is the destination URL to register for the tenant.
func (ts *TenantStub) HookURL() string {
	return ts.Server.URL + "/hook"
}

// Received returns the decoded payloads posted so far.
func (ts *TenantStub) Received() []map[string]json.RawMessage {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]map[string]json.RawMessage(nil), ts.received...)
}

func (ts *TenantStub) serve(w http.ResponseWriter, r *http.Request) {
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	ts.received = append(ts.received, payload)
	ts.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ts.Status)
	_, _ = io.WriteString(w, ts.Body)
}

func writeStubJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
