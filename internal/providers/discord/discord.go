// Package discord implements the provider side of the relay against Discord's
// OAuth2 endpoints: the authorization redirect, the code-for-token exchange
// and the user profile fetch.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/BlackMission/authrelay/internal/domain"
)

const (
	DefaultAPIBaseURL = "https://discord.com/api"
	defaultTimeout    = 10 * time.Second
	maxResponseBytes  = 1 << 20
)

// DefaultScopes is the scope set requested when none is configured.
var DefaultScopes = []string{"identify", "email"}

// Config holds Discord OAuth2 settings.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURI  string        // must match the URI registered with Discord
	APIBaseURL   string        // defaults to DefaultAPIBaseURL
	Timeout      time.Duration // per outbound call, defaults to 10s
}

// Provider implements OAuth2 for Discord.
type Provider struct {
	oauth      oauth2.Config
	httpClient *http.Client
	userURL    string
}

// New creates a Discord provider.
func New(cfg Config) *Provider {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = DefaultAPIBaseURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth2/authorize",
				TokenURL:  base + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      scopes,
		},
		httpClient: &http.Client{Timeout: timeout},
		userURL:    base + "/users/@me",
	}
}

// AuthURL builds the Discord authorization URL. The state is passed verbatim;
// the call never contacts Discord.
func (p *Provider) AuthURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// errorBody covers both OAuth2 error payloads and Discord API errors.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (e errorBody) describe() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	default:
		return "Unknown error"
	}
}

func describeBody(body []byte) string {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	return eb.describe()
}

type tokenResponse struct {
	errorBody
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExchangeCode trades an authorization code for an access token. It makes
// exactly one request; codes are single-use, so failures are never retried.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code", domain.ErrMissingParameter)
	}

	data := url.Values{
		"client_id":     {p.oauth.ClientID},
		"client_secret": {p.oauth.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.oauth.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.oauth.Endpoint.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := p.do(req)
	if err != nil {
		return nil, err
	}

	if !successful(status) {
		return nil, &domain.UpstreamError{Kind: domain.ErrTokenEndpoint, StatusCode: status, Detail: describeBody(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrTokenEndpoint, StatusCode: status, Detail: "invalid JSON: " + err.Error()}
	}
	if tr.Error != "" {
		return nil, &domain.UpstreamError{Kind: domain.ErrTokenEndpoint, StatusCode: status, Detail: tr.describe()}
	}
	if tr.AccessToken == "" {
		return nil, domain.ErrMissingToken
	}

	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}

// FetchProfile retrieves the authenticated user's document. The body is
// returned as-is; it is only checked to be JSON.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (domain.UserProfile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, domain.ErrMissingToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating user request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	body, status, err := p.do(req)
	if err != nil {
		return nil, err
	}

	if !successful(status) {
		return nil, &domain.UpstreamError{Kind: domain.ErrProfileEndpoint, StatusCode: status, Detail: describeBody(body)}
	}
	if !json.Valid(body) {
		return nil, &domain.UpstreamError{Kind: domain.ErrProfileEndpoint, StatusCode: status, Detail: "invalid JSON"}
	}

	return domain.UserProfile(body), nil
}

func (p *Provider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s %s: %w", domain.ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading %s response: %w", domain.ErrTransport, req.URL.Path, err)
	}
	return body, resp.StatusCode, nil
}

func successful(status int) bool {
	return status >= 200 && status < 300
}
