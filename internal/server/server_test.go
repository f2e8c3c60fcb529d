package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/BlackMission/authrelay/internal/domain"
	"github.com/BlackMission/authrelay/internal/providers/discord"
	"github.com/BlackMission/authrelay/internal/relay"
	"github.com/BlackMission/authrelay/internal/tenant"
	"github.com/BlackMission/authrelay/pkg/testutil"
)

const redirectURI = "https://relay.example.com/callback"

type ServerSuite struct {
	suite.Suite
	provider *testutil.ProviderStub
	acme     *testutil.TenantStub
	broken   *testutil.TenantStub
	logs     *bytes.Buffer
	handler  http.Handler
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	t := s.T()
	s.provider = testutil.NewProviderStub(t, "T1", `{"id":"42"}`)
	s.acme = testutil.NewTenantStub(t, http.StatusOK, `{"login_url":"https://acme.example/done"}`)
	s.broken = testutil.NewTenantStub(t, http.StatusOK, `{"status":"ok"}`)

	registry, err := tenant.NewMemory([]domain.TenantRecord{
		{ID: "acme", DestinationURL: s.acme.HookURL()},
		{ID: "broken", DestinationURL: s.broken.HookURL()},
	})
	s.Require().NoError(err)

	provider := discord.New(discord.Config{
		ClientID:     "client-123",
		ClientSecret: "secret",
		RedirectURI:  redirectURI,
		APIBaseURL:   s.provider.APIBaseURL(),
	})
	reg := prometheus.NewRegistry()
	orch := relay.NewOrchestrator(relay.Deps{
		Registry:   registry,
		Authorizer: provider,
		Exchanger:  provider,
		Profiles:   provider,
		Forwarder:  relay.NewHTTPForwarder(registry, relay.ForwarderConfig{}),
	}, relay.WithMetrics(relay.NewMetrics(reg)))

	s.logs = &bytes.Buffer{}
	srv := New(Config{Host: "127.0.0.1", Port: 0}, Deps{
		Relay:    orch,
		Registry: registry,
		Logger:   slog.New(slog.NewJSONHandler(s.logs, nil)),
		Metrics:  reg,
	})
	s.handler = srv.Handler()
}

func (s *ServerSuite) get(path string) *http.Response {
	rr := testutil.DoRequest(s.T(), s.handler, http.MethodGet, path, nil)
	return rr.Result()
}

func (s *ServerSuite) TestLoginRedirectsToProvider() {
	resp := s.get("/login?app=acme")
	s.Require().Equal(http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	s.Require().NoError(err)
	s.Equal(s.provider.APIBaseURL()+"/oauth2/authorize", loc.Scheme+"://"+loc.Host+loc.Path)
	s.Equal(url.Values{
		"client_id":     {"client-123"},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {"identify email"},
		"state":         {"acme"},
	}, loc.Query())
}

func (s *ServerSuite) TestLoginUnknownTenant() {
	resp := s.get("/login?app=globex")

	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Empty(resp.Header.Get("Location"))
	s.Zero(s.provider.TokenCalls())
}

func (s *ServerSuite) TestLoginMissingApp() {
	resp := s.get("/login")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerSuite) TestEndToEnd() {
	login := s.get("/login?app=acme")
	s.Require().Equal(http.StatusFound, login.StatusCode)
	loc, err := url.Parse(login.Header.Get("Location"))
	s.Require().NoError(err)
	state := loc.Query().Get("state")

	resp := s.get("/callback?code=abc&state=" + url.QueryEscape(state))

	s.Require().Equal(http.StatusFound, resp.StatusCode)
	s.Equal("https://acme.example/done", resp.Header.Get("Location"))

	received := s.acme.Received()
	s.Require().Len(received, 1)
	s.JSONEq(`"acme"`, string(received[0]["app"]))
	s.JSONEq(`{"id":"42"}`, string(received[0]["user"]))
	s.Equal(1, s.provider.TokenCalls())
	s.Equal(1, s.provider.ProfileCalls())
	s.NotContains(s.logs.String(), "T1")
}

func (s *ServerSuite) TestReusedCodeFailsAtTokenExchange() {
	first := s.get("/callback?code=once&state=acme")
	s.Require().Equal(http.StatusFound, first.StatusCode)

	second := s.get("/callback?code=once&state=acme")

	s.Equal(http.StatusBadRequest, second.StatusCode)
	s.Empty(second.Header.Get("Location"))
	s.Equal(2, s.provider.TokenCalls())
	s.Equal(1, s.provider.ProfileCalls())
	s.Len(s.acme.Received(), 1)
}

func (s *ServerSuite) TestTenantWithoutLoginURL() {
	resp := s.get("/callback?code=abc&state=broken")

	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Empty(resp.Header.Get("Location"))
	s.Len(s.broken.Received(), 1)
}

func (s *ServerSuite) TestCallbackForUnregisteredState() {
	resp := s.get("/callback?code=abc&state=globex")

	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Empty(s.acme.Received())
}

func (s *ServerSuite) TestProviderDenied() {
	resp := s.get("/callback?error=access_denied&state=acme")

	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Zero(s.provider.TokenCalls())
}

func (s *ServerSuite) TestHealthAndReadiness() {
	s.Equal(http.StatusOK, s.get("/health").StatusCode)
	s.Equal(http.StatusOK, s.get("/health/ready").StatusCode)
}

func (s *ServerSuite) TestMetricsEndpoint() {
	s.get("/callback?code=abc&state=acme")

	rr := testutil.DoRequest(s.T(), s.handler, http.MethodGet, "/metrics", nil)
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `authrelay_callbacks_total{outcome="success",stage="complete"} 1`)
	s.Contains(rr.Body.String(), `authrelay_http_request_duration_seconds_count{route="/callback",status="302"} 1`)
}

func (s *ServerSuite) TestRequestIDHeader() {
	rr := testutil.DoRequest(s.T(), s.handler, http.MethodGet, "/health", map[string]string{"X-Request-ID": "req-abc.1"})
	s.Equal("req-abc.1", rr.Header().Get("X-Request-ID"))

	rr = testutil.DoRequest(s.T(), s.handler, http.MethodGet, "/health", map[string]string{"X-Request-ID": "bad id\n"})
	s.NotEqual("bad id\n", rr.Header().Get("X-Request-ID"))
	s.Len(rr.Header().Get("X-Request-ID"), 36)
}

type panickingRelay struct{}

func (panickingRelay) Login(context.Context, string) (string, error) { panic("boom") }
func (panickingRelay) Callback(context.Context, relay.CallbackParams) (string, error) {
	panic("boom")
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestRecoveryReturns500(t *testing.T) {
	var logs bytes.Buffer
	srv := New(Config{}, Deps{
		Relay:    panickingRelay{},
		Registry: okPinger{},
		Logger:   slog.New(slog.NewJSONHandler(&logs, nil)),
	})

	rr := testutil.DoRequest(t, srv.Handler(), http.MethodGet, "/login?app=acme", nil)

	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	assert.Contains(t, logs.String(), "panic recovered")

	var entry map[string]any
	lines := bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n"))
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.EqualValues(t, http.StatusInternalServerError, entry["status"])
}

func TestNew_Addr(t *testing.T) {
	srv := New(Config{Host: "0.0.0.0", Port: 8080}, Deps{Relay: panickingRelay{}, Registry: okPinger{}})
	assert.Equal(t, "0.0.0.0:8080", srv.Addr())
}

func TestReady_ReportsAuditStream(t *testing.T) {
	srv := New(Config{}, Deps{Relay: panickingRelay{}, Registry: okPinger{}, Audit: okPinger{}})

	rr := testutil.DoRequest(t, srv.Handler(), http.MethodGet, "/health/ready", nil)

	testutil.AssertStatus(t, rr, http.StatusOK)
	var body map[string]string
	testutil.ParseJSON(t, rr, &body)
	assert.Equal(t, "ok", body["audit"])
}
