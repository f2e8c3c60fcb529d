package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/BlackMission/authrelay/internal/domain"
	"github.com/BlackMission/authrelay/internal/tenant"
	"github.com/BlackMission/authrelay/internal/tenant/mocks"
)

func newForwarder(t *testing.T, dest string, cfg ForwarderConfig) *HTTPForwarder {
	t.Helper()
	reg, err := tenant.NewMemory([]domain.TenantRecord{{ID: "acme", DestinationURL: dest}})
	require.NoError(t, err)
	return NewHTTPForwarder(reg, cfg)
}

func TestForward_PostsAppAndUser(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/hook", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"login_url":"https://acme.example/done"}`))
	}))
	defer srv.Close()

	f := newForwarder(t, srv.URL+"/hook", ForwarderConfig{})
	loginURL, err := f.Forward(context.Background(), "acme", domain.UserProfile(`{"id":"42","bio":"<b>&</b>"}`))

	require.NoError(t, err)
	assert.Equal(t, "https://acme.example/done", loginURL)
	assert.JSONEq(t, `"acme"`, string(got["app"]))
	assert.Equal(t, `{"id":"42","bio":"<b>&</b>"}`, string(got["user"]))
}

func TestForward_AcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"login_url":"https://acme.example/done"}`))
	}))
	defer srv.Close()

	loginURL, err := newForwarder(t, srv.URL, ForwarderConfig{}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example/done", loginURL)
}

func TestForward_MissingLoginURL(t *testing.T) {
	for name, body := range map[string]string{
		"empty object": `{}`,
		"empty value":  `{"login_url":""}`,
		"not json":     `ok`,
		"relative":     `{"login_url":"/dashboard"}`,
		"no host":      `{"login_url":"https:///dashboard"}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newForwarder(t, srv.URL, ForwarderConfig{}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))
			assert.ErrorIs(t, err, domain.ErrMissingRedirect)
			assert.ErrorIs(t, err, domain.ErrMissingRedirectFromTenant)
		})
	}
}

func TestForward_TenantRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	_, err := newForwarder(t, srv.URL, ForwarderConfig{}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))
	require.ErrorIs(t, err, domain.ErrTenantRejected)

	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusUnprocessableEntity, upstream.StatusCode)
	assert.Len(t, upstream.Detail, maxDetailBytes+len("..."))
}

func TestForward_RejectionDetailKeepsWholeRunes(t *testing.T) {
	// "é" is two bytes; 511 ASCII bytes put its first byte at the cut.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", maxDetailBytes-1) + strings.Repeat("é", 10)))
	}))
	defer srv.Close()

	_, err := newForwarder(t, srv.URL, ForwarderConfig{}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))

	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.True(t, utf8.ValidString(upstream.Detail))
	assert.Equal(t, strings.Repeat("x", maxDetailBytes-1)+"...", upstream.Detail)
}

func TestForward_RedirectIsNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example/", http.StatusFound)
	}))
	defer srv.Close()

	_, err := newForwarder(t, srv.URL, ForwarderConfig{}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))
	assert.ErrorIs(t, err, domain.ErrTenantRejected)
}

func TestForward_TLSVerifiedByDefault(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"login_url":"https://acme.example/done"}`))
	}))
	defer srv.Close()

	_, err := newForwarder(t, srv.URL, ForwarderConfig{}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))
	assert.ErrorIs(t, err, domain.ErrTransport)

	loginURL, err := newForwarder(t, srv.URL, ForwarderConfig{InsecureSkipVerify: true}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example/done", loginURL)
}

func TestForward_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := newForwarder(t, srv.URL, ForwarderConfig{Timeout: 50 * time.Millisecond}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestForward_RegistryErrorsPassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := mocks.NewMockRegistry(ctrl)

	reg.EXPECT().Resolve(gomock.Any(), "acme").Return("", domain.ErrRegistryUnavailable)
	_, err := NewHTTPForwarder(reg, ForwarderConfig{}).Forward(context.Background(), "acme", domain.UserProfile(`{}`))
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)

	_, err = newForwarder(t, "https://acme.example/hook", ForwarderConfig{}).Forward(context.Background(), "globex", domain.UserProfile(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnknownTenant)
}

func TestForward_DestinationComesFromRegistryOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"app":"acme"`)
		_, _ = w.Write([]byte(`{"login_url":"https://acme.example/done"}`))
	}))
	defer srv.Close()

	ctrl := gomock.NewController(t)
	reg := mocks.NewMockRegistry(ctrl)
	reg.EXPECT().Resolve(gomock.Any(), "acme").Return(srv.URL, nil).Times(1)

	_, err := NewHTTPForwarder(reg, ForwarderConfig{}).Forward(context.Background(), "acme", domain.UserProfile(`{"id":"42"}`))
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
}
