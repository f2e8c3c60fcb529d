package domain

import (
	"errors"
	"fmt"
)

var (
	// Tenant errors
	ErrUnknownTenant       = errors.New("unknown tenant")
	ErrRegistryUnavailable = errors.New("tenant registry unavailable")
	ErrDuplicateTenant     = errors.New("duplicate tenant ID")

	// Provider errors
	ErrTokenEndpoint       = errors.New("token endpoint error")
	ErrMissingToken        = errors.New("access token missing from token response")
	ErrProfileEndpoint     = errors.New("profile endpoint error")
	ErrAuthorizationDenied = errors.New("authorization denied by provider")

	// Tenant destination errors
	ErrTenantRejected  = errors.New("tenant destination rejected profile")
	ErrMissingRedirect = errors.New("no login URL received from tenant")

	// ErrMissingRedirectFromTenant is the same condition as ErrMissingRedirect.
	ErrMissingRedirectFromTenant = ErrMissingRedirect

	// Shared
	ErrTransport        = errors.New("transport failure")
	ErrMissingParameter = errors.New("missing required parameter")

	// Config errors
	ErrMissingConfig = errors.New("missing required configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UpstreamError describes a failed call to the provider or a tenant destination.
// Detail is diagnostic text from the remote side and must not be shown to
// untrusted clients unless the deployment opts in.
type UpstreamError struct {
	Kind       error
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}
