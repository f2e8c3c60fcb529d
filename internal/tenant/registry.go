// Package tenant resolves tenant identifiers to the destination URL their
// users' profiles are relayed to.
package tenant

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"

	"github.com/BlackMission/authrelay/internal/domain"
)

// Schema is the table layout the SQL-backed registries read from. The relay
// never writes it; administration happens out-of-band.
//
//go:embed schema.sql
var Schema string

// Registry resolves a tenant ID to its destination URL.
//
// Resolve returns domain.ErrUnknownTenant when the tenant is missing, has no
// usable destination, or tenantID is empty. Backing-store faults wrap
// domain.ErrRegistryUnavailable.
type Registry interface {
	Resolve(ctx context.Context, tenantID string) (string, error)
}

// Store is a Registry backed by a connection that can be probed and released.
type Store interface {
	Registry
	Ping(ctx context.Context) error
	Close() error
}

func checkID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant ID", domain.ErrUnknownTenant)
	}
	return nil
}

// destination applies the record invariant: no usable URL means no tenant.
func destination(tenantID, raw string) (string, error) {
	if !usableURL(raw) {
		return "", fmt.Errorf("%w: %q has no destination", domain.ErrUnknownTenant, tenantID)
	}
	return raw, nil
}

func usableURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func notFound(tenantID string) error {
	return fmt.Errorf("%w: %q", domain.ErrUnknownTenant, tenantID)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrRegistryUnavailable, op, err)
}
