package tenant

import (
	"context"
	"fmt"

	"github.com/BlackMission/authrelay/internal/domain"
)

// MemoryRegistry holds tenants seeded at startup. It is never mutated after
// construction, so concurrent reads need no locking.
type MemoryRegistry struct {
	byID map[string]string
}

// NewMemory creates a registry from the given records. Records without a
// destination are kept so that lookups report them as unknown.
func NewMemory(records []domain.TenantRecord) (*MemoryRegistry, error) {
	r := &MemoryRegistry{
		byID: make(map[string]string, len(records)),
	}
	for _, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: empty tenant ID", domain.ErrInvalidConfig)
		}
		if _, exists := r.byID[rec.ID]; exists {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateTenant, rec.ID)
		}
		r.byID[rec.ID] = rec.DestinationURL
	}
	return r, nil
}

// Resolve returns the destination URL for tenantID.
func (r *MemoryRegistry) Resolve(ctx context.Context, tenantID string) (string, error) {
	if err := checkID(tenantID); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", unavailable("resolve", err)
	}
	raw, ok := r.byID[tenantID]
	if !ok {
		return "", notFound(tenantID)
	}
	return destination(tenantID, raw)
}

// Len returns the number of seeded tenants.
func (r *MemoryRegistry) Len() int {
	return len(r.byID)
}

func (r *MemoryRegistry) Ping(context.Context) error { return nil }

func (r *MemoryRegistry) Close() error { return nil }
