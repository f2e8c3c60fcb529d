package tenant

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/BlackMission/authrelay/internal/domain"
)

// Options carries backend-specific settings for Open.
type Options struct {
	// Seed populates the memory:// backend.
	Seed            []domain.TenantRecord
	MongoDatabase   string
	MongoCollection string
	RedisKeyPrefix  string
}

// Open selects a backend from the scheme of uri:
//
//	mongodb://, mongodb+srv://  MongoDB collection
//	postgres://, postgresql://  PostgreSQL tenants table
//	redis://, rediss://         Redis string keys
//	sqlite://<path>             SQLite tenants table
//	memory://                   tenants seeded from configuration
func Open(ctx context.Context, uri string, opts Options) (Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: registry URI: %v", domain.ErrInvalidConfig, err)
	}

	switch u.Scheme {
	case "mongodb", "mongodb+srv":
		m, err := OpenMongo(ctx, uri, opts.MongoDatabase, opts.MongoCollection)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "postgres", "postgresql":
		p, err := OpenPostgres(ctx, uri)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "redis", "rediss":
		r, err := OpenRedis(ctx, uri, opts.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "sqlite":
		s, err := OpenSQLite(ctx, strings.TrimPrefix(uri, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		m, err := NewMemory(opts.Seed)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported registry scheme %q", domain.ErrInvalidConfig, u.Scheme)
	}
}

// Backend names the backend Open would pick for uri, for logging.
func Backend(uri string) string {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok {
		return "unknown"
	}
	switch scheme {
	case "mongodb", "mongodb+srv":
		return "mongodb"
	case "postgres", "postgresql":
		return "postgres"
	case "redis", "rediss":
		return "redis"
	case "sqlite", "memory":
		return scheme
	default:
		return "unknown"
	}
}
