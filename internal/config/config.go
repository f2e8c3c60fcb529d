package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/BlackMission/authrelay/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig
	Discord  DiscordConfig
	Registry RegistryConfig
	Forward  ForwardConfig
	Audit    AuditConfig
	Tracing  TracingConfig

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// ExposeErrorDetails puts upstream diagnostics in error responses.
	ExposeErrorDetails bool `env:"EXPOSE_ERROR_DETAILS" envDefault:"false"`

	// Tenants seeds the in-memory registry, from TENANT_<ID>_URL variables.
	Tenants []domain.TenantRecord
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DiscordConfig holds the OAuth2 application registered with Discord.
type DiscordConfig struct {
	ClientID     string        `env:"DISCORD_CLIENT_ID"`
	ClientSecret string        `env:"DISCORD_CLIENT_SECRET"`
	RedirectURI  string        `env:"DISCORD_REDIRECT_URI"`
	Scopes       []string      `env:"DISCORD_SCOPES" envDefault:"identify,email" envSeparator:","`
	APIBaseURL   string        `env:"DISCORD_API_BASE_URL" envDefault:"https://discord.com/api"`
	Timeout      time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

// RegistryConfig selects and tunes the tenant registry backend.
type RegistryConfig struct {
	URI string `env:"REGISTRY_URI"`
	// MongoURI is the older name for URI, read when URI is unset.
	MongoURI        string `env:"MONGO_URI"`
	MongoDatabase   string `env:"MONGO_DATABASE" envDefault:"RedirectManager"`
	MongoCollection string `env:"MONGO_COLLECTION" envDefault:"discord_redirect_urls"`
	RedisKeyPrefix  string `env:"REDIS_KEY_PREFIX" envDefault:"tenant:"`
}

// ForwardConfig holds the settings for calls to tenant destinations.
type ForwardConfig struct {
	Timeout            time.Duration `env:"FORWARD_TIMEOUT" envDefault:"10s"`
	InsecureSkipVerify bool          `env:"FORWARD_INSECURE_SKIP_VERIFY" envDefault:"false"`
}

// AuditConfig enables the Kafka audit stream when brokers are set.
type AuditConfig struct {
	KafkaBrokers string `env:"AUDIT_KAFKA_BROKERS"`
	KafkaTopic   string `env:"AUDIT_KAFKA_TOPIC" envDefault:"authrelay.audit"`
	// DeliveryTimeout bounds how long an event may wait for the brokers.
	DeliveryTimeout time.Duration `env:"AUDIT_KAFKA_DELIVERY_TIMEOUT" envDefault:"30s"`
	// MaxBuffered caps undelivered events; more are dropped.
	MaxBuffered int `env:"AUDIT_KAFKA_MAX_BUFFERED" envDefault:"10000"`
}

// TracingConfig enables OTLP trace export when an endpoint is set.
type TracingConfig struct {
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"authrelay"`
}

// LoadFromEnv reads configuration from the environment, after loading a
// .env file from the working directory if one exists.
func LoadFromEnv() (*Config, error) {
	return Load(".env")
}

// Load reads configuration from the environment after loading the given
// dotenv files. Missing files are skipped; variables already set win.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrInvalidConfig, f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	if cfg.Registry.URI == "" {
		cfg.Registry.URI = cfg.Registry.MongoURI
	}
	cfg.Discord.Scopes = trimAll(cfg.Discord.Scopes)
	cfg.Tenants = discoverTenants()

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RegistryIsMemory reports whether tenants come from the environment.
func (c *Config) RegistryIsMemory() bool {
	return strings.HasPrefix(c.Registry.URI, "memory:")
}

// discoverTenants scans environment variables for TENANT_<KEY>_URL and
// returns one record per ID, sorted. The ID is KEY lowercased with '_' as
// '-', unless TENANT_<KEY>_ID gives it verbatim.
func discoverTenants() []domain.TenantRecord {
	var tenants []domain.TenantRecord
	seen := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(key, "TENANT_") || !strings.HasSuffix(key, "_URL") {
			continue
		}

		// TENANT_ACME_CORP_URL → acme-corp
		idPart := strings.TrimSuffix(strings.TrimPrefix(key, "TENANT_"), "_URL")
		if idPart == "" || key == "TENANT_URL" {
			continue
		}
		id := strings.ToLower(strings.ReplaceAll(idPart, "_", "-"))
		if explicit := os.Getenv("TENANT_" + idPart + "_ID"); explicit != "" {
			id = explicit
		}

		if seen[id] || value == "" {
			continue
		}
		seen[id] = true
		tenants = append(tenants, domain.TenantRecord{ID: id, DestinationURL: value})
	}

	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].ID < tenants[j].ID
	})
	return tenants
}

func validate(cfg *Config) error {
	if cfg.Discord.ClientID == "" {
		return fmt.Errorf("%w: DISCORD_CLIENT_ID is required", domain.ErrMissingConfig)
	}
	if cfg.Discord.ClientSecret == "" {
		return fmt.Errorf("%w: DISCORD_CLIENT_SECRET is required", domain.ErrMissingConfig)
	}
	if cfg.Discord.RedirectURI == "" {
		return fmt.Errorf("%w: DISCORD_REDIRECT_URI is required", domain.ErrMissingConfig)
	}
	if cfg.Registry.URI == "" {
		return fmt.Errorf("%w: REGISTRY_URI (or MONGO_URI) is required", domain.ErrMissingConfig)
	}

	if u, err := url.Parse(cfg.Discord.RedirectURI); err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: DISCORD_REDIRECT_URI must be an absolute URL", domain.ErrInvalidConfig)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: PORT must be between 1 and 65535, got %d", domain.ErrInvalidConfig, cfg.Server.Port)
	}
	if cfg.Discord.Timeout <= 0 || cfg.Forward.Timeout <= 0 {
		return fmt.Errorf("%w: PROVIDER_TIMEOUT and FORWARD_TIMEOUT must be positive", domain.ErrInvalidConfig)
	}
	if cfg.Audit.DeliveryTimeout <= 0 || cfg.Audit.MaxBuffered <= 0 {
		return fmt.Errorf("%w: AUDIT_KAFKA_DELIVERY_TIMEOUT and AUDIT_KAFKA_MAX_BUFFERED must be positive", domain.ErrInvalidConfig)
	}
	if cfg.RegistryIsMemory() && len(cfg.Tenants) == 0 {
		return fmt.Errorf("%w: the memory registry needs at least one TENANT_<ID>_URL", domain.ErrMissingConfig)
	}
	return nil
}

func trimAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
