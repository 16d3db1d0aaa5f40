// Package config provides unified configuration for the dbgate server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DBGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the dbgate server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 60s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s

	// UpstreamURL is the database server authorized requests are forwarded
	// to. When empty, only the built-in endpoints are served.
	UpstreamURL string `yaml:"upstream_url"`
}

// AuthConfig holds the request authorizer settings.
type AuthConfig struct {
	// CORSAllowOrigin enables unauthenticated CORS preflight when set.
	CORSAllowOrigin string `yaml:"cors_allow_origin"`

	// NeverSecretURLs are tenant-relative paths that never require auth.
	NeverSecretURLs []string `yaml:"never_secret_urls"`

	// IgnoreTenantURLs are authenticated without the database access check.
	IgnoreTenantURLs []string `yaml:"ignore_tenant_urls"`

	// AnonymousAccess is "None", "Get" or "All". Default: "None".
	AnonymousAccess string `yaml:"anonymous_access"`

	SingleUseTokens SingleUseTokenConfig `yaml:"single_use_tokens"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
	Bearer          BearerConfig         `yaml:"bearer"`
	Integrated      IntegratedConfig     `yaml:"integrated"`
}

// SingleUseTokenConfig tunes the one-time token store.
type SingleUseTokenConfig struct {
	TTL            time.Duration `yaml:"ttl"`             // default: 2m30s
	CleanupAge     time.Duration `yaml:"cleanup_age"`     // default: 5m
	SweepThreshold int           `yaml:"sweep_threshold"` // default: 25
}

// RateLimitConfig configures per-principal request limits. Tiers are keyed
// by authentication type ("Bearer", "api-key", "Basic", "one-time-token").
type RateLimitConfig struct {
	Enabled    bool           `yaml:"enabled"`
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"` // auth type -> requests per minute
}

// BearerConfig configures the bearer-token backend.
type BearerConfig struct {
	Realm   string         `yaml:"realm"` // default: "dbgate"
	JWT     JWTConfig      `yaml:"jwt"`
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// JWTConfig configures JWT validation. JWT auth is enabled when JWKSURL is set.
type JWTConfig struct {
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	JWKSURL        string        `yaml:"jwks_url"`
	UserClaim      string        `yaml:"user_claim"`
	DatabasesClaim string        `yaml:"databases_claim"`
	RolesClaim     string        `yaml:"roles_claim"`
	ScopesClaim    string        `yaml:"scopes_claim"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// APIKeyConfig describes a single API key seeded into the credential store.
type APIKeyConfig struct {
	Name      string   `yaml:"name" json:"name"`
	Key       string   `yaml:"key" json:"key"`
	KeyFile   string   `yaml:"key_file" json:"key_file"` // _file variant for key
	Databases []string `yaml:"databases" json:"databases"`
	Roles     []string `yaml:"roles" json:"roles"`
}

// IntegratedConfig configures the HTTP Basic backend.
type IntegratedConfig struct {
	Realm string       `yaml:"realm"` // default: "dbgate"
	Users []UserConfig `yaml:"users"`
}

// UserConfig describes a user seeded into the credential store.
type UserConfig struct {
	Name             string   `yaml:"name"`
	PasswordHash     string   `yaml:"password_hash"`      // bcrypt
	PasswordHashFile string   `yaml:"password_hash_file"` // _file variant for password_hash
	Databases        []string `yaml:"databases"`
	Roles            []string `yaml:"roles"`
}

// StorageConfig holds credential store settings.
type StorageConfig struct {
	Type      string         `yaml:"type"`      // "memory" or "postgres", default: "memory"
	Databases []string       `yaml:"databases"` // tenant databases registered at startup
	Postgres  PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // ERROR, WARN, INFO, DEBUG, TRACE; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			NeverSecretURLs:  []string{"/build/version"},
			IgnoreTenantURLs: []string{"/databases", "/debug/user-info"},
			AnonymousAccess:  "None",
			SingleUseTokens: SingleUseTokenConfig{
				TTL:            150 * time.Second,
				CleanupAge:     5 * time.Minute,
				SweepThreshold: 25,
			},
			Bearer:     BearerConfig{Realm: "dbgate"},
			Integrated: IntegratedConfig{Realm: "dbgate"},
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
