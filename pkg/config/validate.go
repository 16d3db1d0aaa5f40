package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Server.UpstreamURL != "" {
		u, err := url.Parse(c.Server.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.upstream_url must be an absolute URL, got %q", c.Server.UpstreamURL))
		}
	}

	switch c.Storage.Type {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch strings.ToLower(c.Auth.AnonymousAccess) {
	case "", "none", "get", "all":
	default:
		errs = append(errs, fmt.Errorf("auth.anonymous_access must be \"None\", \"Get\", or \"All\", got %q", c.Auth.AnonymousAccess))
	}

	tokens := c.Auth.SingleUseTokens
	if tokens.TTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.single_use_tokens.ttl must be > 0, got %s", tokens.TTL))
	}
	if tokens.CleanupAge < tokens.TTL {
		errs = append(errs, fmt.Errorf("auth.single_use_tokens.cleanup_age (%s) must not be shorter than ttl (%s)", tokens.CleanupAge, tokens.TTL))
	}
	if tokens.SweepThreshold < 0 {
		errs = append(errs, fmt.Errorf("auth.single_use_tokens.sweep_threshold must be >= 0, got %d", tokens.SweepThreshold))
	}

	for i, k := range c.Auth.Bearer.APIKeys {
		if k.Name == "" {
			errs = append(errs, fmt.Errorf("auth.bearer.api_keys[%d].name is required", i))
		}
		if k.Key == "" && k.KeyFile == "" {
			errs = append(errs, fmt.Errorf("auth.bearer.api_keys[%d].key or key_file is required", i))
		}
	}

	for i, u := range c.Auth.Integrated.Users {
		if u.Name == "" {
			errs = append(errs, fmt.Errorf("auth.integrated.users[%d].name is required", i))
		}
		if u.PasswordHash == "" && u.PasswordHashFile == "" {
			errs = append(errs, fmt.Errorf("auth.integrated.users[%d].password_hash or password_hash_file is required", i))
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
