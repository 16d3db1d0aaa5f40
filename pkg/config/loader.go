package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, DBGATE_CONFIG env, ./config.yaml, /etc/dbgate/config.yaml)
//  3. DBGATE_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. DBGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/dbgate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("DBGATE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/dbgate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps DBGATE_* environment variables to config fields.
// Malformed numeric or duration values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DBGATE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DBGATE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DBGATE_UPSTREAM_URL"); v != "" {
		cfg.Server.UpstreamURL = v
	}
	if v := os.Getenv("DBGATE_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("DBGATE_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("DBGATE_DATABASES"); v != "" {
		cfg.Storage.Databases = splitList(v)
	}
	if v := os.Getenv("DBGATE_CORS_ALLOW_ORIGIN"); v != "" {
		cfg.Auth.CORSAllowOrigin = v
	}
	if v := os.Getenv("DBGATE_ANONYMOUS_ACCESS"); v != "" {
		cfg.Auth.AnonymousAccess = v
	}
	if v := os.Getenv("DBGATE_NEVER_SECRET_URLS"); v != "" {
		cfg.Auth.NeverSecretURLs = splitList(v)
	}
	if v := os.Getenv("DBGATE_IGNORE_TENANT_URLS"); v != "" {
		cfg.Auth.IgnoreTenantURLs = splitList(v)
	}
	if v := os.Getenv("DBGATE_SINGLE_USE_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DBGATE_SINGLE_USE_TOKEN_TTL: %w", err)
		}
		cfg.Auth.SingleUseTokens.TTL = d
	}
	if v := os.Getenv("DBGATE_JWKS_URL"); v != "" {
		cfg.Auth.Bearer.JWT.JWKSURL = v
	}

	// DBGATE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("DBGATE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.Bearer.APIKeys = keys
	}

	if v := os.Getenv("DBGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// auth.bearer.api_keys[*].key_file -> auth.bearer.api_keys[*].key
	for i := range cfg.Auth.Bearer.APIKeys {
		k := &cfg.Auth.Bearer.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.bearer.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	// auth.integrated.users[*].password_hash_file -> auth.integrated.users[*].password_hash
	for i := range cfg.Auth.Integrated.Users {
		u := &cfg.Auth.Integrated.Users[i]
		if u.PasswordHashFile != "" && u.PasswordHash == "" {
			val, err := readSecretFile(u.PasswordHashFile)
			if err != nil {
				return fmt.Errorf("auth.integrated.users[%d].password_hash_file: %w", i, err)
			}
			u.PasswordHash = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
