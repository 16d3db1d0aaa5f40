package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing for credential lookups. Every authenticated request costs at
// most one short query, so a handful of idle connections covers bursts.
const (
	defaultMaxConns        = 25
	defaultMinConns        = 2
	defaultMaxConnLifetime = 30 * time.Minute
	defaultMaxConnIdleTime = 5 * time.Minute
)

// Config describes the connection to the credential database.
type Config struct {
	// DSN is a libpq connection string or postgres:// URL. Pool settings
	// embedded in the DSN (pool_max_conns, ...) are overridden by the fields
	// below when those are set.
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// MigrateOnStart creates or upgrades the users, api_keys and databases
	// tables before the store is returned.
	MigrateOnStart bool
}

// poolConfig parses the DSN and applies the sizing, filling unset fields
// with the package defaults.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("credential store DSN is empty")
	}
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConns, defaultMaxConns)
	pc.MinConns = min(orDefault(c.MinConns, defaultMinConns), pc.MaxConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, defaultMaxConnLifetime)
	pc.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, defaultMaxConnIdleTime)
	return pc, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
