// Package postgres provides a PostgreSQL implementation of
// storage.CredentialStore using pgx/v5 connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/dbgate/pkg/storage"
)

// Store is a PostgreSQL-backed CredentialStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.CredentialStore at compile time.
var _ storage.CredentialStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// GetUser looks a user up by case-insensitive name.
func (s *Store) GetUser(ctx context.Context, name string) (*storage.User, error) {
	var u storage.User
	err := s.pool.QueryRow(ctx, `
		SELECT name, password_hash, databases, roles
		FROM users
		WHERE name_key = $1
	`, strings.ToLower(name)).Scan(&u.Name, &u.PasswordHash, &u.Databases, &u.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// SaveUser upserts a user.
func (s *Store) SaveUser(ctx context.Context, u *storage.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (name_key, name, password_hash, databases, roles)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name_key) DO UPDATE SET
			name = EXCLUDED.name,
			password_hash = EXCLUDED.password_hash,
			databases = EXCLUDED.databases,
			roles = EXCLUDED.roles,
			updated_at = now()
	`, strings.ToLower(u.Name), u.Name, u.PasswordHash, nonNil(u.Databases), nonNil(u.Roles))
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM users WHERE name_key = $1", strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetAPIKey looks a key up by its hash.
func (s *Store) GetAPIKey(ctx context.Context, keyHash string) (*storage.APIKey, error) {
	k := storage.APIKey{KeyHash: keyHash}
	err := s.pool.QueryRow(ctx, `
		SELECT name, databases, roles
		FROM api_keys
		WHERE key_hash = $1
	`, keyHash).Scan(&k.Name, &k.Databases, &k.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	return &k, nil
}

// SaveAPIKey inserts a new key.
func (s *Store) SaveAPIKey(ctx context.Context, k *storage.APIKey) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (key_hash, name, databases, roles)
		VALUES ($1, $2, $3, $4)
	`, k.KeyHash, k.Name, nonNil(k.Databases), nonNil(k.Roles))
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}

// ListDatabases returns every registered tenant database.
func (s *Store) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT name FROM databases ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning databases: %w", err)
	}
	return names, nil
}

// AddDatabase registers a tenant database.
func (s *Store) AddDatabase(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO databases (name) VALUES ($1) ON CONFLICT DO NOTHING", name)
	if err != nil {
		return fmt.Errorf("adding database: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL.
func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// isDuplicateKey checks for a PostgreSQL unique violation (SQLSTATE 23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
