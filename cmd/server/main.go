// Command server runs the dbgate request authorizer in front of a
// multi-tenant document database.
//
// Configuration is read from a YAML file (see pkg/config) with DBGATE_*
// environment overrides. Useful variables:
//
//	DBGATE_CONFIG        - Path to the config file
//	DBGATE_PORT          - Listen port (default: 8080)
//	DBGATE_STORAGE       - Credential store: "memory" or "postgres" (default: "memory")
//	DBGATE_POSTGRES_DSN  - PostgreSQL connection string
//	DBGATE_UPSTREAM_URL  - Database server to forward authorized requests to
//	DBGATE_DEBUG         - Comma-separated debug categories (tokens, auth, storage)
//
// "server hash-password <password>" prints a bcrypt hash for use in
// auth.integrated.users[].password_hash.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/crypto/bcrypt"

	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/auth/apikey"
	"github.com/rhuss/dbgate/pkg/auth/bearer"
	"github.com/rhuss/dbgate/pkg/auth/integrated"
	"github.com/rhuss/dbgate/pkg/auth/jwt"
	"github.com/rhuss/dbgate/pkg/auth/mixedmode"
	"github.com/rhuss/dbgate/pkg/auth/onetime"
	"github.com/rhuss/dbgate/pkg/config"
	"github.com/rhuss/dbgate/pkg/debug"
	"github.com/rhuss/dbgate/pkg/storage"
	"github.com/rhuss/dbgate/pkg/storage/memory"
	"github.com/rhuss/dbgate/pkg/storage/postgres"
	transporthttp "github.com/rhuss/dbgate/pkg/transport/http"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if err := seed(ctx, store, cfg); err != nil {
		store.Close()
		return fmt.Errorf("seeding credential store: %w", err)
	}

	authz, err := newAuthorizer(cfg.Auth, store)
	if err != nil {
		store.Close()
		return err
	}

	var opts []transporthttp.AdapterOption
	if cfg.Server.UpstreamURL != "" {
		target, err := url.Parse(cfg.Server.UpstreamURL)
		if err != nil {
			authz.Close()
			store.Close()
			return fmt.Errorf("parsing upstream url: %w", err)
		}
		opts = append(opts, transporthttp.WithDownstream(transporthttp.NewUpstreamProxy(target, slog.Default())))
	}
	if cfg.Auth.RateLimit.Enabled {
		tiers := make(map[string]auth.TierConfig, len(cfg.Auth.RateLimit.Tiers))
		for name, rpm := range cfg.Auth.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		opts = append(opts, transporthttp.WithRateLimiter(auth.NewInProcessLimiter(tiers, cfg.Auth.RateLimit.DefaultRPM)))
		slog.Info("rate limiting enabled", "default_rpm", cfg.Auth.RateLimit.DefaultRPM, "tiers", len(tiers))
	}

	adapter := transporthttp.NewAdapter(authz, store, transporthttp.Config{
		Version:        version,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
	}, opts...)

	srv := transporthttp.NewServer(adapter.Handler(),
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.OnShutdown(authz, store),
	)

	slog.Info("dbgate starting",
		"version", version,
		"storage", cfg.Storage.Type,
		"anonymous_access", cfg.Auth.AnonymousAccess,
		"jwt", cfg.Auth.Bearer.JWT.JWKSURL != "",
		"upstream", cfg.Server.UpstreamURL,
	)
	return srv.ListenAndServe(ctx)
}

func newStore(ctx context.Context, cfg config.StorageConfig) (storage.CredentialStore, error) {
	switch cfg.Type {
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return s, nil
	default:
		slog.Info("storage enabled", "type", "memory")
		return memory.New(), nil
	}
}

// seed registers the databases, users and API keys named in the config.
// Users are replaced; keys that are already stored are left alone.
func seed(ctx context.Context, store storage.CredentialStore, cfg *config.Config) error {
	for _, db := range cfg.Storage.Databases {
		if err := store.AddDatabase(ctx, db); err != nil {
			return fmt.Errorf("database %q: %w", db, err)
		}
	}
	for _, u := range cfg.Auth.Integrated.Users {
		err := store.SaveUser(ctx, &storage.User{
			Name:         u.Name,
			PasswordHash: u.PasswordHash,
			Databases:    u.Databases,
			Roles:        u.Roles,
		})
		if err != nil {
			return fmt.Errorf("user %q: %w", u.Name, err)
		}
	}
	for _, k := range cfg.Auth.Bearer.APIKeys {
		err := store.SaveAPIKey(ctx, &storage.APIKey{
			Name:      k.Name,
			KeyHash:   storage.HashAPIKey(k.Key),
			Databases: k.Databases,
			Roles:     k.Roles,
		})
		if err != nil && !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("api key %q: %w", k.Name, err)
		}
	}
	return nil
}

func newAuthorizer(cfg config.AuthConfig, store storage.CredentialStore) (*mixedmode.Authorizer, error) {
	mode, err := integrated.ParseAnonymousAccess(cfg.AnonymousAccess)
	if err != nil {
		return nil, err
	}

	// JWT votes first and abstains on anything that is not a JWT, so opaque
	// API keys fall through to the key store.
	var authenticators []auth.Authenticator
	if j := cfg.Bearer.JWT; j.JWKSURL != "" {
		authenticators = append(authenticators, jwt.New(jwt.Config{
			Issuer:         j.Issuer,
			Audience:       j.Audience,
			JWKSURL:        j.JWKSURL,
			UserClaim:      j.UserClaim,
			DatabasesClaim: j.DatabasesClaim,
			RolesClaim:     j.RolesClaim,
			ScopesClaim:    j.ScopesClaim,
			CacheTTL:       j.CacheTTL,
		}))
	}
	authenticators = append(authenticators, apikey.New(store))

	tokens := onetime.New(
		onetime.WithTTL(cfg.SingleUseTokens.TTL),
		onetime.WithCleanupAge(cfg.SingleUseTokens.CleanupAge),
		onetime.WithSweepThreshold(cfg.SingleUseTokens.SweepThreshold),
	)

	return mixedmode.New(
		mixedmode.Config{
			CORSAllowOrigin:  cfg.CORSAllowOrigin,
			NeverSecretURLs:  cfg.NeverSecretURLs,
			IgnoreTenantURLs: cfg.IgnoreTenantURLs,
		},
		bearer.New(authenticators, bearer.WithRealm(cfg.Bearer.Realm)),
		integrated.New(store,
			integrated.WithRealm(cfg.Integrated.Realm),
			integrated.WithAnonymousAccess(mode),
		),
		tokens,
	), nil
}

// hashPassword prints the bcrypt hash of the password given as argument or,
// without one, read from the first line of stdin.
func hashPassword(args []string) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("usage: server hash-password <password>")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
}
