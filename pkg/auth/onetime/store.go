// Package onetime issues and redeems single-use, tenant-bound tokens for
// flows that cannot carry regular credentials, such as streaming downloads
// opened by a browser.
//
// Tokens live only in process memory. Redemption always consumes the token,
// whether or not it succeeds.
package onetime

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/debug"
	"github.com/rhuss/dbgate/pkg/observability"
)

// Defaults for token lifetime and cleanup.
const (
	DefaultTTL            = 150 * time.Second
	DefaultCleanupAge     = 5 * time.Minute
	DefaultSweepThreshold = 25
)

// Redemption failures. The token is consumed in every case.
var (
	ErrUnknownToken = errors.New("unknown single use token")
	ErrWrongTenant  = errors.New("single use token issued for another database")
	ErrExpired      = errors.New("single use token expired")
)

type entry struct {
	tenantID  string
	issuedAt  time.Time
	principal *auth.Snapshot
}

// Store holds outstanding single-use tokens. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tokens map[string]entry

	ttl            time.Duration
	cleanupAge     time.Duration
	sweepThreshold int
	now            func() time.Time
	newToken       func() string
	logger         *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long a token stays redeemable after issuance.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithCleanupAge sets the age past which the sweep removes unredeemed tokens.
func WithCleanupAge(d time.Duration) Option {
	return func(s *Store) { s.cleanupAge = d }
}

// WithSweepThreshold sets the store size above which Issue runs a sweep.
func WithSweepThreshold(n int) Option {
	return func(s *Store) { s.sweepThreshold = n }
}

// WithClock sets the time source used to stamp issued tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTokenGenerator replaces the random token source.
func WithTokenGenerator(gen func() string) Option {
	return func(s *Store) { s.newToken = gen }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty token store.
func New(opts ...Option) *Store {
	s := &Store{
		tokens:         make(map[string]entry),
		ttl:            DefaultTTL,
		cleanupAge:     DefaultCleanupAge,
		sweepThreshold: DefaultSweepThreshold,
		now:            time.Now,
		newToken:       rand.Text,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue records a token bound to tenantID and returns it. Only the name of
// p is kept. When the store grows past the sweep threshold, stale tokens are
// removed before returning.
func (s *Store) Issue(tenantID string, p auth.Principal) string {
	e := entry{
		tenantID:  tenantID,
		issuedAt:  s.now(),
		principal: auth.SnapshotOf(p),
	}

	s.mu.Lock()
	var token string
	for {
		token = s.newToken()
		if _, exists := s.tokens[token]; !exists {
			break
		}
		s.logger.Warn("single use token collision, regenerating", "tenant", tenantID)
	}
	s.tokens[token] = e

	if len(s.tokens) > s.sweepThreshold {
		s.sweepLocked(e.issuedAt)
	}
	size := len(s.tokens)
	s.mu.Unlock()

	observability.SingleUseTokensIssuedTotal.Inc()
	observability.SingleUseTokensStored.Set(float64(size))
	debug.Log("tokens", "single use token issued", "tenant", tenantID, "user", e.principal.Name(), "outstanding", size)
	debug.Trace("tokens", "single use token value", "token", debug.Truncate(token, 6))

	return token
}

// Redeem consumes token and validates it against tenantID at time now.
// The returned snapshot is nil when the token was issued without a principal.
func (s *Store) Redeem(token, tenantID string, now time.Time) (*auth.Snapshot, error) {
	s.mu.Lock()
	e, ok := s.tokens[token]
	if ok {
		delete(s.tokens, token)
	}
	size := len(s.tokens)
	s.mu.Unlock()

	observability.SingleUseTokensStored.Set(float64(size))

	var err error
	switch {
	case !ok:
		err = ErrUnknownToken
	case !strings.EqualFold(e.tenantID, tenantID):
		err = ErrWrongTenant
	case now.Sub(e.issuedAt) > s.ttl:
		err = ErrExpired
	}

	observability.SingleUseRedemptionsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		debug.Log("tokens", "single use token rejected", "tenant", tenantID, "token", debug.Truncate(token, 6), "error", err)
		return nil, err
	}

	debug.Log("tokens", "single use token redeemed", "tenant", tenantID, "user", e.principal.Name())
	return e.principal, nil
}

// Sweep removes tokens issued more than the cleanup age before now and
// returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	removed := s.sweepLocked(now)
	size := len(s.tokens)
	s.mu.Unlock()

	observability.SingleUseTokensStored.Set(float64(size))
	return removed
}

// Len returns the number of outstanding tokens.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// sweepLocked must be called with s.mu held.
func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for token, e := range s.tokens {
		if now.Sub(e.issuedAt) > s.cleanupAge {
			delete(s.tokens, token)
			removed++
		}
	}
	if removed > 0 {
		observability.SingleUseTokensEvictedTotal.Add(float64(removed))
		s.logger.Debug("evicted abandoned single use tokens", "removed", removed, "remaining", len(s.tokens))
	}
	return removed
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrWrongTenant):
		return "wrong_tenant"
	case errors.Is(err, ErrExpired):
		return "expired"
	default:
		return "unknown"
	}
}
