package rates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/currency"
	"github.com/mmynk/splitton/internal/metrics"
)

// DefaultTTL is how long a fetched rate counts as fresh.
const DefaultTTL = 5 * time.Minute

// Status describes the cache state for one currency.
type Status string

const (
	StatusFresh   Status = "fresh"
	StatusStale   Status = "stale"
	StatusMissing Status = "missing"
)

type entry struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// Cache serves rates from memory, refreshing from a Fetcher once an entry is
// older than the TTL. When the fetcher fails the last known quote is served.
type Cache struct {
	fetcher  Fetcher
	ttl      time.Duration
	maxTries uint
	now      func() time.Time
	metrics  *metrics.Metrics

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]entry
}

// Option configures a Cache.
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxTries bounds fetch attempts per refresh.
func WithMaxTries(n uint) Option {
	return func(c *Cache) { c.maxTries = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache wraps fetcher with a TTL cache.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		ttl:      DefaultTTL,
		maxTries: 3,
		now:      time.Now,
		entries:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seed installs fallback quotes. Seeded entries are stale immediately, so the
// first lookup still tries the fetcher.
func (c *Cache) Seed(quotes map[string]decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for code, r := range quotes {
		code = strings.ToUpper(code)
		if _, ok := c.entries[code]; !ok {
			c.entries[code] = entry{rate: r}
		}
	}
}

// Rate returns TON per one unit of code.
func (c *Cache) Rate(ctx context.Context, code string) (decimal.Decimal, error) {
	code = strings.ToUpper(code)
	if code == currency.TON {
		return decimal.NewFromInt(1), nil
	}

	cached, ok := c.lookup(code)
	if ok && c.fresh(cached) {
		c.metrics.RateLookup(code, "fresh")
		return cached.rate, nil
	}

	v, err, _ := c.group.Do(code, func() (any, error) {
		return c.refresh(ctx, code)
	})
	if err == nil {
		c.metrics.RateLookup(code, "fetched")
		return v.(decimal.Decimal), nil
	}

	if ok {
		slog.Warn("Serving stale exchange rate", "currency", code, "error", err)
		c.metrics.RateLookup(code, "stale")
		return cached.rate, nil
	}
	c.metrics.RateLookup(code, "failed")
	return decimal.Zero, fmt.Errorf("no rate for %s: %w", code, err)
}

// Status reports whether the cached quote for code is fresh, stale or missing.
func (c *Cache) Status(code string) Status {
	code = strings.ToUpper(code)
	if code == currency.TON {
		return StatusFresh
	}
	e, ok := c.lookup(code)
	switch {
	case !ok:
		return StatusMissing
	case c.fresh(e):
		return StatusFresh
	default:
		return StatusStale
	}
}

func (c *Cache) lookup(code string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[code]
	return e, ok
}

func (c *Cache) fresh(e entry) bool {
	return !e.fetchedAt.IsZero() && c.now().Sub(e.fetchedAt) < c.ttl
}

func (c *Cache) refresh(ctx context.Context, code string) (decimal.Decimal, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond

	r, err := backoff.Retry(ctx, func() (decimal.Decimal, error) {
		r, err := c.fetcher.Fetch(ctx, code)
		if err != nil {
			slog.Debug("Exchange rate fetch failed", "currency", code, "error", err)
			return decimal.Zero, err
		}
		if !r.IsPositive() {
			return decimal.Zero, backoff.Permanent(fmt.Errorf("non-positive rate %s for %s", r, code))
		}
		return r, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
	}

	c.mu.Lock()
	c.entries[code] = entry{rate: r, fetchedAt: c.now()}
	c.mu.Unlock()
	slog.Debug("Exchange rate refreshed", "currency", code, "rate", r.String())
	return r, nil
}
