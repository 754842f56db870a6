package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	rate  decimal.Decimal
	err   error
	delay time.Duration
}

func (s *stubFetcher) Fetch(ctx context.Context, code string) (decimal.Decimal, error) {
	s.mu.Lock()
	s.calls++
	rate, err, delay := s.rate, s.err, s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return rate, err
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStatic(t *testing.T) {
	s := Static(DefaultRates)

	r, err := s.Fetch(context.Background(), "usd")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.5")))

	r, err = s.Fetch(context.Background(), "TON")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))

	_, err = s.Fetch(context.Background(), "CHF")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestChainFallsThrough(t *testing.T) {
	failing := &stubFetcher{err: errors.New("down")}
	c := Chain{failing, Static{"EUR": decimal.RequireFromString("0.45")}}

	r, err := c.Fetch(context.Background(), "EUR")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.45")))
	assert.Equal(t, 1, failing.callCount())

	_, err = c.Fetch(context.Background(), "JPY")
	assert.Error(t, err)
}

func TestCoinGecko(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"the-open-network":{"usd":2.5}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL, srv.Client())
	r, err := cg.Fetch(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.4")), "got %s", r)
	assert.Contains(t, gotQuery, "vs_currencies=usd")

	_, err = cg.Fetch(context.Background(), "EUR")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCoinGeckoServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewCoinGecko(srv.URL, srv.Client()).Fetch(context.Background(), "USD")
	assert.Error(t, err)
}

func TestCacheServesFreshWithoutRefetch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	f := &stubFetcher{rate: decimal.RequireFromString("0.4")}
	c := NewCache(f, WithClock(clock.now))

	assert.Equal(t, StatusMissing, c.Status("USD"))

	for i := 0; i < 3; i++ {
		r, err := c.Rate(context.Background(), "USD")
		require.NoError(t, err)
		assert.True(t, r.Equal(decimal.RequireFromString("0.4")))
	}
	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, StatusFresh, c.Status("usd"))

	clock.advance(DefaultTTL + time.Second)
	assert.Equal(t, StatusStale, c.Status("USD"))

	_, err := c.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount())
}

func TestCacheFallsBackToLastKnown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	f := &stubFetcher{rate: decimal.RequireFromString("0.4")}
	c := NewCache(f, WithClock(clock.now), WithMaxTries(1))

	_, err := c.Rate(context.Background(), "USD")
	require.NoError(t, err)

	clock.advance(time.Hour)
	f.mu.Lock()
	f.err = errors.New("api down")
	f.mu.Unlock()

	r, err := c.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.4")))
	assert.Equal(t, StatusStale, c.Status("USD"))
}

func TestCacheSeededDefaults(t *testing.T) {
	f := &stubFetcher{err: errors.New("api down")}
	c := NewCache(f, WithMaxTries(1))
	c.Seed(DefaultRates)

	assert.Equal(t, StatusStale, c.Status("RUB"))
	r, err := c.Rate(context.Background(), "RUB")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.005")))

	_, err = c.Rate(context.Background(), "CHF")
	assert.Error(t, err)
	assert.Equal(t, StatusMissing, c.Status("CHF"))
}

// The defaults are TON per fiat unit. Read through rough fiat-per-USD
// prices, each one should put TON at about the same dollar value.
func TestDefaultRatesAgreeOnTONPrice(t *testing.T) {
	perUSD := map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.9"),
		"GBP": decimal.RequireFromString("0.8"),
		"RUB": decimal.NewFromInt(90),
	}

	var lo, hi decimal.Decimal
	for code, rate := range DefaultRates {
		fx, ok := perUSD[code]
		require.True(t, ok, "no reference price for %s", code)
		require.True(t, rate.IsPositive(), code)

		// fiat per TON, then USD per TON
		usd := decimal.NewFromInt(1).Div(rate).Div(fx)
		if lo.IsZero() || usd.LessThan(lo) {
			lo = usd
		}
		if usd.GreaterThan(hi) {
			hi = usd
		}
	}
	assert.True(t, hi.Div(lo).LessThanOrEqual(decimal.NewFromInt(10)),
		"implied TON prices range from %s to %s USD", lo, hi)
}

func TestCacheRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	f := fetchFunc(func(ctx context.Context, code string) (decimal.Decimal, error) {
		if calls.Add(1) < 2 {
			return decimal.Zero, errors.New("flaky")
		}
		return decimal.RequireFromString("0.45"), nil
	})
	c := NewCache(f, WithMaxTries(3))

	r, err := c.Rate(context.Background(), "EUR")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.45")))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheDeduplicatesConcurrentFetches(t *testing.T) {
	f := &stubFetcher{rate: decimal.RequireFromString("0.4"), delay: 50 * time.Millisecond}
	c := NewCache(f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Rate(context.Background(), "USD")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, f.callCount(), 2)
}

func TestCacheTONIsIdentity(t *testing.T) {
	f := &stubFetcher{err: errors.New("unused")}
	r, err := NewCache(f).Rate(context.Background(), "TON")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 0, f.callCount())
}

type fetchFunc func(ctx context.Context, code string) (decimal.Decimal, error)

func (f fetchFunc) Fetch(ctx context.Context, code string) (decimal.Decimal, error) {
	return f(ctx, code)
}
