package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/currency"
)

const (
	// DefaultCoinGeckoURL is the public simple-price endpoint base.
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

	tonCoinID = "the-open-network"
)

// CoinGecko fetches TON prices from a CoinGecko-compatible simple price API
// and inverts them into TON-per-fiat rates.
type CoinGecko struct {
	baseURL string
	client  *http.Client
}

// NewCoinGecko creates a fetcher against baseURL. An empty baseURL uses the
// public API.
func NewCoinGecko(baseURL string, client *http.Client) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CoinGecko{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *CoinGecko) Fetch(ctx context.Context, code string) (decimal.Decimal, error) {
	code = strings.ToLower(code)
	if strings.EqualFold(code, currency.TON) {
		return decimal.NewFromInt(1), nil
	}

	q := url.Values{}
	q.Set("ids", tonCoinID)
	q.Set("vs_currencies", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("failed to build rate request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: rate request failed: %v", apperrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: rate api returned %s", apperrors.ErrTransient, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return decimal.Zero, backoff.Permanent(err)
		}
		return decimal.Zero, err
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("failed to decode rate response: %w", err))
	}
	price, ok := body[tonCoinID][code]
	if !ok || !price.IsPositive() {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("%w: %s", ErrUnsupported, strings.ToUpper(code)))
	}
	return decimal.NewFromInt(1).DivRound(price, 12), nil
}
