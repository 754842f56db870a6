// Package rates provides fiat → TON exchange rates. A Rate is expressed as
// TON per one unit of fiat, so converting a debt is Amount × Rate.
package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/currency"
)

// ErrUnsupported is returned by fetchers that have no quote for a currency.
var ErrUnsupported = errors.New("unsupported currency")

// Fetcher retrieves a current rate from an external source.
type Fetcher interface {
	Fetch(ctx context.Context, code string) (decimal.Decimal, error)
}

// DefaultRates are the fallback quotes used when no provider has answered yet.
var DefaultRates = map[string]decimal.Decimal{
	"USD": decimal.RequireFromString("0.5"),
	"EUR": decimal.RequireFromString("0.45"),
	"GBP": decimal.RequireFromString("0.4"),
	"RUB": decimal.RequireFromString("0.005"),
}

// Static serves fixed quotes.
type Static map[string]decimal.Decimal

func (s Static) Fetch(_ context.Context, code string) (decimal.Decimal, error) {
	code = strings.ToUpper(code)
	if code == currency.TON {
		return decimal.NewFromInt(1), nil
	}
	r, ok := s[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupported, code)
	}
	return r, nil
}

// Chain asks each fetcher in order and returns the first successful quote.
type Chain []Fetcher

func (c Chain) Fetch(ctx context.Context, code string) (decimal.Decimal, error) {
	var errs []error
	for _, f := range c {
		r, err := f.Fetch(ctx, code)
		if err == nil {
			return r, nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no rate sources configured", apperrors.ErrTransient)
	}
	return decimal.Zero, errors.Join(errs...)
}
