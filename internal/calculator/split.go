package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
)

// Epsilon is the tolerance below which a balance or debt is treated as settled.
var Epsilon = decimal.New(1, -2)

// DisplayPlaces is the number of fractional digits balances are rounded to.
const DisplayPlaces = 2

// Share computes the equal per-beneficiary share of amount.
// The result is unrounded; callers round once at the end.
func Share(amount decimal.Decimal, beneficiaries int) (decimal.Decimal, error) {
	if beneficiaries <= 0 {
		return decimal.Zero, fmt.Errorf("%w: must have at least one beneficiary", apperrors.ErrIntegrity)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive, got %s", apperrors.ErrIntegrity, amount)
	}
	return amount.Div(decimal.NewFromInt(int64(beneficiaries))), nil
}

// Split returns each beneficiary's share of amount, keyed by participant ID.
func Split(amount decimal.Decimal, sharedBy []string) (map[string]decimal.Decimal, error) {
	share, err := Share(amount, len(sharedBy))
	if err != nil {
		return nil, err
	}
	splits := make(map[string]decimal.Decimal, len(sharedBy))
	for _, id := range sharedBy {
		splits[id] = splits[id].Add(share)
	}
	return splits, nil
}
