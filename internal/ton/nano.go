package ton

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NanoPerTON is the number of nanotons in one TON.
const NanoPerTON = 1_000_000_000

// ToNano converts a TON amount to whole nanotons, truncating sub-nanoton dust.
func ToNano(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", amount)
	}
	nano := amount.Shift(9).Truncate(0)
	if !nano.IsInteger() || nano.GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("amount %s out of range", amount)
	}
	return nano.IntPart(), nil
}

// FromNano converts nanotons back to TON.
func FromNano(nano int64) decimal.Decimal {
	return decimal.New(nano, -9)
}
