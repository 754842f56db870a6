// Package currency holds the catalogue of supported currencies and their
// display rules.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TON is the code of the secondary unit settlements are paid in.
const TON = "TON"

// Info describes one supported currency.
type Info struct {
	Code     string
	Name     string
	Symbol   string
	Decimals int32
}

var supported = []Info{
	{Code: "USD", Name: "US Dollar", Symbol: "$", Decimals: 2},
	{Code: "EUR", Name: "Euro", Symbol: "€", Decimals: 2},
	{Code: "GBP", Name: "British Pound", Symbol: "£", Decimals: 2},
	{Code: "RUB", Name: "Russian Ruble", Symbol: "₽", Decimals: 2},
	{Code: TON, Name: "Toncoin", Symbol: "TON", Decimals: 9},
}

// Supported returns the catalogue.
func Supported() []Info {
	out := make([]Info, len(supported))
	copy(out, supported)
	return out
}

// Lookup returns the Info for code (case-insensitive).
func Lookup(code string) (Info, bool) {
	code = strings.ToUpper(code)
	for _, info := range supported {
		if info.Code == code {
			return info, true
		}
	}
	return Info{}, false
}

// Decimals returns the display precision for code, 2 when unknown.
func Decimals(code string) int32 {
	if info, ok := Lookup(code); ok {
		return info.Decimals
	}
	return 2
}

// Symbol returns the currency symbol, or the code itself when unknown.
func Symbol(code string) string {
	if info, ok := Lookup(code); ok {
		return info.Symbol
	}
	return code
}

// Format renders amount with the currency's precision and symbol placement,
// e.g. "$14.17", "14.17€", "0.500000000 TON".
func Format(amount decimal.Decimal, code string) string {
	info, ok := Lookup(code)
	if !ok {
		return amount.StringFixed(2) + " " + code
	}
	formatted := amount.StringFixed(info.Decimals)
	switch info.Code {
	case "USD", "GBP":
		if amount.IsNegative() {
			return "-" + info.Symbol + amount.Abs().StringFixed(info.Decimals)
		}
		return info.Symbol + formatted
	case "EUR":
		return formatted + info.Symbol
	default:
		return formatted + " " + info.Symbol
	}
}
