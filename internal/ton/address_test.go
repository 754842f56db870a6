package ton

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawAddr = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

func TestIsValidAddress(t *testing.T) {
	parsed, err := ParseAddress(rawAddr)
	require.NoError(t, err)
	friendly := parsed.Friendly()

	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{"raw form", rawAddr, true},
		{"masterchain raw form", "-1:" + strings.Repeat("ab", 32), true},
		{"friendly url form", friendly, true},
		{"friendly std form", strings.NewReplacer("-", "+", "_", "/").Replace(friendly), true},
		{"empty", "", false},
		{"short hash", "0:abcd", false},
		{"non-hex hash", "0:" + strings.Repeat("zz", 32), false},
		{"bad checksum", friendly[:47] + flipLast(friendly), false},
		{"random text", "not-a-wallet-address", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidAddress(tt.addr))
		})
	}
}

func flipLast(s string) string {
	if s[len(s)-1] == 'A' {
		return "B"
	}
	return "A"
}

func TestAddressRoundTrip(t *testing.T) {
	parsed, err := ParseAddress(rawAddr)
	require.NoError(t, err)
	assert.Equal(t, rawAddr, parsed.Raw())

	again, err := ParseAddress(parsed.Friendly())
	require.NoError(t, err)
	assert.Equal(t, parsed.Hash, again.Hash)
	assert.Equal(t, parsed.Workchain, again.Workchain)
	assert.True(t, SameAccount(rawAddr, parsed.Friendly()))
	assert.False(t, SameAccount(rawAddr, "0:"+strings.Repeat("00", 32)))
}

func TestToNano(t *testing.T) {
	nano, err := ToNano(decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000_000), nano)

	nano, err = ToNano(decimal.RequireFromString("0.0000000019"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), nano)

	_, err = ToNano(decimal.RequireFromString("-1"))
	assert.Error(t, err)

	assert.True(t, FromNano(2_250_000_000).Equal(decimal.RequireFromString("2.25")))
}
