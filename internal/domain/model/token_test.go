package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken_FormatAmount(t *testing.T) {
	tok := DefaultToken()

	tests := []struct {
		name string
		raw  *big.Int
		want string
	}{
		{name: "nil", raw: nil, want: "0"},
		{name: "zero", raw: big.NewInt(0), want: "0"},
		{name: "one unit", raw: big.NewInt(1_000_000), want: "1"},
		{name: "fractional", raw: big.NewInt(1_500_000), want: "1.5"},
		{name: "smallest", raw: big.NewInt(1), want: "0.000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.FormatAmount(tt.raw))
		})
	}
}

func TestToken_FormatAmount_Uint256Max(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	tok := Token{Address: DefaultTokenAddress, Symbol: "X", Decimals: 0}
	assert.Equal(t, max.String(), tok.FormatAmount(max))
}

func TestToken_Validate(t *testing.T) {
	assert.NoError(t, DefaultToken().Validate())
	assert.Error(t, Token{Address: "0x1", Symbol: "X"}.Validate())
	assert.Error(t, Token{Address: DefaultTokenAddress}.Validate())
	assert.Error(t, Token{Address: DefaultTokenAddress, Symbol: "X", Decimals: 77}.Validate())
}
