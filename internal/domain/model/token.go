package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Token describes a tracked token contract.
type Token struct {
	Address  string `yaml:"address" db:"token_address"`
	Symbol   string `yaml:"symbol" db:"token_symbol"`
	Decimals int32  `yaml:"decimals"`
}

// USDC on the Avalanche C-chain.
const (
	DefaultTokenAddress  = "0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e"
	DefaultTokenSymbol   = "USDC"
	DefaultTokenDecimals = 6
)

func DefaultToken() Token {
	return Token{
		Address:  DefaultTokenAddress,
		Symbol:   DefaultTokenSymbol,
		Decimals: DefaultTokenDecimals,
	}
}

// FormatAmount scales a raw on-chain integer amount by the token's decimals.
func (t Token) FormatAmount(raw *big.Int) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -t.Decimals).String()
}

func (t Token) Validate() error {
	if !strings.HasPrefix(t.Address, "0x") || len(t.Address) != 42 {
		return fmt.Errorf("token %q: invalid contract address %q", t.Symbol, t.Address)
	}
	if t.Symbol == "" {
		return fmt.Errorf("token %s: symbol is required", t.Address)
	}
	if t.Decimals < 0 || t.Decimals > 36 {
		return fmt.Errorf("token %s: decimals %d out of range [0, 36]", t.Address, t.Decimals)
	}
	return nil
}
