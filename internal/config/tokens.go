package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

type tokensFile struct {
	Tokens []model.Token `yaml:"tokens"`
}

// LoadTokens reads the tracked token set from a YAML file of the form
//
//	tokens:
//	  - address: "0x..."
//	    symbol: USDC
//	    decimals: 6
func LoadTokens(path string) ([]model.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}
	return ParseTokens(raw)
}

func ParseTokens(raw []byte) ([]model.Token, error) {
	var f tokensFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tokens file: %w", err)
	}
	if len(f.Tokens) == 0 {
		return nil, fmt.Errorf("tokens file lists no tokens")
	}

	seen := make(map[string]struct{}, len(f.Tokens))
	out := make([]model.Token, 0, len(f.Tokens))
	for i, tok := range f.Tokens {
		tok.Address = strings.ToLower(strings.TrimSpace(tok.Address))
		if err := tok.Validate(); err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		if _, dup := seen[tok.Address]; dup {
			return nil, fmt.Errorf("token %d: duplicate address %s", i, tok.Address)
		}
		seen[tok.Address] = struct{}{}
		out = append(out, tok)
	}
	return out, nil
}
