package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// decodeResult unmarshals a JSON-RPC result into T, naming the method on error.
func decodeResult[T any](method string, raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%s: decode result: %w", method, err)
	}
	return out, nil
}

func (c *Client) GetBlockNumber(ctx context.Context) (int64, error) {
	raw, err := c.call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	head, err := decodeResult[string]("eth_blockNumber", raw)
	if err != nil {
		return 0, err
	}
	return ParseHexInt64(head)
}

func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]*Log, error) {
	raw, err := c.call(ctx, "eth_getLogs", []any{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs %s-%s: %w", filter.FromBlock, filter.ToBlock, err)
	}
	return decodeResult[[]*Log]("eth_getLogs", raw)
}

// GetBlocksByNumber batches header lookups. The result lines up with
// blockNumbers; a nil entry means the node returned null for that block.
func (c *Client) GetBlocksByNumber(ctx context.Context, blockNumbers []int64) ([]*BlockHeader, error) {
	headers := make([]*BlockHeader, len(blockNumbers))
	if len(blockNumbers) == 0 {
		return headers, nil
	}

	batch := make([]Request, 0, len(blockNumbers))
	for _, n := range blockNumbers {
		batch = append(batch, c.newRequest("eth_getBlockByNumber", []any{FormatHexInt64(n), false}))
	}
	responses, err := c.callBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber x%d: %w", len(batch), err)
	}

	for i, resp := range responses {
		switch {
		case resp.Error != nil:
			return nil, fmt.Errorf("eth_getBlockByNumber %d: %w", blockNumbers[i], resp.Error)
		case len(resp.Result) == 0 || string(resp.Result) == "null":
			continue
		}
		h, err := decodeResult[BlockHeader]("eth_getBlockByNumber", resp.Result)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", blockNumbers[i], err)
		}
		headers[i] = &h
	}
	return headers, nil
}

// ParseHexInt64 accepts quantities with or without the 0x prefix; a bare
// "0x" is zero.
func ParseHexInt64(value string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return 0, nil
	}
	n, err := hexutil.DecodeUint64("0x" + s)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("parse hex %q: exceeds int64", value)
	}
	return int64(n), nil
}

func FormatHexInt64(value int64) string {
	return hexutil.EncodeUint64(uint64(value))
}
