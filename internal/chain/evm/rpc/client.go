package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/emperorhan/token-transfer-indexer/internal/chain/ratelimit"
	"github.com/emperorhan/token-transfer-indexer/internal/circuitbreaker"
)

const defaultHTTPTimeout = 30 * time.Second

type Client struct {
	httpClient *http.Client
	rpcURL     string
	chain      string
	requestID  atomic.Int64
	limiter    *ratelimit.Limiter
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

type Option func(*Client)

func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithCircuitBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(rpcURL, chain string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		rpcURL:     rpcURL,
		chain:      chain,
		logger:     logger.With("component", "evm_rpc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(method string, params []any) Request {
	if params == nil {
		params = []any{}
	}
	return Request{
		JSONRPC: "2.0",
		ID:      int(c.requestID.Add(1)),
		Method:  method,
		Params:  params,
	}
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := c.newRequest(method, params)

	var rpcResp Response
	err := c.guard(ctx, method, func() error {
		body, err := c.post(ctx, req)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// callBatch sends requests as one JSON-RPC batch and returns the responses in
// request order. Per-item errors are left on the responses.
func (c *Client) callBatch(ctx context.Context, requests []Request) ([]Response, error) {
	if len(requests) == 0 {
		return []Response{}, nil
	}
	method := requests[0].Method + "_batch"

	var raw []Response
	err := c.guard(ctx, method, func() error {
		body, err := c.post(ctx, requests)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return fmt.Errorf("unmarshal batch response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[int]Response, len(raw))
	for _, r := range raw {
		byID[r.ID] = r
	}
	ordered := make([]Response, len(requests))
	for i, req := range requests {
		r, ok := byID[req.ID]
		if !ok {
			return nil, fmt.Errorf("missing batch response for id %d (%s)", req.ID, req.Method)
		}
		ordered[i] = r
	}
	return ordered, nil
}

// guard applies rate limiting and the circuit breaker around one HTTP round
// trip. Only transport and server failures count against the breaker.
func (c *Client) guard(ctx context.Context, method string, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(fn, isUpstreamFailure)
	} else {
		err = fn()
	}
	ratelimit.RecordRPCCall(c.chain, method, err)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("rpc call failed", "method", method, "error", err)
	}
	return err
}

func (c *Client) post(ctx context.Context, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 256)}
	}
	return respBody, nil
}

// HTTPStatusError is a non-200 reply from the RPC endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

func isUpstreamFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
