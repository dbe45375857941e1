package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/emperorhan/token-transfer-indexer/internal/chain/evm/rpc"
	"github.com/emperorhan/token-transfer-indexer/internal/circuitbreaker"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient, reason: "explicit_transient"}
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal, reason: "explicit_terminal"}
}

// codedError is satisfied by JSON-RPC errors from both the HTTP client and
// go-ethereum's websocket client.
type codedError interface {
	error
	ErrorCode() int
}

// Classify decides whether a chain transport error is worth retrying.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return Decision{Class: ClassTransient, Reason: "circuit_open"}
	}

	var statusErr *rpc.HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500 {
			return Decision{Class: ClassTransient, Reason: "http_status_transient"}
		}
		return Decision{Class: ClassTerminal, Reason: "http_status_terminal"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "net_timeout"}
	}

	var coded codedError
	if errors.As(err, &coded) {
		if d, ok := classifyJSONRPCCode(coded.ErrorCode(), coded.Error()); ok {
			return d
		}
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, transientOverrideTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}
	if containsAny(lower, terminalMessageTokens) {
		return Decision{Class: ClassTerminal, Reason: "message_terminal"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}

	return Decision{Class: ClassTerminal, Reason: "unknown_terminal_default"}
}

func classifyJSONRPCCode(code int, msg string) (Decision, bool) {
	if code == -32603 || code == -32005 {
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_transient"}, true
	}
	if code <= -32000 && code >= -32099 {
		// Range errors ("block range too large") share the server code space.
		if containsAny(strings.ToLower(msg), rangeTooLargeTokens) {
			return Decision{Class: ClassTerminal, Reason: "jsonrpc_range_too_large"}, true
		}
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_range"}, true
	}
	if code == -32600 || code == -32601 || code == -32602 || code == -32700 {
		return Decision{Class: ClassTerminal, Reason: "jsonrpc_terminal"}, true
	}
	return Decision{}, false
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

// Checked before the terminal list so "header not found" on a lagging node is
// not treated like a permanent miss.
var transientOverrideTokens = []string{
	"header not found",
	"unfinalized",
}

var rangeTooLargeTokens = []string{
	"block range",
	"range too large",
	"query returned more than",
	"too many blocks",
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"econnreset",
	"econnrefused",
	"too many requests",
	"rate limit",
	"server closed idle connection",
	"use of closed network connection",
	"websocket",
	"eof",
}

var terminalMessageTokens = []string{
	"invalid argument",
	"invalid params",
	"method not found",
	"parse error",
	"execution reverted",
	"not found",
}
