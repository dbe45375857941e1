package model

import (
	"sort"
	"strings"
	"time"
)

// AddressTokenStats is the running aggregate for one address on one token.
type AddressTokenStats struct {
	Address          string    `db:"address"`
	TokenAddress     string    `db:"token_address"`
	TokenSymbol      string    `db:"token_symbol"`
	TotalSent        string    `db:"total_sent"`     // NUMERIC as string
	TotalReceived    string    `db:"total_received"` // NUMERIC as string
	TransactionCount int64     `db:"transaction_count"`
	LastActive       time.Time `db:"last_active"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// StatsDelta is the change one transfer applies to one address's aggregate.
// Sent and Received are decimal strings; "0" when the address did not take
// that side of the transfer.
type StatsDelta struct {
	Address      string
	TokenAddress string
	TokenSymbol  string
	Sent         string
	Received     string
	Count        int64
	LastActive   time.Time
}

// StatsDeltas returns the aggregate changes for r in ascending lower-cased
// address order. Every writer touches stats rows in this order, which keeps
// concurrent transactions from waiting on each other in a cycle.
// A self-transfer yields a single delta carrying both sides with Count 1.
func StatsDeltas(r *TransferRecord) []StatsDelta {
	from := strings.ToLower(r.FromAddress)
	to := strings.ToLower(r.ToAddress)

	if from == to {
		return []StatsDelta{{
			Address:      from,
			TokenAddress: r.TokenAddress,
			TokenSymbol:  r.TokenSymbol,
			Sent:         r.Amount,
			Received:     r.Amount,
			Count:        1,
			LastActive:   r.BlockTime,
		}}
	}

	deltas := []StatsDelta{
		{
			Address:      from,
			TokenAddress: r.TokenAddress,
			TokenSymbol:  r.TokenSymbol,
			Sent:         r.Amount,
			Received:     "0",
			Count:        1,
			LastActive:   r.BlockTime,
		},
		{
			Address:      to,
			TokenAddress: r.TokenAddress,
			TokenSymbol:  r.TokenSymbol,
			Sent:         "0",
			Received:     r.Amount,
			Count:        1,
			LastActive:   r.BlockTime,
		},
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Address < deltas[j].Address })
	return deltas
}
