package model

// LedgerTotals sums one token's ledger from both sides. Every applied
// transfer adds its amount once to TotalSent and once to TotalReceived, and
// one transaction to each distinct participant, so a consistent ledger has
// TransferVolume == TotalSent == TotalReceived and Touches == TransactionCount.
type LedgerTotals struct {
	TokenAddress string `json:"token_address"`

	// From token_transfers.
	Transfers      int64  `json:"transfers"`
	TransferVolume string `json:"transfer_volume"`
	Touches        int64  `json:"touches"`

	// From address_token_stats.
	Addresses        int64  `json:"addresses"`
	TotalSent        string `json:"total_sent"`
	TotalReceived    string `json:"total_received"`
	TransactionCount int64  `json:"transaction_count"`
}
