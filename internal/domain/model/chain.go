package model

type Chain string

const (
	ChainAvalanche Chain = "avalanche"
	ChainEthereum  Chain = "ethereum"
	ChainBase      Chain = "base"
	ChainPolygon   Chain = "polygon"
	ChainArbitrum  Chain = "arbitrum"
	ChainBSC       Chain = "bsc"
)

func (c Chain) String() string {
	return string(c)
}

// IsKnown reports whether c names an EVM chain the indexer ships defaults for.
func (c Chain) IsKnown() bool {
	switch c {
	case ChainAvalanche, ChainEthereum, ChainBase, ChainPolygon, ChainArbitrum, ChainBSC:
		return true
	}
	return false
}

// EventSource records which path delivered a transfer. Bookkeeping only.
type EventSource string

const (
	SourceLive     EventSource = "live"
	SourceBackfill EventSource = "backfill"
)

func (s EventSource) String() string {
	return string(s)
}
