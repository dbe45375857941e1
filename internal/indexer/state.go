package indexer

import (
	"fmt"

	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
)

// State is the indexer lifecycle position. BackfillRunning and LiveAttached
// may overlap; State reports BackfillRunning while a backfill is active.
type State int32

const (
	StateStarting State = iota
	StateReconciling
	StateLiveAttached
	StateBackfillRunning
	StateSteady
	StateDraining
	StateStopped
)

var allStates = []State{
	StateStarting, StateReconciling, StateLiveAttached, StateBackfillRunning,
	StateSteady, StateDraining, StateStopped,
}

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReconciling:
		return "reconciling"
	case StateLiveAttached:
		return "live_attached"
	case StateBackfillRunning:
		return "backfill_running"
	case StateSteady:
		return "steady"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Serving reports whether events are being indexed in this state.
func (s State) Serving() bool {
	return s == StateLiveAttached || s == StateBackfillRunning || s == StateSteady
}

func publishState(name string, current State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.IndexerState.WithLabelValues(name, s.String()).Set(v)
	}
}
