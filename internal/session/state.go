package session

// State is the externally observed lifecycle of a search session.
type State int

const (
	// StatePending means the initial search request is in flight.
	StatePending State = iota
	// StatePolling means the session is waiting for the next diff.
	StatePolling
	// StateComplete means the aggregator reported running=false.
	StateComplete
	// StateCancelled means the session was superseded or aborted.
	StateCancelled
	// StateFailed means a request failed; partial results are kept.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePolling:
		return "polling"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled || s == StateFailed
}
