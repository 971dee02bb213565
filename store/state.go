package store

// Status is a trade lifecycle state. Transitions are monotonic along the
// state graph; there are no backward edges.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusClosing Status = "closing"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
	StatusError   Status = "error"
)

// transitions is the full state graph:
//
//	pending → active → closing → closed
//	pending/active → error    (rejection, timeout, cancellation)
//	pending/active → expired  (settlement with no executor acknowledgment)
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusError, StatusExpired},
	StatusActive:  {StatusClosing, StatusError, StatusExpired},
	StatusClosing: {StatusClosed},
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from → to is an edge of the state graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
