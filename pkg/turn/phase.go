package turn

// Phase is the turn-taking position of one interview stage.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseAwaitingQ1
	PhaseAwaitingQ2
	PhaseBothAnswered
	PhaseTransitioning
	PhaseClosed
)

// String returns the string representation of a Phase
func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "NOT_STARTED"
	case PhaseAwaitingQ1:
		return "AWAITING_Q1"
	case PhaseAwaitingQ2:
		return "AWAITING_Q2"
	case PhaseBothAnswered:
		return "BOTH_ANSWERED"
	case PhaseTransitioning:
		return "TRANSITIONING"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool { return p == PhaseClosed }
