package turn

import (
	"sync"
	"time"
)

// PhaseChange represents a phase transition event.
type PhaseChange struct {
	From      Phase
	To        Phase
	Timestamp time.Time
	Reason    string
}

// PhaseListener observes phase changes.
type PhaseListener interface {
	OnPhaseChange(event PhaseChange)
}

// PhaseListenerFunc adapts a function to PhaseListener.
type PhaseListenerFunc func(PhaseChange)

func (f PhaseListenerFunc) OnPhaseChange(event PhaseChange) { f(event) }

var validTransitions = map[Phase][]Phase{
	PhaseNotStarted:    {PhaseAwaitingQ1, PhaseClosed},
	PhaseAwaitingQ1:    {PhaseAwaitingQ2, PhaseTransitioning, PhaseClosed},
	PhaseAwaitingQ2:    {PhaseBothAnswered, PhaseTransitioning, PhaseClosed},
	PhaseBothAnswered:  {PhaseTransitioning, PhaseClosed},
	PhaseTransitioning: {PhaseClosed},
}

// Tracker is the phase state machine of one stage agent.
type Tracker struct {
	mu        sync.RWMutex
	current   Phase
	listeners []PhaseListener
	now       func() time.Time
}

// NewTracker creates a tracker in PhaseNotStarted.
func NewTracker(listeners ...PhaseListener) *Tracker {
	return &Tracker{current: PhaseNotStarted, listeners: listeners, now: time.Now}
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Transition moves to a new phase with validation.
func (t *Tracker) Transition(to Phase, reason string) error {
	t.mu.Lock()
	from := t.current
	if !transitionValid(from, to) {
		t.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	t.current = to
	event := PhaseChange{From: from, To: to, Timestamp: t.now(), Reason: reason}
	listeners := make([]PhaseListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	// Listeners run without the lock so they may read Phase().
	for _, listener := range listeners {
		listener.OnPhaseChange(event)
	}
	return nil
}

// AddListener registers a listener for phase change events.
func (t *Tracker) AddListener(listener PhaseListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, listener)
}

func transitionValid(from, to Phase) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError represents an invalid phase transition attempt
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return "invalid phase transition from " + e.From.String() + " to " + e.To.String()
}
