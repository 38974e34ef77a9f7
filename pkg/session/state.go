package session

import (
	"sync"
	"time"
)

// State is a step of the session lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAwaitingRequest
	StateStreaming
	StatePhraseTransition
	StateComplete
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingRequest:
		return "AWAITING_REQUEST"
	case StateStreaming:
		return "STREAMING"
	case StatePhraseTransition:
		return "PHRASE_TRANSITION"
	case StateComplete:
		return "COMPLETE"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateClosed }

var validTransitions = map[State][]State{
	StateConnecting:       {StateAwaitingRequest, StateError, StateClosed},
	StateAwaitingRequest:  {StateStreaming, StateError, StateClosed},
	StateStreaming:        {StatePhraseTransition, StateError, StateClosed},
	StatePhraseTransition: {StateStreaming, StateComplete, StateError, StateClosed},
	StateComplete:         {StateError, StateClosed},
	StateError:            {StateClosed},
}

// StateChange represents a state transition event.
type StateChange struct {
	SessionID string
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes session state changes. Listeners run on the
// session goroutine and must not block.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(StateChange)

func (f StateListenerFunc) OnStateChange(event StateChange) { f(event) }

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}

type stateMachine struct {
	mu        sync.RWMutex
	sessionID string
	current   State
	listeners []StateListener
}

func newStateMachine(sessionID string) *stateMachine {
	return &stateMachine{sessionID: sessionID, current: StateConnecting}
}

func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (m *stateMachine) Transition(to State, reason string) error {
	m.mu.Lock()
	from := m.current
	if !transitionValid(from, to) {
		m.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	m.current = to
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	event := StateChange{
		SessionID: m.sessionID,
		FromState: from,
		ToState:   to,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	for _, l := range listeners {
		l.OnStateChange(event)
	}
	return nil
}

func (m *stateMachine) AddListener(l StateListener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}
