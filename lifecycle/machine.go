package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrUnknownState      = errors.New("unknown lifecycle state")
)

// Transition records a single state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// TransitionFunc is notified after every successful transition.
type TransitionFunc func(t Transition)

// Machine holds the current State and enforces the allowed transitions.
// It is safe for concurrent use; listeners run synchronously on the goroutine
// that performed the transition, in registration order.
type Machine struct {
	mu        sync.RWMutex
	state     State
	history   []Transition
	listeners []TransitionFunc
	now       func() time.Time
}

// NewMachine returns a machine in StateStopped.
func NewMachine() *Machine {
	return &Machine{
		state: StateStopped,
		now:   time.Now,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Is reports whether the current state is one of states.
func (m *Machine) Is(states ...State) bool {
	current := m.State()
	for _, s := range states {
		if s == current {
			return true
		}
	}
	return false
}

// OnTransition registers fn to be called after each transition.
func (m *Machine) OnTransition(fn TransitionFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// TransitionTo moves the machine to the given state.
func (m *Machine) TransitionTo(to State) error {
	if _, ok := transitions[to]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownState, to)
	}

	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	t := Transition{From: from, To: to, At: m.now()}
	m.state = to
	m.history = append(m.history, t)
	listeners := make([]TransitionFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
	return nil
}

// History returns a copy of all transitions performed so far.
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
