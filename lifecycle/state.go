// Package lifecycle defines the application run states and the machine that
// validates transitions between them.
package lifecycle

// State is a phase of the application lifecycle.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	// StateAborted is terminal. It is entered when a start or stop sequence
	// fails and the application gives up.
	StateAborted State = "aborted"
)

// States lists every state in lifecycle order.
func States() []State {
	return []State{StateStopped, StateStarting, StateRunning, StateStopping, StateAborted}
}

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// transitions maps each state to the states it may move to.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateAborted},
	StateRunning:  {StateStopping},
	StateStopping: {StateStopped, StateAborted},
	StateAborted:  nil,
}

// CanTransition reports whether from may move directly to to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
