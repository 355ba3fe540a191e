package lifecycle

import "time"

// State represents the lifecycle state of a capture session.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// UnitStatus is the liveness view of one supervised unit.
type UnitStatus struct {
	Name    string
	Started time.Time
	Exited  bool
	Err     error
}

// Exit is delivered when a supervised unit returns.
type Exit struct {
	Name string
	Err  error
}

// Manager manages the session state machine and the units it runs.
type Manager interface {
	State() State
	CanStart() bool
	CanStop() bool

	// TransitionTo attempts to transition to a new state.
	// Returns an error if the transition is not valid.
	TransitionTo(newState State, reason string) error

	// WaitWithTimeout waits for all units to finish with a timeout.
	// The returned error wraps ErrShutdownTimeout and names the hung units.
	WaitWithTimeout(timeout time.Duration) error

	// Units returns the liveness view of every unit started so far.
	Units() []UnitStatus

	// Exits delivers one Exit per unit as units return.
	Exits() <-chan Exit
}
