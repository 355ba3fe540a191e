package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/dualcap/pkg/log"
)

// Common lifecycle errors.
var (
	ErrNotRunning      = errors.New("not running")
	ErrAlreadyRunning  = errors.New("already running")
	ErrShutdownTimeout = errors.New("shutdown timeout")
)

// ShutdownTimeout is the default maximum time to wait for graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// exitBuffer bounds the Exits channel. A session runs a handful of units.
const exitBuffer = 64

// DefaultManager implements Manager with a state machine and a registry of
// named units.
type DefaultManager struct {
	mu           sync.RWMutex
	state        State
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	units        map[string]*UnitStatus
	order        []string
	exits        chan Exit
	logger       log.Logger
	eventEmitter EventEmitter
}

// NewManager creates a new lifecycle manager.
func NewManager(logger log.Logger, emitter EventEmitter) *DefaultManager {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &DefaultManager{
		state:        StateStopped,
		units:        make(map[string]*UnitStatus),
		exits:        make(chan Exit, exitBuffer),
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *DefaultManager) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to transition to a new state.
// Returns an error if the transition is not valid.
func (l *DefaultManager) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	if err := validTransition(oldState, newState); err != nil {
		l.mu.Unlock()
		return err
	}

	l.state = newState
	l.mu.Unlock()

	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	l.logger.Debug("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func validTransition(from, to State) error {
	switch from {
	case StateStopped:
		if to != StateStarting {
			return ErrNotRunning
		}
	case StateStarting:
		// A session may be stopped before every unit is up.
		if to != StateRunning && to != StateStopping && to != StateCrashed {
			return ErrAlreadyRunning
		}
	case StateRunning:
		if to != StateStopping && to != StateCrashed {
			return ErrAlreadyRunning
		}
	case StateStopping:
		if to != StateStopped && to != StateCrashed {
			return ErrAlreadyRunning
		}
	case StateCrashed:
		if to != StateStarting {
			return ErrNotRunning
		}
	}
	return nil
}

// CanStart returns true if a session can be started.
func (l *DefaultManager) CanStart() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateStopped || l.state == StateCrashed
}

// CanStop returns true if a session can be stopped.
func (l *DefaultManager) CanStop() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateRunning || l.state == StateStarting
}

// SetCancel stores the cancel function for graceful shutdown.
func (l *DefaultManager) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel triggers graceful shutdown.
func (l *DefaultManager) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Go runs fn as a named unit. The unit's return, including a recovered panic,
// is recorded in the liveness view and delivered on Exits.
func (l *DefaultManager) Go(ctx context.Context, name string, fn func(context.Context) error) {
	l.mu.Lock()
	if _, dup := l.units[name]; !dup {
		l.order = append(l.order, name)
	}
	l.units[name] = &UnitStatus{Name: name, Started: time.Now()}
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
			l.unitExited(name, err)
			l.wg.Done()
		}()
		err = fn(ctx)
	}()
}

func (l *DefaultManager) unitExited(name string, err error) {
	l.mu.Lock()
	if u, ok := l.units[name]; ok {
		u.Exited = true
		u.Err = err
	}
	l.mu.Unlock()

	select {
	case l.exits <- Exit{Name: name, Err: err}:
	default:
		l.logger.Warn("exit notification dropped", log.String("unit", name))
	}
}

// Exits delivers one Exit per unit as units return.
func (l *DefaultManager) Exits() <-chan Exit {
	return l.exits
}

// Units returns the liveness view in start order.
func (l *DefaultManager) Units() []UnitStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]UnitStatus, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, *l.units[name])
	}
	return out
}

// Pending returns the sorted names of units that have not returned.
func (l *DefaultManager) Pending() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var names []string
	for name, u := range l.units {
		if !u.Exited {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// WaitWithTimeout waits for all units to finish with a timeout.
// On timeout the error wraps ErrShutdownTimeout and lists the hung units.
func (l *DefaultManager) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		hung := l.Pending()
		l.logger.Warn("shutdown timeout, units still running",
			log.Duration("timeout", timeout),
			log.String("units", strings.Join(hung, ",")),
		)
		if len(hung) == 0 {
			return ErrShutdownTimeout
		}
		return fmt.Errorf("%w: %s", ErrShutdownTimeout, strings.Join(hung, ", "))
	}
}
