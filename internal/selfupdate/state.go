// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"fmt"
	"sync"
)

// Install states. Done, Failed and RolledBack are terminal.
const (
	StateIdle InstallState = iota
	StateDownloading
	StateValidating
	StateSwapping
	StateRelaunching
	StateDone
	StateFailed
	StateRolledBack
)

type (
	// InstallState is the progress of one update cycle. It lives only in
	// memory; across restarts the filesystem is the only record.
	InstallState int

	// StateListener observes state transitions. It is called synchronously
	// from the goroutine driving the cycle.
	StateListener func(from, to InstallState, err error)

	// StateTracker guards a single update cycle per process and records its
	// state transitions.
	StateTracker struct {
		mu       sync.Mutex
		state    InstallState
		active   bool
		lastErr  error
		listener StateListener
	}
)

// String returns the state name.
func (s InstallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDownloading:
		return "downloading"
	case StateValidating:
		return "validating"
	case StateSwapping:
		return "swapping"
	case StateRelaunching:
		return "relaunching"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateRolledBack:
		return "rolled-back"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition follows s within a cycle.
func (s InstallState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateRolledBack
}

// NewStateTracker creates an idle tracker. listener may be nil.
func NewStateTracker(listener StateListener) *StateTracker {
	return &StateTracker{listener: listener}
}

// Begin starts a cycle. It fails with ErrCycleInProgress while another cycle
// has not reached a terminal state.
func (t *StateTracker) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return ErrCycleInProgress
	}
	t.active = true
	t.state = StateIdle
	t.lastErr = nil
	return nil
}

// Transition moves the cycle to next. A terminal state ends the cycle.
func (t *StateTracker) Transition(next InstallState, err error) {
	t.mu.Lock()
	from := t.state
	t.state = next
	if err != nil {
		t.lastErr = err
	}
	if next.Terminal() {
		t.active = false
	}
	listener := t.listener
	t.mu.Unlock()

	if listener != nil {
		listener(from, next, err)
	}
}

// End finishes the cycle without changing its state, for cycles that stop
// before reaching a terminal state (e.g. a check with no update).
func (t *StateTracker) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

// State returns the current state and the last recorded error.
func (t *StateTracker) State() (InstallState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.lastErr
}
