// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"testing"
)

func TestStateTracker_SingleCycle(t *testing.T) {
	t.Parallel()

	var seen []InstallState
	tr := NewStateTracker(func(_, to InstallState, _ error) { seen = append(seen, to) })

	if err := tr.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tr.Begin(); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("second Begin = %v, want ErrCycleInProgress", err)
	}

	for _, s := range []InstallState{StateDownloading, StateValidating, StateSwapping, StateRelaunching, StateDone} {
		tr.Transition(s, nil)
	}
	if len(seen) != 5 || seen[4] != StateDone {
		t.Errorf("listener saw %v", seen)
	}

	if err := tr.Begin(); err != nil {
		t.Fatalf("Begin after terminal state: %v", err)
	}
	if s, _ := tr.State(); s != StateIdle {
		t.Errorf("state after Begin = %s, want idle", s)
	}
}

func TestStateTracker_FailureKeepsError(t *testing.T) {
	t.Parallel()

	tr := NewStateTracker(nil)
	if err := tr.Begin(); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	tr.Transition(StateSwapping, nil)
	tr.Transition(StateFailed, boom)
	tr.Transition(StateRolledBack, nil)

	s, err := tr.State()
	if s != StateRolledBack || !errors.Is(err, boom) {
		t.Errorf("State() = (%s, %v)", s, err)
	}
}

func TestStateTracker_End(t *testing.T) {
	t.Parallel()

	tr := NewStateTracker(nil)
	if err := tr.Begin(); err != nil {
		t.Fatal(err)
	}
	tr.End()
	if err := tr.Begin(); err != nil {
		t.Fatalf("Begin after End: %v", err)
	}
}

func TestInstallState_String(t *testing.T) {
	t.Parallel()

	if StateRolledBack.String() != "rolled-back" || InstallState(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
	if !StateDone.Terminal() || StateSwapping.Terminal() {
		t.Error("unexpected Terminal results")
	}
}
