package thinking

import "testing"

func TestHappyPathTraversal(t *testing.T) {
	m := New("t1", nil)

	steps := []struct {
		event Event
		want  Mode
	}{
		{StartTask, Exploring},
		{InfoCollected, Structuring},
		{StructureComplete, Validating},
		{ValidationPassed, Summarizing},
		{TaskComplete, Idle},
	}
	for _, s := range steps {
		if ok := m.Fire(s.event); !ok {
			t.Fatalf("Fire(%s) rejected from state %s", s.event, m.State())
		}
		if m.State() != s.want {
			t.Fatalf("after %s: expected %s, got %s", s.event, s.want, m.State())
		}
	}
}

func TestValidationFailedReturnsToExploring(t *testing.T) {
	m := New("t1", nil)
	m.Fire(StartTask)
	m.Fire(InfoCollected)
	m.Fire(StructureComplete)
	if !m.Fire(ValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED to be accepted")
	}
	if m.State() != Exploring {
		t.Fatalf("expected EXPLORING, got %s", m.State())
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := New("t1", nil)
	if m.Fire(ValidationPassed) {
		t.Fatalf("expected VALIDATION_PASSED from IDLE to be rejected")
	}
	if m.State() != Idle {
		t.Fatalf("state should be unchanged, got %s", m.State())
	}
}

func TestResetFromAnyState(t *testing.T) {
	m := New("t1", nil)
	m.Fire(StartTask)
	m.Fire(InfoCollected)
	if !m.Fire(Reset) {
		t.Fatalf("expected RESET to be accepted from STRUCTURING")
	}
	if m.State() != Idle {
		t.Fatalf("expected IDLE after reset, got %s", m.State())
	}
}

func TestPausedStateOnlyAcceptsResumeOrReset(t *testing.T) {
	m := New("t1", nil)
	m.Fire(StartTask)
	m.Fire(Pause)
	if !m.IsPaused() {
		t.Fatalf("expected paused")
	}

	if m.Fire(InfoCollected) {
		t.Fatalf("expected INFO_COLLECTED to be rejected while paused")
	}
	if m.State() != Exploring {
		t.Fatalf("state should not have changed while paused")
	}

	if !m.Fire(Resume) {
		t.Fatalf("expected RESUME to succeed while paused")
	}
	if m.IsPaused() {
		t.Fatalf("expected unpaused after RESUME")
	}
	if !m.Fire(InfoCollected) {
		t.Fatalf("expected INFO_COLLECTED to succeed after resume")
	}
}

func TestResetWorksEvenWhilePaused(t *testing.T) {
	m := New("t1", nil)
	m.Fire(StartTask)
	m.Fire(Pause)
	if !m.Fire(Reset) {
		t.Fatalf("expected RESET to be accepted while paused")
	}
	if m.State() != Idle || m.IsPaused() {
		t.Fatalf("expected IDLE and unpaused after RESET, got state=%s paused=%v", m.State(), m.IsPaused())
	}
}

func TestOnChangeCallbackFires(t *testing.T) {
	var got []Transition
	m := New("t1", func(taskID string, tr Transition) {
		if taskID != "t1" {
			t.Fatalf("unexpected taskID %s", taskID)
		}
		got = append(got, tr)
	})
	m.Fire(StartTask)
	m.Fire(InfoCollected)

	if len(got) != 2 {
		t.Fatalf("expected 2 recorded transitions, got %d", len(got))
	}
	if got[0].From != Idle || got[0].To != Exploring {
		t.Fatalf("unexpected first transition: %+v", got[0])
	}
}

func TestHistoryAccumulates(t *testing.T) {
	m := New("t1", nil)
	m.Fire(StartTask)
	m.Fire(InfoCollected)
	m.Fire(NeedMoreInfo)

	h := m.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(h))
	}
}

func TestCanFireAndAvailableEvents(t *testing.T) {
	m := New("t1", nil)
	if !m.CanFire(StartTask) {
		t.Fatalf("expected START_TASK available from IDLE")
	}
	if m.CanFire(TaskComplete) {
		t.Fatalf("expected TASK_COMPLETE unavailable from IDLE")
	}

	events := m.AvailableEvents()
	if len(events) != 1 || events[0] != StartTask {
		t.Fatalf("expected only START_TASK available from IDLE, got %v", events)
	}
}
