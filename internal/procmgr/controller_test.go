package procmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return NewSupervisor(zap.NewNop(), 0)
}

func waitForState(t *testing.T, s *Supervisor, id string, want StateKind, timeout time.Duration) State {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, st, err := s.GetStatus(id)
		require.NoError(t, err)
		if st.Kind == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to reach state %s", id, want)
	return State{}
}

func TestCreateRejectsInvalidSpec(t *testing.T) {
	s := newTestSupervisor(t)
	err := s.Create(ProcessSpec{ID: "", Command: "sh"})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "job1", Command: "sh"}))
	err := s.Create(ProcessSpec{ID: "job1", Command: "sh"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestStartUnknownID(t *testing.T) {
	s := newTestSupervisor(t)
	_, err := s.Start("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycleSuccessfulExit(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "ok", Command: "sh", Args: []string{"-c", "echo hi; exit 0"}}))

	pid, err := s.Start("ok")
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	st := waitForState(t, s, "ok", Stopped, 2*time.Second)
	assert.Equal(t, 0, st.ExitCode)

	lines, err := s.GetOutput("ok", StreamStdout, 0)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "hi", lines[0].Text)
}

func TestLifecycleNonZeroExitIsFailed(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "bad", Command: "sh", Args: []string{"-c", "exit 7"}}))

	_, err := s.Start("bad")
	require.NoError(t, err)

	st := waitForState(t, s, "bad", Failed, 2*time.Second)
	assert.Equal(t, 7, st.ExitCode)
}

func TestStartTwiceWhileRunningRejected(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "sleeper", Command: "sh", Args: []string{"-c", "sleep 1"}}))

	_, err := s.Start("sleeper")
	require.NoError(t, err)

	_, err = s.Start("sleeper")
	assert.ErrorIs(t, err, ErrWrongState)

	waitForState(t, s, "sleeper", Stopped, 3*time.Second)
}

func TestStopGracefulExit(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "trap", Command: "sh", Args: []string{"-c", "trap 'exit 0' TERM; while true; do sleep 0.05; done"}}))

	_, err := s.Start("trap")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	err = s.Stop("trap", 1000)
	require.NoError(t, err)

	_, st, err := s.GetStatus("trap")
	require.NoError(t, err)
	assert.Equal(t, Stopped, st.Kind)
}

func TestStopForcedKillAfterGrace(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "stubborn", Command: "sh", Args: []string{"-c", "trap '' TERM; while true; do sleep 0.05; done"}}))

	_, err := s.Start("stubborn")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	err = s.Stop("stubborn", 150)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)

	_, st, err := s.GetStatus("stubborn")
	require.NoError(t, err)
	assert.Equal(t, Stopped, st.Kind) // stopping flag overrides signal-killed classification
}

func TestStopNotRunning(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "idle", Command: "sh"}))
	err := s.Stop("idle", 0)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRemoveWhileRunningRejected(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "busy", Command: "sh", Args: []string{"-c", "sleep 1"}}))
	_, err := s.Start("busy")
	require.NoError(t, err)

	err = s.Remove("busy")
	assert.ErrorIs(t, err, ErrStillRunning)

	require.NoError(t, s.Stop("busy", 500))
	assert.NoError(t, s.Remove("busy"))
}

func TestGetOutputNotStartedIsEmpty(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "fresh", Command: "sh"}))
	lines, err := s.GetOutput("fresh", StreamBoth, 0)
	require.NoError(t, err)
	assert.Len(t, lines, 0)
}

func TestInventoryNormalizesRunningToNotStarted(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "longrun", Command: "sh", Args: []string{"-c", "sleep 1"}}))
	_, err := s.Start("longrun")
	require.NoError(t, err)

	items := s.Inventory()
	require.Len(t, items, 1)
	assert.Equal(t, NotStarted, items[0].State.Kind)

	require.NoError(t, s.Stop("longrun", 500))
}

func TestRestoreSkipsDuplicateIDs(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "dup", Command: "sh"}))

	imported, skipped := s.Restore([]InventoryItem{
		{Spec: ProcessSpec{ID: "dup", Command: "sh"}},
		{Spec: ProcessSpec{ID: "fresh2", Command: "sh"}},
	})
	assert.Equal(t, 1, imported)
	assert.Equal(t, []string{"dup"}, skipped)
}

func TestRestoreSkipsInvalidSpec(t *testing.T) {
	s := newTestSupervisor(t)

	imported, skipped := s.Restore([]InventoryItem{
		{Spec: ProcessSpec{ID: "missing-command", Command: ""}},
		{Spec: ProcessSpec{ID: "fine", Command: "sh"}},
	})
	assert.Equal(t, 1, imported)
	assert.Equal(t, []string{"missing-command"}, skipped)

	_, err := s.reg.get("missing-command")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartAfterCompletedStopIsAllowed(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Create(ProcessSpec{ID: "restartable", Command: "sh", Args: []string{"-c", "trap 'exit 0' TERM; while true; do sleep 0.05; done"}}))

	_, err := s.Start("restartable")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Stop("restartable", 1000))
	waitForState(t, s, "restartable", Stopped, 2*time.Second)

	pid, err := s.Start("restartable")
	require.NoError(t, err, "a completed Stop must not permanently block a later Start")
	assert.Greater(t, pid, 0)

	require.NoError(t, s.Stop("restartable", 1000))
}

func TestAutoStartIDsFiltersFlag(t *testing.T) {
	items := []InventoryItem{
		{Spec: ProcessSpec{ID: "a", AutoStartOnRestore: true}},
		{Spec: ProcessSpec{ID: "b", AutoStartOnRestore: false}},
		{Spec: ProcessSpec{ID: "c", AutoStartOnRestore: true}},
	}
	assert.Equal(t, []string{"a", "c"}, AutoStartIDs(items))
}
