package procmgr

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultGraceMillis is the default Stop grace window (spec.md §4.5).
const DefaultGraceMillis = 3000

// MaxGraceMillis is the ceiling this implementation enforces on a
// caller-supplied grace window (spec.md §4.5 "ceiling enforced by
// implementer; 30000ms is adequate").
const MaxGraceMillis = 30_000

// Supervisor is the Lifecycle Controller (C5) together with the Registry
// (C4) it operates over. It is the single entry point for the operation
// surface in spec.md §6: Create, Start, Stop, GetStatus, GetOutput, List,
// Remove. Grounded on the teacher's ProcessManager2
// (processmgr/process_manager2.go), stripped of PM2's UID/PID indirection
// and preflight/onflight admission gating (those exist in the teacher to
// throttle process *launches*, which spec.md §1 explicitly places out of
// scope as "resource quota enforcement") and extended with the
// capture-goroutine limiter described in SPEC_FULL.md.
type Supervisor struct {
	log *zap.Logger
	reg *registry

	captures *captureLimiter
}

// NewSupervisor constructs an empty Supervisor. maxConcurrentCaptures
// bounds the output-capture worker pool (SPEC_FULL.md "AMBIENT STACK
// SUMMARY"); 0 selects a generous default.
func NewSupervisor(log *zap.Logger, maxConcurrentCaptures int64) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if maxConcurrentCaptures <= 0 {
		maxConcurrentCaptures = 256
	}
	return &Supervisor{
		log:      log.Named("procmgr"),
		reg:      newRegistry(),
		captures: newCaptureLimiter(maxConcurrentCaptures),
	}
}

// Create inserts a fresh NotStarted entry. Does not spawn (spec.md §4.5).
func (s *Supervisor) Create(spec ProcessSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	return s.reg.insert(newEntry(spec, s.log))
}

// restoreEntry re-creates an entry from a snapshot document, preserving
// its creation timestamp and non-volatile state. It still validates the
// spec itself: a row with a missing required field aborts import for
// that entry only, not the whole document (spec.md §6 "missing required
// fields abort import for the specific entry, not the whole file").
func (s *Supervisor) restoreEntry(item InventoryItem) error {
	if err := item.Spec.Validate(); err != nil {
		return err
	}
	e := newEntry(item.Spec, s.log)
	e.created = item.Created
	e.state = item.State
	return s.reg.insert(e)
}

// Start launches the child for id. Requires state ∈ {NotStarted, Stopped,
// Failed} and not already stopping (spec.md §4.5).
func (s *Supervisor) Start(id string) (pid int, err error) {
	e, err := s.reg.get(id)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: stop in progress for %s", ErrWrongState, id)
	}
	switch e.state.Kind {
	case NotStarted, Stopped, Failed:
		// ok
	default:
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: %s is %s", ErrWrongState, id, e.state.Kind)
	}

	cmd := exec.Command(e.spec.Command, e.spec.Args...)
	cmd.Env = envSlice(e.spec.Env)
	if e.spec.Cwd != "" {
		cmd.Dir = e.spec.Cwd
	}
	setProcessGroup(cmd)

	stdout, stderr, perr := setupPipes(cmd)
	if perr != nil {
		e.state = State{Kind: Failed, Error: spawnErrMessage(perr), StoppedAt: time.Now()}
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, perr)
	}

	if serr := cmd.Start(); serr != nil {
		e.state = State{Kind: Failed, Error: spawnErrMessage(serr), StoppedAt: time.Now()}
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, serr)
	}

	childPID := cmd.Process.Pid
	e.cmd = cmd
	e.stopping = false
	e.exited = make(chan struct{})
	e.state = State{Kind: Running, PID: childPID, StartedAt: time.Now()}
	exitedCh := e.exited
	e.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go s.runCapture(stdout, Stdout, e.stdout, &wg)
	go s.runCapture(stderr, Stderr, e.stderr, &wg)

	go s.reap(e, cmd, exitedCh, &wg)

	s.log.Info("process started", zap.String("id", id), zap.Int("pid", childPID))
	return childPID, nil
}

// runCapture is the capture-limiter-gated wrapper around captureStream
// (C2). Admission to the worker pool happens before the blocking read
// loop begins, per SPEC_FULL.md's capture concurrency bound.
func (s *Supervisor) runCapture(r io.ReadCloser, stream Stream, buf *ringBuffer, wg *sync.WaitGroup) {
	s.captures.acquire()
	defer s.captures.release()
	captureStream(r, stream, buf, wg)
}

// reap is the Reaper (C6): waits for the child to exit, ensures both
// capture tasks have terminated (invariant I3), then finalizes the state
// transition out of Running.
func (s *Supervisor) reap(e *entry, cmd *exec.Cmd, exitedCh chan struct{}, wg *sync.WaitGroup) {
	// Capture tasks terminate on pipe EOF, which follows from the child's
	// exit; block until both have drained before cmd.Wait, which closes
	// the read ends of the pipes, so no output is lost and invariant I3
	// holds before we transition state.
	wg.Wait()
	waitErr := cmd.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	startedAt := e.state.StartedAt

	if e.stopping {
		// User-initiated termination is always classified Stopped,
		// regardless of the underlying exit code (spec.md §4.5 step 4).
		e.state = State{Kind: Stopped, StartedAt: startedAt, StoppedAt: now}
	} else {
		e.state = classifyExit(waitErr, startedAt, now)
	}

	// The exit is now finalized; clear stopping so a later Start isn't
	// permanently blocked by a Stop that already completed (spec.md §4.5
	// "Stopped/Failed -- Start --> Running").
	e.stopping = false
	e.cmd = nil
	close(exitedCh)

	if e.state.Kind == Failed {
		e.log.Warn("process exited", zap.Stringer("state", e.state.Kind), zap.String("error", e.state.Error))
	} else {
		e.log.Info("process exited", zap.Stringer("state", e.state.Kind), zap.Int("exit_code", e.state.ExitCode))
	}
}

// classifyExit applies spec.md §3's classification rule: exit code 0 and
// no signal ⇒ Stopped; non-zero exit code or termination by signal ⇒
// Failed with the code/signal captured in Error.
func classifyExit(waitErr error, startedAt, stoppedAt time.Time) State {
	if waitErr == nil {
		return State{Kind: Stopped, ExitCode: 0, StartedAt: startedAt, StoppedAt: stoppedAt}
	}

	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return State{Kind: Failed, Error: waitErr.Error(), StartedAt: startedAt, StoppedAt: stoppedAt}
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return State{
			Kind:      Failed,
			Error:     fmt.Sprintf("terminated by signal: %s", status.Signal()),
			StartedAt: startedAt,
			StoppedAt: stoppedAt,
		}
	}

	code := exitErr.ExitCode()
	if code == 0 {
		return State{Kind: Stopped, ExitCode: 0, StartedAt: startedAt, StoppedAt: stoppedAt}
	}
	return State{
		Kind:      Failed,
		ExitCode:  code,
		Error:     fmt.Sprintf("exit code %d", code),
		StartedAt: startedAt,
		StoppedAt: stoppedAt,
	}
}

// Stop requests graceful termination of id's child within graceMillis
// (spec.md §4.5). graceMillis <= 0 selects DefaultGraceMillis; values
// above MaxGraceMillis are clamped.
func (s *Supervisor) Stop(id string, graceMillis int) error {
	if graceMillis <= 0 {
		graceMillis = DefaultGraceMillis
	}
	if graceMillis > MaxGraceMillis {
		graceMillis = MaxGraceMillis
	}

	e, err := s.reg.get(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.state.Kind != Running {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	pid := e.state.PID
	exitedCh := e.exited
	firstCaller := !e.stopping
	e.stopping = true
	e.mu.Unlock()

	if firstCaller {
		if serr := signalGroup(pid, terminateSignal); serr != nil {
			s.log.Warn("polite termination signal failed", zap.String("id", id), zap.Int("pid", pid), zap.Error(serr))
		} else {
			s.log.Info("termination signal sent", zap.String("id", id), zap.Int("pid", pid))
		}
	}

	grace := time.Duration(graceMillis) * time.Millisecond
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-exitedCh:
		return nil
	case <-timer.C:
	}

	if kerr := signalGroup(pid, killSignal); kerr != nil {
		s.log.Error("forced kill signal failed", zap.String("id", id), zap.Int("pid", pid), zap.Error(kerr))
		return fmt.Errorf("%w: %v", ErrStopFailed, kerr)
	}
	s.log.Warn("grace window elapsed; forced kill sent", zap.String("id", id), zap.Int("pid", pid))

	<-exitedCh // wait uninterruptibly for the reaper to finish
	return nil
}

// GetStatus returns the spec + state snapshot for id.
func (s *Supervisor) GetStatus(id string) (ProcessSpec, State, error) {
	e, err := s.reg.get(id)
	if err != nil {
		return ProcessSpec{}, State{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spec, e.state, nil
}

// GetOutput reads from id's ring buffers without affecting state.
// NotStarted entries return an empty (not erroring) sequence.
func (s *Supervisor) GetOutput(id string, filter StreamFilter, maxLines int) ([]LogLine, error) {
	e, err := s.reg.get(id)
	if err != nil {
		return nil, err
	}

	switch filter {
	case StreamStdout:
		return e.stdout.snapshot(maxLines, StreamStdout), nil
	case StreamStderr:
		return e.stderr.snapshot(maxLines, StreamStderr), nil
	default:
		out := append(e.stdout.snapshot(maxLines, StreamStdout), e.stderr.snapshot(maxLines, StreamStderr)...)
		return out, nil
	}
}

// List returns summaries for entries matching filter.
func (s *Supervisor) List(filter ListFilter) []Summary {
	return s.reg.list(filter)
}

// CountByState tallies entries by state class.
func (s *Supervisor) CountByState() Counts {
	return s.reg.countByState()
}

// Remove deletes id. Returns ErrStillRunning if the entry is Running.
func (s *Supervisor) Remove(id string) error {
	e, err := s.reg.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	running := e.state.Kind == Running
	e.mu.Unlock()
	if running {
		return fmt.Errorf("%w: %s", ErrStillRunning, id)
	}
	return s.reg.remove(id)
}

// Inventory returns every entry's spec, creation time, and
// snapshot-normalized state, for the Snapshot Store to persist (spec.md
// §4.7).
func (s *Supervisor) Inventory() []InventoryItem {
	return s.reg.snapshotAll()
}

// Restore re-creates entries from a previously exported inventory, skipping
// (and reporting) ids that already exist (spec.md §4.7 import semantics).
// It does not start anything; auto-restore is the caller's responsibility
// (spec.md §4.8 step 4), since only the Supervisor Runtime knows the
// restart policy.
func (s *Supervisor) Restore(items []InventoryItem) (imported int, skipped []string) {
	for _, item := range items {
		if err := s.restoreEntry(item); err != nil {
			skipped = append(skipped, item.Spec.ID)
			continue
		}
		imported++
	}
	return imported, skipped
}

// AutoStartIDs returns the ids, among the given inventory, flagged for
// auto-restore — used by the Supervisor Runtime after a successful Import
// (spec.md §4.8 step 4).
func AutoStartIDs(items []InventoryItem) []string {
	var ids []string
	for _, item := range items {
		if item.Spec.AutoStartOnRestore {
			ids = append(ids, item.Spec.ID)
		}
	}
	return ids
}
