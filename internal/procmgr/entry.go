package procmgr

import (
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// entry is the in-memory record for one managed process (C3): spec,
// current state, the live child handle when running, and the two
// per-stream ring buffers. Generalizes the teacher's process struct
// (processmgr/process.go) plus execSpec/ps bookkeeping from
// processmgr/process_manager2.go into a single owned record.
type entry struct {
	mu sync.Mutex // guards everything below except the ring buffers

	spec    ProcessSpec
	state   State
	created time.Time

	cmd      *exec.Cmd
	stopping bool // observable "stopping" flag (spec.md §4.5)

	// signalled once the reaper has finalized the exit of the current
	// child; re-created on every successful Start.
	exited chan struct{}

	stdout *ringBuffer
	stderr *ringBuffer

	log *zap.Logger
}

func newEntry(spec ProcessSpec, log *zap.Logger) *entry {
	spec = spec.normalized()
	return &entry{
		spec:    spec,
		state:   State{Kind: NotStarted},
		created: time.Now(),
		stdout:  newRingBuffer(spec.BufferCapacity),
		stderr:  newRingBuffer(spec.BufferCapacity),
		log:     log.With(zap.String("id", spec.ID)),
	}
}

// getState returns a cheap, cloneable copy of the current state.
func (e *entry) getState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// spawnErrMessage converts a spawn-time OS error into the advisory message
// stored on a Failed state.
func spawnErrMessage(err error) string {
	return err.Error()
}
