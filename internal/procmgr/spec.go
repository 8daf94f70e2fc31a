package procmgr

import (
	"fmt"
	"time"
)

// DefaultBufferCapacity is the per-stream ring buffer line count applied
// when a ProcessSpec does not set BufferCapacity explicitly.
const DefaultBufferCapacity = 10000

// ProcessSpec is the immutable configuration a caller supplies to Create.
// It is replaceable only by Remove followed by Create — never mutated
// in place.
type ProcessSpec struct {
	ID       string            `json:"id" yaml:"id"`
	Command  string            `json:"command" yaml:"command"`
	Args     []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Cwd      string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	AutoStartOnRestore bool    `json:"auto_start_on_restore" yaml:"auto_start_on_restore"`
	BufferCapacity     int     `json:"buffer_capacity,omitempty" yaml:"buffer_capacity,omitempty"`
}

// normalized returns a copy of spec with defaults applied, leaving the
// caller's original untouched.
func (s ProcessSpec) normalized() ProcessSpec {
	if s.BufferCapacity <= 0 {
		s.BufferCapacity = DefaultBufferCapacity
	}
	return s
}

// Validate enforces spec.md §7's Invalid-spec rule: empty id, empty
// command, or an out-of-range buffer capacity.
func (s ProcessSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalidSpec)
	}
	if s.Command == "" {
		return fmt.Errorf("%w: command must not be empty", ErrInvalidSpec)
	}
	if s.BufferCapacity < 0 || s.BufferCapacity > 1_000_000 {
		return fmt.Errorf("%w: buffer_capacity out of range", ErrInvalidSpec)
	}
	return nil
}

// StateKind tags the State union's active variant.
type StateKind int

const (
	NotStarted StateKind = iota
	Running
	Stopped
	Failed
)

func (k StateKind) String() string {
	switch k {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the tagged union described in spec.md §3. Only the fields
// relevant to Kind are meaningful; others are zero.
type State struct {
	Kind StateKind `json:"kind" yaml:"kind"`

	// Running
	PID       int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`

	// Stopped / Failed
	ExitCode  int       `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`
}

// normalizedForSnapshot returns the state that should be written to a
// snapshot document: Running is always flattened to NotStarted (invariant
// I4 / spec.md §4.7).
func (st State) normalizedForSnapshot() State {
	if st.Kind == Running {
		return State{Kind: NotStarted}
	}
	return st
}

// Summary is the cheap overview row returned by List.
type Summary struct {
	ID      string    `json:"id"`
	State   State     `json:"state"`
	Command string    `json:"command"`
	Created time.Time `json:"created_at"`
}

// StreamFilter selects which output stream(s) GetOutput returns.
type StreamFilter int

const (
	StreamBoth StreamFilter = iota
	StreamStdout
	StreamStderr
)

// ListFilter narrows List results by state class or id substring.
type ListFilter struct {
	StateClass *StateKind
	IDContains string
}

// Counts is the result of Registry.CountByState.
type Counts struct {
	Running    int `json:"running"`
	Stopped    int `json:"stopped"`
	Failed     int `json:"failed"`
	NotStarted int `json:"not_started"`
}

// InventoryItem is one row of a snapshot document (spec.md §4.7/§6): a
// spec, its creation timestamp, and a state normalized so it is never
// Running. Exported so a snapshot.Store implementation in another package
// can serialize/deserialize it without depending on registry internals.
type InventoryItem struct {
	Spec    ProcessSpec `json:"spec" yaml:"spec"`
	State   State       `json:"state" yaml:"state"`
	Created time.Time   `json:"created_at" yaml:"created_at"`
}
