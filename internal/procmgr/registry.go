package procmgr

import (
	"fmt"
	"strings"
	"sync"
)

// registry (C4) is the concurrent map from process id to entry, read-mostly
// with per-entry locking left to entry itself. Generalizes the teacher's
// ProcessManager.processes/logBuffers maps (processmgr/process_manager.go)
// and ProcessManager2.units/specs/ps (processmgr/process_manager2.go) into
// a single id-keyed table, since this spec has no separate UID/PID
// indirection — the caller-chosen id is the only identity (spec.md §3).
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

// insert adds a fresh entry. Returns ErrAlreadyExists if id is taken.
func (r *registry) insert(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.spec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, e.spec.ID)
	}
	r.entries[e.spec.ID] = e
	return nil
}

// get returns a shared reference to the entry, or ErrNotFound.
func (r *registry) get(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// remove deletes id from the map. The caller is responsible for verifying
// the entry is not Running before calling this (StillRunning is enforced
// by the controller, which holds the entry lock across the check).
func (r *registry) remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.entries, id)
	return nil
}

// list returns a cheap overview of all entries matching filter.
func (r *registry) list(filter ListFilter) []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.entries))
	for id, e := range r.entries {
		if filter.IDContains != "" && !strings.Contains(id, filter.IDContains) {
			continue
		}
		st := e.getState()
		if filter.StateClass != nil && st.Kind != *filter.StateClass {
			continue
		}
		out = append(out, Summary{
			ID:      id,
			State:   st,
			Command: e.spec.Command,
			Created: e.created,
		})
	}
	return out
}

// countByState returns the current tally across all variants.
func (r *registry) countByState() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var c Counts
	for _, e := range r.entries {
		switch e.getState().Kind {
		case Running:
			c.Running++
		case Stopped:
			c.Stopped++
		case Failed:
			c.Failed++
		default:
			c.NotStarted++
		}
	}
	return c
}

// snapshotAll returns every entry's spec and normalized (never-Running)
// state, for export. Each entry's own lock is taken while copying, giving
// a consistent cut per entry but not a single globally consistent cut
// (spec.md §5).
func (r *registry) snapshotAll() []InventoryItem {
	r.mu.RLock()
	ids := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e)
	}
	r.mu.RUnlock()

	out := make([]InventoryItem, 0, len(ids))
	for _, e := range ids {
		e.mu.Lock()
		out = append(out, InventoryItem{
			Spec:    e.spec,
			State:   e.state.normalizedForSnapshot(),
			Created: e.created,
		})
		e.mu.Unlock()
	}
	return out
}
