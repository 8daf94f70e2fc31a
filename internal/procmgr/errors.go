package procmgr

import "errors"

// Sentinel errors for the operation surface. Each maps to a stable classifier
// string so callers (the MCP tool layer, tests) can branch with errors.Is
// without depending on message text.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrWrongState    = errors.New("wrong state")
	ErrNotRunning    = errors.New("not running")
	ErrStillRunning  = errors.New("still running")
	ErrSpawnFailed   = errors.New("spawn failed")
	ErrStopFailed    = errors.New("stop failed")
	ErrInvalidSpec   = errors.New("invalid spec")

	// ErrFormat tags snapshot documents that cannot be parsed (spec.md §7
	// "Format-error").
	ErrFormat = errors.New("snapshot format error")

	// ErrIO tags filesystem/network errors encountered during snapshot
	// export or import (spec.md §7 "Io-error").
	ErrIO = errors.New("snapshot io error")
)
