// Package yamlstore implements snapshot.Store as a single YAML document on
// local disk, written atomically via a temp-file-then-rename swap.
package yamlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/edirooss/procmgr-mcp/internal/procmgr"
	"github.com/edirooss/procmgr-mcp/internal/snapshot"
)

// Store persists a snapshot.Document to a single path on disk.
// Grounded on the teacher's SystemdService.CommitService
// (services/systemd.go): create-in-place is replaced with a sibling
// temp file plus os.Rename so a crash mid-write never leaves a
// truncated or partially-written document behind (spec.md §4.7
// "the on-disk file is never left partially written").
type Store struct {
	path string
}

// New returns a Store that reads/writes path.
func New(path string) *Store {
	return &Store{path: path}
}

// Export writes doc to the store's path, replacing any existing content
// only after the new content has been fully flushed to a temp file.
func (s *Store) Export(ctx context.Context, doc snapshot.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp snapshot file: %v", procmgr.ErrIO, err)
	}
	tmpPath := tmp.Name()

	enc := yaml.NewEncoder(tmp)
	encErr := enc.Encode(doc)
	closeEncErr := enc.Close()

	if encErr != nil || closeEncErr != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		if encErr != nil {
			return fmt.Errorf("%w: encode snapshot: %v", procmgr.ErrIO, encErr)
		}
		return fmt.Errorf("%w: close yaml encoder: %v", procmgr.ErrIO, closeEncErr)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: sync temp snapshot file: %v", procmgr.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp snapshot file: %v", procmgr.ErrIO, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename temp snapshot file into place: %v", procmgr.ErrIO, err)
	}
	return nil
}

// Import reads and parses the document at the store's path. A missing
// file is reported as an empty document with no processes, not an error
// (spec.md §4.8 step 3 "a missing import file is not an error; startup
// proceeds with an empty registry").
func (s *Store) Import(ctx context.Context) (snapshot.Document, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Document{}, err
	}

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return snapshot.Document{Version: snapshot.SchemaVersion}, nil
	}
	if err != nil {
		return snapshot.Document{}, fmt.Errorf("%w: open snapshot file: %v", procmgr.ErrIO, err)
	}
	defer f.Close()

	var doc snapshot.Document
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return snapshot.Document{}, fmt.Errorf("%w: decode snapshot file: %v", procmgr.ErrFormat, err)
	}
	return doc, nil
}
