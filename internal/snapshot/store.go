// Package snapshot defines the persistence contract for exporting and
// importing process inventories (spec.md §4.7) and the document schema
// shared by every backend.
package snapshot

import (
	"context"
	"time"

	"github.com/edirooss/procmgr-mcp/internal/procmgr"
)

// SchemaVersion is written into every exported document and checked by
// the supervisor runtime's Boot on import so a future incompatible layout
// can be detected instead of silently misparsed.
const SchemaVersion = 1

// Document is the full exported inventory: a version tag, an export
// timestamp, and the rows themselves. Grounded on the teacher's
// SystemdService.CommitService template data shape
// (services/systemd.go), generalized from a single unit file render to a
// structured multi-row document.
type Document struct {
	Version    int                      `json:"version" yaml:"version"`
	ExportedAt time.Time                `json:"exported_at" yaml:"exported_at"`
	Processes  []procmgr.InventoryItem  `json:"processes" yaml:"processes"`
}

// Store is the persistence boundary spec.md §4.7 describes: Export writes
// the current inventory, Import reads one back. Implementations must be
// safe to call from a single caller at a time; the supervisor runtime
// serializes Export calls via its own ticker.
type Store interface {
	Export(ctx context.Context, doc Document) error
	Import(ctx context.Context) (Document, error)
}
