// Package supervisor wires the process registry, the snapshot store, and
// the process's own lifecycle into one boot/run/shutdown sequence
// (spec.md §4.8). Grounded on the teacher's ProcessManager context
// cancellation (internal/infrastructure/processmgr/process_manager.go)
// and cmd/zmux-server/main.go's logger/service wiring, generalized from a
// single HTTP-request lifetime to the whole process's lifetime.
package supervisor

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edirooss/procmgr-mcp/internal/config"
	"github.com/edirooss/procmgr-mcp/internal/procmgr"
	"github.com/edirooss/procmgr-mcp/internal/snapshot"
)

// Runtime is the top-level object cmd/procmgrd wires up: the Supervisor
// (core registry + lifecycle controller), a snapshot store, and the
// background ticker that periodically exports the inventory.
type Runtime struct {
	log         *zap.Logger
	cfg         *config.Config
	proc        *procmgr.Supervisor
	importStore snapshot.Store
	exportStore snapshot.Store
	stopTicker  context.CancelFunc
}

// New constructs a Runtime. It does not start anything; call Boot.
// importStore and exportStore may be the same value when cfg.ImportFile
// and cfg.ExportFile name the same document (spec.md §6 allows them to
// diverge, so the two are kept independent rather than collapsed into
// one handle).
func New(log *zap.Logger, cfg *config.Config, importStore, exportStore snapshot.Store) *Runtime {
	return &Runtime{
		log:         log.Named("supervisor_runtime"),
		cfg:         cfg,
		proc:        procmgr.NewSupervisor(log, int64(cfg.MaxConcurrentCaptures)),
		importStore: importStore,
		exportStore: exportStore,
	}
}

// Processes exposes the underlying Supervisor for the MCP tool layer (or
// any other front end) to drive Create/Start/Stop/etc. against.
func (rt *Runtime) Processes() *procmgr.Supervisor {
	return rt.proc
}

// Boot runs the startup sequence from spec.md §4.8: import the snapshot
// (a missing file is not an error), reject a document whose schema
// version is not SchemaVersion, restore every row with its recorded
// (never Running) state, auto-start the ones flagged
// auto_start_on_restore, then start the periodic export ticker.
func (rt *Runtime) Boot(ctx context.Context) error {
	doc, err := rt.importStore.Import(ctx)
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	if doc.Version != snapshot.SchemaVersion {
		return fmt.Errorf("import snapshot: %w: unsupported schema version %d", procmgr.ErrFormat, doc.Version)
	}

	imported, skipped := rt.proc.Restore(doc.Processes)
	rt.log.Info("snapshot imported",
		zap.Int("imported", imported),
		zap.Int("skipped", len(skipped)),
		zap.Strings("skipped_ids", skipped),
	)

	for _, id := range procmgr.AutoStartIDs(doc.Processes) {
		if _, err := rt.proc.Start(id); err != nil {
			rt.log.Warn("auto-start failed", zap.String("id", id), zap.Error(err))
		}
	}

	if rt.cfg.AutoExportInterval > 0 {
		tickerCtx, cancel := context.WithCancel(context.Background())
		rt.stopTicker = cancel
		go rt.exportLoop(tickerCtx)
	}

	return nil
}

// exportLoop periodically writes the current inventory until ctx is
// cancelled. Export errors are logged, not fatal: a transient disk/Redis
// failure should not bring the whole runtime down.
func (rt *Runtime) exportLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.AutoExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.exportOnce(ctx); err != nil {
				rt.log.Warn("periodic snapshot export failed", zap.Error(err))
			}
		}
	}
}

// exportOnce performs one export, used by both the ticker and the
// shutdown sequence's final export. Each call gets an opaque correlation
// id purely for log tracing across the Export call's own log lines
// (store implementations may log their own diagnostics).
func (rt *Runtime) exportOnce(ctx context.Context) error {
	exportID := uuid.New().String()
	doc := snapshot.Document{
		Version:    snapshot.SchemaVersion,
		ExportedAt: time.Now(),
		Processes:  rt.proc.Inventory(),
	}
	log := rt.log.With(zap.String("export_id", exportID), zap.Int("process_count", len(doc.Processes)))
	log.Debug("exporting snapshot")
	if err := rt.exportStore.Export(ctx, doc); err != nil {
		return err
	}
	log.Debug("snapshot exported")
	return nil
}

// Run blocks until SIGINT/SIGTERM, then executes the shutdown sequence:
// stop the export ticker; per cfg.StopOnShutdown, either leave running
// children detached or stop every running entry concurrently, each
// bounded by cfg.ShutdownGraceMillis (spec.md §4.8 step 6, "bounded by
// the slowest individual stop, not their sum"); then write one final
// snapshot.
func (rt *Runtime) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	rt.log.Info("shutdown signal received")

	return rt.Shutdown(context.Background())
}

// Shutdown runs the shutdown sequence directly, without waiting for an OS
// signal. Exported so tests and embedding callers can drive it
// explicitly.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if rt.stopTicker != nil {
		rt.stopTicker()
	}

	if rt.cfg.StopOnShutdown {
		rt.stopAllRunning(ctx)
	}

	if err := rt.exportOnce(ctx); err != nil {
		return fmt.Errorf("final snapshot export: %w", err)
	}
	rt.log.Info("shutdown complete")
	return nil
}

// stopAllRunning concurrently stops every currently-running entry. Using
// errgroup means the call returns once the slowest single Stop finishes,
// not after the sum of every process's grace window — the same
// fan-out-then-wait shape the teacher uses for its restart supervisors
// (processmgr/process_manager.go), applied here to shutdown instead of
// restart.
func (rt *Runtime) stopAllRunning(ctx context.Context) {
	running := StateKindFilter(rt.proc, procmgr.Running)

	var g errgroup.Group
	for _, id := range running {
		id := id
		g.Go(func() error {
			if err := rt.proc.Stop(id, rt.cfg.ShutdownGraceMillis); err != nil {
				rt.log.Warn("stop-on-shutdown failed", zap.String("id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// StateKindFilter returns the ids currently in state kind. A small helper
// kept at package scope (rather than a Supervisor method) since it is
// only the shutdown sequence that needs to list by one exact kind.
func StateKindFilter(proc *procmgr.Supervisor, kind procmgr.StateKind) []string {
	summaries := proc.List(procmgr.ListFilter{StateClass: &kind})
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	return ids
}
