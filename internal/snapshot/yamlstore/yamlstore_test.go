package yamlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirooss/procmgr-mcp/internal/procmgr"
	"github.com/edirooss/procmgr-mcp/internal/snapshot"
)

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "snapshot.yaml"))

	doc := snapshot.Document{
		Version:    snapshot.SchemaVersion,
		ExportedAt: time.Unix(1700000000, 0).UTC(),
		Processes: []procmgr.InventoryItem{
			{
				Spec: procmgr.ProcessSpec{ID: "worker1", Command: "sh", Args: []string{"-c", "true"}, AutoStartOnRestore: true},
				State: procmgr.State{Kind: procmgr.NotStarted},
			},
		},
	}

	require.NoError(t, store.Export(context.Background(), doc))

	got, err := store.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, doc.Version, got.Version)
	require.Len(t, got.Processes, 1)
	assert.Equal(t, "worker1", got.Processes[0].Spec.ID)
	assert.True(t, got.Processes[0].Spec.AutoStartOnRestore)
}

func TestImportMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "does-not-exist.yaml"))

	doc, err := store.Import(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Processes)
}

func TestExportOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.yaml")
	store := New(path)

	first := snapshot.Document{Version: snapshot.SchemaVersion, Processes: []procmgr.InventoryItem{
		{Spec: procmgr.ProcessSpec{ID: "a", Command: "sh"}},
	}}
	second := snapshot.Document{Version: snapshot.SchemaVersion, Processes: []procmgr.InventoryItem{
		{Spec: procmgr.ProcessSpec{ID: "b", Command: "sh"}},
	}}

	require.NoError(t, store.Export(context.Background(), first))
	require.NoError(t, store.Export(context.Background(), second))

	got, err := store.Import(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Processes, 1)
	assert.Equal(t, "b", got.Processes[0].Spec.ID)

	entries, err := filepath.Glob(filepath.Join(dir, ".snapshot-*"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files should remain after export")
}
