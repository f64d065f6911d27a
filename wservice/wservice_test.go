package wservice

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/config"
	"weave/saver"
	"weave/tracker"
)

func testService(t *testing.T) (*Service, string) {
	root := t.TempDir()
	cfg := &config.Config{WorkflowsRoot: root, PythonBin: "python3"}
	return New(cfg, nil, nil, nil), root
}

func TestSynthesizeNotebookModeFromLiveTracker(t *testing.T) {
	svc, _ := testService(t)
	tr := tracker.New(t.TempDir())
	_, err := tr.TrackExecution("import pandas as pd\ndf = pd.read_csv('a.csv')", "ok", true, nil, nil, "")
	require.NoError(t, err)

	artifact, err := svc.Synthesize(context.Background(), tr, Request{
		Mode:         saver.ModeNotebook,
		WorkflowName: "test run",
	})
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.True(t, artifact.Finalized)
	assert.FileExists(t, artifact.Path)
}

func TestReconstructLoadsFromDiskJournal(t *testing.T) {
	svc, _ := testService(t)
	workDir := t.TempDir()
	seed := tracker.New(workDir)
	_, err := seed.TrackExecution("x = 1\nprint(x)", "1", true, nil, nil, "")
	require.NoError(t, err)

	artifact, err := svc.Reconstruct(context.Background(), workDir, false, Request{
		Mode:         saver.ModeNotebook,
		WorkflowName: "reconstructed",
	})
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.True(t, artifact.Finalized)
}

func TestSessionRegistryDeduplicates(t *testing.T) {
	var r sessionRegistry
	r.record("a")
	r.record("b")
	r.record("a")
	assert.ElementsMatch(t, []string{"a", "b"}, r.ids)
}

func TestPruneOrphanedValidationTempRemovesOldDirs(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), "workflow_validation_temp_")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(dir, old, old))

	require.NoError(t, pruneOrphanedValidationTemp(24*time.Hour))
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStartStopCleanupDoesNotPanicWithoutRedis(t *testing.T) {
	svc, _ := testService(t)
	require.NoError(t, svc.StartCleanup("*/1 * * * * *", nil))
	defer svc.StopCleanup()
	time.Sleep(50 * time.Millisecond)
}

func TestRunCleanupOnceWithoutMirrorDoesNotPanic(t *testing.T) {
	svc, _ := testService(t)
	assert.NotPanics(t, func() { svc.RunCleanupOnce() })
}

func TestSetMirrorThenRunCleanupOnceDoesNotPanic(t *testing.T) {
	svc, _ := testService(t)
	svc.SetMirror(tracker.NewGoRedisMirror("127.0.0.1:1"))
	assert.NotPanics(t, func() { svc.RunCleanupOnce() })
}
