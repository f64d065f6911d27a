package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunPython(t *testing.T) {
	if _, err := execLookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	dir := t.TempDir()
	l := NewLocal(dir)
	out, err := l.RunPython(context.Background(), "print('hello')")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}

func TestLocalInterruptShortCircuits(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir)
	assert.False(t, l.IsInterrupted())
	assert.True(t, l.Interrupt())
	assert.True(t, l.IsInterrupted())
	// A second interrupt call reports no state change.
	assert.False(t, l.Interrupt())

	out, err := l.RunPython(context.Background(), "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "[interrupted]", out)

	l.ResetInterrupt()
	assert.False(t, l.IsInterrupted())
}

func TestLocalListFilesAndUploadDownload(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir)

	src := filepath.Join(t.TempDir(), "source.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	require.NoError(t, l.UploadFile(src, "uploaded.txt"))

	files, err := l.ListFiles(".")
	require.NoError(t, err)
	assert.Contains(t, files, "uploaded.txt")

	dst := filepath.Join(t.TempDir(), "downloaded.txt")
	require.NoError(t, l.DownloadFile("uploaded.txt", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestLocalGetWorkingDirectory(t *testing.T) {
	l := NewLocal("/tmp/somewhere")
	assert.Equal(t, "/tmp/somewhere", l.GetWorkingDirectory())
}

func TestDockerInterruptShortCircuits(t *testing.T) {
	d := NewDocker(t.TempDir())
	assert.True(t, d.Interrupt())
	out, err := d.RunPython(context.Background(), "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "[interrupted]", out)
}

func TestDockerArgsIncludesBindMount(t *testing.T) {
	d := NewDocker("/workdir")
	args := d.dockerArgs([]string{"python3", "-c", "print(1)"})
	assert.Contains(t, args, "/workdir:/workspace")
	assert.Contains(t, args, d.Image)
}

func execLookPath(bin string) (string, error) {
	return exec.LookPath(bin)
}
