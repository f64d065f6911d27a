package wlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesLogFileAndWritesEntries(t *testing.T) {
	root := t.TempDir()
	l := New(root, "TEST")
	defer l.Close()

	l.Info("hello %s", "world")
	l.Warn("careful")
	l.Error("boom")
	l.OK("done")

	entries, err := os.ReadDir(filepath.Join(root, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(root, "logs", entries[0].Name()))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "[TEST] hello world")
	assert.Contains(t, content, "careful")
	assert.Contains(t, content, "boom")
	assert.Contains(t, content, "done")
}

func TestNewToleratesUnwritableRoot(t *testing.T) {
	l := New("/nonexistent-root/that/cannot/be/created\x00bad", "TEST")
	assert.NotPanics(t, func() {
		l.Info("should not panic even without a file handle")
	})
}

func TestWithComponentSharesFileHandle(t *testing.T) {
	root := t.TempDir()
	l := New(root, "A")
	defer l.Close()
	b := l.WithComponent("B")

	l.Info("from a")
	b.Info("from b")

	entries, err := os.ReadDir(filepath.Join(root, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(root, "logs", entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[A] from a")
	assert.Contains(t, string(data), "[B] from b")
}
