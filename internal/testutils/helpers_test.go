package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEvidenceTree(t *testing.T) {
	root := CreateEvidenceTree(t)

	for rel, content := range EvidenceFiles {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	}
}

func TestCreateTestForm(t *testing.T) {
	form := CreateTestForm()
	assert.NoError(t, form.Validate())
	assert.True(t, form.HasTimeOffset())
}

func TestCreateTestConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := CreateTestConfig(dir)

	assert.Equal(t, "sha256", cfg.Hashing.Algorithm)
	assert.Equal(t, filepath.Join(dir, "templates"), cfg.Templates.UserDir)
	assert.Empty(t, cfg.Progress.Addr)
	assert.False(t, cfg.Archive.AtRoot)
}

func TestAssertFilePermissions(t *testing.T) {
	path := WriteFile(t, filepath.Join(t.TempDir(), "a", "b.txt"), "x")
	require.NoError(t, os.Chmod(path, 0o600))
	AssertFilePermissions(t, path, 0o600)
}

func TestWaitForFileChange(t *testing.T) {
	path := WriteFile(t, filepath.Join(t.TempDir(), "w.txt"), "x")
	info, err := os.Stat(path)
	require.NoError(t, err)
	original := info.ModTime()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.Chtimes(path, time.Now().Add(time.Second), time.Now().Add(time.Second))
	}()

	WaitForFileChange(t, path, original, time.Second)
}

func TestWaitFor(t *testing.T) {
	start := time.Now()
	WaitFor(t, time.Second, func() bool { return time.Since(start) > 20*time.Millisecond }, "elapsed")
}
