package fileops

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := testutils.WriteFile(t, filepath.Join(dir, "in", "clip.mp4"), "hello")
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	dst := filepath.Join(dir, "out", "deep", "clip.mp4")
	res, err := NewCopier(WithBufferSize(2)).CopyFile(context.Background(), src, dst)
	require.NoError(t, err)

	assert.True(t, res.Verified)
	assert.EqualValues(t, 5, res.Size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", res.SourceHash)
	assert.Equal(t, res.SourceHash, res.DestHash)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "mtime %v", info.ModTime())
}

func TestCopyFileWithoutVerification(t *testing.T) {
	dir := t.TempDir()
	src := testutils.WriteFile(t, filepath.Join(dir, "a"), "x")

	res, err := NewCopier(WithVerification(false)).CopyFile(context.Background(), src, filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Empty(t, res.SourceHash)
}

func TestCopyFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewCopier().CopyFile(context.Background(), filepath.Join(dir, "missing"), filepath.Join(dir, "b"))
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeFileNotFound))

	src := testutils.WriteFile(t, filepath.Join(dir, "a"), "data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewCopier().CopyFile(ctx, src, filepath.Join(dir, "c"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "c"))
}

func TestCopyItems(t *testing.T) {
	root := testutils.CreateEvidenceTree(t)
	dest := t.TempDir()

	var (
		mu    sync.Mutex
		calls []int
	)
	c := NewCopier(WithWorkers(3), WithProgress(func(done, total int, current string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, done)
		assert.Equal(t, 5, total)
	}))

	res, err := c.CopyItems(context.Background(), []string{
		filepath.Join(root, "DVR_Export"),
		filepath.Join(root, "still.jpg"),
	}, dest)
	require.NoError(t, err)

	assert.Len(t, res.Files, 5)
	for rel, content := range testutils.EvidenceFiles {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, content, string(data))
		assert.Contains(t, res.Files, filepath.FromSlash(rel))
	}

	assert.Equal(t, 5, res.Summary.TotalFiles)
	assert.Equal(t, 5, res.Summary.Verified)
	assert.True(t, res.Summary.AllVerified())
	assert.Len(t, res.Records(), 5)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, calls)
}

func TestCopyItemsCollectsFailures(t *testing.T) {
	root := testutils.CreateEvidenceTree(t)
	dest := t.TempDir()

	// a directory squatting on a destination file path makes that copy fail
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "still.jpg"), 0o755))

	res, err := NewCopier().CopyItems(context.Background(), []string{
		filepath.Join(root, "DVR_Export"),
		filepath.Join(root, "still.jpg"),
	}, dest)
	require.Error(t, err)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 4, res.Summary.Successful)
	assert.Len(t, res.Errors, 1)
	assert.Error(t, res.Files["still.jpg"].Err)
}

func TestCopyItemsMissingSource(t *testing.T) {
	_, err := NewCopier().CopyItems(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, t.TempDir())
	assert.Error(t, err)
}

func TestCopyItemsRejectsDuplicateTargets(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	a := testutils.WriteFile(t, filepath.Join(src, "cam1", "clip.mp4"), "camera one")
	b := testutils.WriteFile(t, filepath.Join(src, "cam2", "clip.mp4"), "camera two")

	res, err := NewCopier(WithWorkers(2)).CopyItems(context.Background(), []string{a, b}, dest)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeDuplicateTarget), "%v", err)
	assert.Contains(t, err.Error(), "clip.mp4")

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is copied")

	// The parent folders keep the names apart.
	res, err = NewCopier(WithWorkers(2)).CopyItems(context.Background(),
		[]string{filepath.Join(src, "cam1"), filepath.Join(src, "cam2")}, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Verified)
}

func TestSummary(t *testing.T) {
	s := Summarize([]*FileResult{
		{Size: 1024, Verified: true},
		{Size: 2048, Verified: false},
		{Size: 10, Err: errors.New("boom")},
	}, time.Second)

	assert.Equal(t, 3, s.TotalFiles)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Verified)
	assert.EqualValues(t, 3072, s.TotalBytes)
	assert.False(t, s.AllVerified())
	assert.Contains(t, s.String(), "2/3 files copied")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.n))
	}
}
