package hashing

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256 of "hello"
const helloHash = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func write(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	p := write(t, filepath.Join(dir, "a.txt"), "hello")

	for _, size := range []int{0, 1, 3, 1024} {
		sum, n, err := HashFile(context.Background(), p, size)
		require.NoError(t, err)
		assert.Equal(t, helloHash, sum)
		assert.EqualValues(t, 5, n)
	}

	_, _, err := HashFile(context.Background(), filepath.Join(dir, "missing"), 0)
	require.Error(t, err)
	assert.True(t, errors.HasErrorType(err, errors.ErrorTypeFileOperation))
}

func TestHashReaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := HashReader(ctx, strings.NewReader("hello"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckDistinct(t *testing.T) {
	root := t.TempDir()
	a := write(t, filepath.Join(root, "cam1", "clip.mp4"), "one")
	b := write(t, filepath.Join(root, "cam2", "clip.mp4"), "two")

	files, err := Discover([]string{a, b})
	require.NoError(t, err)
	err = CheckDistinct(files)
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeDuplicateTarget))

	files, err = Discover([]string{filepath.Join(root, "cam1"), filepath.Join(root, "cam2")})
	require.NoError(t, err)
	assert.NoError(t, CheckDistinct(files))
}

func TestDiscoverAndHashFiles(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "Evidence", "cam1", "a.mp4"), "hello")
	write(t, filepath.Join(root, "Evidence", "b.mp4"), "world!")
	single := write(t, filepath.Join(root, "notes.txt"), "n")

	files, err := Discover([]string{filepath.Join(root, "Evidence"), single})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join("Evidence", "b.mp4"), files[0].RelativePath)
	assert.Equal(t, filepath.Join("Evidence", "cam1", "a.mp4"), files[1].RelativePath)
	assert.Equal(t, "notes.txt", files[2].RelativePath)
	assert.EqualValues(t, 12, TotalSize(files))

	results, err := HashFiles(context.Background(), files, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.OK(), r.Path)
	}
	assert.Equal(t, helloHash, results[1].Hash)

	files = append(files, File{Path: filepath.Join(root, "gone"), RelativePath: "gone"})
	results, err = HashFiles(context.Background(), files, 4, 0)
	require.NoError(t, err)
	assert.False(t, results[3].OK())
	assert.Error(t, results[3].Err)

	_, err = Discover([]string{filepath.Join(root, "nope")})
	assert.Error(t, err)
}

func res(path, rel, hash string) Result {
	return Result{Path: path, RelativePath: rel, Hash: hash, Size: 5}
}

func TestVerify(t *testing.T) {
	sources := []Result{
		res("/src/Case/a.mp4", "Case/a.mp4", "h1"),
		res("/src/Case/sub/b.mp4", "Case/sub/b.mp4", "h2"),
		res("/src/Case/c.mp4", "Case/c.mp4", "h3"),
		res("/src/Case/d.mp4", "Case/d.mp4", "h4"),
		res("/src/Case/e.mp4", "Case/e.mp4", "h5"),
	}
	targets := []Result{
		res("/dst/Case - Copy/a.mp4", "Case - Copy/a.mp4", "h1"),
		res("/dst/Case - Copy/moved/b.mp4", "Case - Copy/moved/b.mp4", "h2"),
		res("/dst/Case - Copy/c.mp4", "Case - Copy/c.mp4", "zz"),
		res("/dst/x/e.mp4", "x/e.mp4", "h5"),
		res("/dst/y/e.mp4", "y/e.mp4", "h5"),
	}

	out, sum := Verify(sources, targets)
	require.Len(t, out, 5)

	tests := []struct {
		status Status
		match  MatchType
	}{
		{StatusMatch, MatchByPath},
		{StatusMatch, MatchByName},
		{StatusMismatch, MatchByPath},
		{StatusMissingTarget, MatchNone},
		{StatusAmbiguous, MatchNone},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.status, out[i].Status, sources[i].Path)
		assert.Equal(t, tt.match, out[i].MatchType, sources[i].Path)
	}
	assert.Contains(t, out[2].Notes, "hash mismatch")
	assert.Nil(t, out[3].Target)

	assert.Equal(t, VerifySummary{Total: 5, Matched: 2, Mismatched: 1, MissingTarget: 1, Ambiguous: 1}, sum)
	assert.False(t, sum.Passed())
}

func TestNormalizeRel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Case/a.mp4", "case/a.mp4"},
		{"Case - Copy/a.mp4", "case/a.mp4"},
		{"Case - Copy (2)/a.mp4", "case/a.mp4"},
		{"Case (3)/a.mp4", "case/a.mp4"},
		{"a - Copy.mp4", "a - copy.mp4"},
		{"Case/sub (2)/a.mp4", "case/sub (2)/a.mp4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeRel(tt.in), tt.in)
	}
}

func TestWriteVerificationCSV(t *testing.T) {
	out, _ := Verify(
		[]Result{res("/s/a", "a", "h1"), res("/s/b", "b", "h2")},
		[]Result{res("/t/a", "a", "h1")},
	)
	var buf bytes.Buffer
	require.NoError(t, WriteVerificationCSV(&buf, out, ReportMeta{
		GeneratedAt: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC),
		SourceRoot:  "/s",
		TargetRoot:  "/t",
	}))

	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "# Hash Verification Report", lines[0])
	assert.Equal(t, "# Generated: 2025-09-01T08:00:00Z", lines[1])
	assert.Contains(t, buf.String(), "# Total: 2, Matched: 1, Mismatched: 0, Missing: 1, Ambiguous: 0")

	var body []string
	for _, l := range lines {
		if !strings.HasPrefix(l, "#") {
			body = append(body, l)
		}
	}
	rows, err := csv.NewReader(strings.NewReader(strings.Join(body, "\n"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, VerificationHeader, rows[0])
	assert.Equal(t, []string{"/s/a", "/t/a", "a", "5", "h1", "h1", "MATCH", "relative_path", ""}, rows[1])
	assert.Equal(t, "MISSING_TARGET", rows[2][6])
}

func TestWriteHashCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHashCSV(&buf, []CopyRecord{
		{SourcePath: "/in/z.mp4", DestPath: "/out/z.mp4", SourceHash: "h", DestHash: "h", Verified: true},
		{SourcePath: "/in/a.mp4", DestPath: "/out/a.mp4", SourceHash: "h", DestHash: "x", Verified: false},
	}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, HashHeader, rows[0])
	assert.Equal(t, []string{"a.mp4", "/in/a.mp4", "/out/a.mp4", "h", "x", "FAILED"}, rows[1])
	assert.Equal(t, "PASSED", rows[2][5])
}
