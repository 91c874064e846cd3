package fileutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	tests := map[string]struct {
		existing string
		data     string
	}{
		"new file":        {data: "hello"},
		"overwrite":       {existing: "old content that is longer", data: "new"},
		"nested new file": {data: "nested"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "state.json")
			if name == "nested new file" {
				path = filepath.Join(dir, "a", "b", "state.json")
			}
			if tc.existing != "" {
				require.NoError(t, os.WriteFile(path, []byte(tc.existing), 0o644))
			}

			require.NoError(t, AtomicWrite(path, []byte(tc.data)))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tc.data, string(got))

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temporary file should be cleaned up")
		})
	}
}

func TestCopyPlain(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.json")
	dst := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(src, []byte("{}"), 0o644))

	require.NoError(t, CopyPlain(src, dst))
	assert.True(t, Exists(dst))

	assert.Error(t, CopyPlain(filepath.Join(dir, "missing"), dst))
}
