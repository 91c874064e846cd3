package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/casefiler/internal/config"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/stretchr/testify/require"
)

// EvidenceFiles is the content of the tree built by CreateEvidenceTree,
// keyed by path relative to the tree root.
var EvidenceFiles = map[string]string{
	"DVR_Export/cam1/clip_0001.mp4": "camera one first clip",
	"DVR_Export/cam1/clip_0002.mp4": "camera one second clip",
	"DVR_Export/cam2/clip_0001.mp4": "camera two first clip",
	"DVR_Export/player.exe":         "proprietary player",
	"still.jpg":                     "not really a jpeg",
}

// CreateEvidenceTree writes EvidenceFiles under a fresh temp dir and returns it.
func CreateEvidenceTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range EvidenceFiles {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
	return root
}

// WriteFile creates parent directories and writes content to path.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// CreateTestForm returns a valid form with every field set.
func CreateTestForm() *forms.FormData {
	start := time.Date(2025, 8, 28, 16, 30, 0, 0, time.UTC)
	end := time.Date(2025, 8, 28, 18, 15, 0, 0, time.UTC)
	extStart := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	extEnd := time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC)
	dvr := time.Date(2025, 9, 1, 11, 0, 0, 0, time.UTC)
	real := time.Date(2025, 9, 1, 10, 55, 0, 0, time.UTC)

	return &forms.FormData{
		OccurrenceNumber: "2025-123456",
		BusinessName:     "Corner Store",
		LocationAddress:  "42 Main St",
		VideoStart:       &start,
		VideoEnd:         &end,
		ExtractionStart:  &extStart,
		ExtractionEnd:    &extEnd,
		TimeOffset:       "DVR is 5 minutes ahead",
		DVRTime:          &dvr,
		RealTime:         &real,
		TechnicianName:   "Test Technician",
		BadgeNumber:      "12345",
	}
}

// CreateTestConfig returns a config rooted at dir with reports enabled and
// archives and the progress server disabled.
func CreateTestConfig(dir string) *config.Config {
	return &config.Config{
		Hashing: config.HashingConfig{Enabled: true, Algorithm: "sha256", Workers: 2},
		Copy:    config.CopyConfig{BufferSize: 64 * 1024, Workers: 2},
		Archive: config.ArchiveConfig{CompressionLevel: 6},
		Reports: config.ReportsConfig{
			TimeOffset:   true,
			UploadLog:    true,
			HashCSV:      true,
			DocumentsDir: "Documents",
		},
		Technician: config.TechnicianConfig{Name: "Test Technician", Badge: "12345"},
		Templates: config.TemplatesConfig{
			UserDir: filepath.Join(dir, "templates"),
			Default: "default_forensic",
		},
		Batch: config.BatchConfig{
			QueueFile:          filepath.Join(dir, "recovery", "batch_queue.json"),
			RecoveryDir:        filepath.Join(dir, "recovery"),
			AutosaveInterval:   time.Minute,
			ProcessingInterval: 10 * time.Second,
		},
		Logging: config.LoggingConfig{Level: "debug", Format: "text"},
	}
}

// SecurityTestCases provides path traversal vectors for destination checks.
var SecurityTestCases = struct {
	PathTraversal []string
}{
	PathTraversal: []string{
		"../../../etc/passwd",
		"..\\..\\..\\windows\\system32\\config\\sam",
		"/./../../etc/passwd",
		"../../../../../etc/passwd",
		"case/../../outside",
	},
}

// AssertFilePermissions checks the permission bits of path.
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode()
	require.Equal(t, expectedMode, actualMode&os.FileMode(0o777),
		"File %s has incorrect permissions: got %o, want %o",
		path, actualMode&os.FileMode(0o777), expectedMode)
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
