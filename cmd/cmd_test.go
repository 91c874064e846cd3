package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/conneroisu/casefiler/internal/hashing"
	"github.com/conneroisu/casefiler/internal/media"
	"github.com/conneroisu/casefiler/internal/templates"
	"github.com/conneroisu/casefiler/internal/testutils"
	"github.com/conneroisu/casefiler/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags returns every flag in the tree to its default so commands can
// be executed more than once per process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// writeTestConfig writes a configuration that keeps all state under dir and
// skips the PDF reports.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	content := fmt.Sprintf(`hashing:
  workers: 2
copy:
  buffer_size: 65536
reports:
  time_offset: false
  upload_log: false
  hash_csv: true
technician:
  name: Test Technician
  badge: "12345"
templates:
  user_dir: %q
batch:
  queue_file: %q
  recovery_dir: %q
logging:
  level: error
`, filepath.Join(dir, "templates"), filepath.Join(dir, "recovery", "batch_queue.json"),
		filepath.Join(dir, "recovery"))
	return testutils.WriteFile(t, filepath.Join(dir, "casefiler.yml"), content)
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestForm(t *testing.T, dir string) string {
	t.Helper()
	data, err := forms.Encode(testutils.CreateTestForm(), forms.FormatJSON)
	require.NoError(t, err)
	return testutils.WriteFile(t, filepath.Join(dir, "case.json"), string(data))
}

func TestTemplateListCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	out, err := executeCommand(t, "template", "list", "-o", "json", "--config", cfg)
	require.NoError(t, err)

	var rows []struct {
		ID     string `json:"id"`
		Source string `json:"source"`
		Levels int    `json:"levels"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.NotEmpty(t, rows)

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
		assert.Positive(t, r.Levels, r.ID)
	}
	assert.Contains(t, ids, "default_forensic")
}

func TestTemplateFieldsCommand(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())

	out, err := executeCommand(t, "template", "fields", "-o", "json", "--config", cfg)
	require.NoError(t, err)

	var docs []templates.FieldDoc
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	assert.Len(t, docs, len(templates.FieldDocs()))
}

func TestTemplateShowUnknown(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())

	_, err := executeCommand(t, "template", "show", "no_such_template", "--config", cfg)
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeTemplateNotFound), err.Error())
}

func TestOrganizeCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	form := writeTestForm(t, dir)
	src := testutils.CreateEvidenceTree(t)
	dest := filepath.Join(dir, "cases")

	out, err := executeCommand(t, "organize", "--config", cfg, "-f", form, "--dest", dest, "-o", "json",
		filepath.Join(src, "DVR_Export"), filepath.Join(src, "still.jpg"))
	require.NoError(t, err)

	var res batch.JobResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, len(testutils.EvidenceFiles), res.FileCount)
	assert.Equal(t, len(testutils.EvidenceFiles), res.VerifiedCount)
	assert.True(t, strings.HasPrefix(res.DestinationPath, dest), res.DestinationPath)
	require.Len(t, res.ReportPaths, 1)
	assert.FileExists(t, res.ReportPaths[0])

	data, err := os.ReadFile(filepath.Join(res.DestinationPath, "DVR_Export", "player.exe"))
	require.NoError(t, err)
	assert.Equal(t, testutils.EvidenceFiles["DVR_Export/player.exe"], string(data))
}

func TestOrganizeRequiresDest(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	src := testutils.CreateEvidenceTree(t)

	_, err := executeCommand(t, "organize", "--config", cfg, "--occurrence", "2025-1", "--business", "Store",
		filepath.Join(src, "still.jpg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dest")
}

func TestBatchWorkflow(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	form := writeTestForm(t, dir)
	src := testutils.CreateEvidenceTree(t)
	dest := filepath.Join(dir, "cases")

	_, err := executeCommand(t, "batch", "add", "--config", cfg, "-f", form, "--dest", dest, "-n", "first",
		filepath.Join(src, "DVR_Export"))
	require.NoError(t, err)
	_, err = executeCommand(t, "batch", "add", "--config", cfg, "-f", form, "--dest", dest, "-n", "second",
		"--occurrence", "2025-654321", filepath.Join(src, "still.jpg"))
	require.NoError(t, err)

	listJobs := func() []*batch.Job {
		out, err := executeCommand(t, "batch", "list", "-o", "json", "--config", cfg)
		require.NoError(t, err)
		var jobs []*batch.Job
		require.NoError(t, json.Unmarshal([]byte(out), &jobs))
		return jobs
	}

	jobs := listJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "first", jobs[0].Name)
	assert.Equal(t, "second", jobs[1].Name)

	_, err = executeCommand(t, "batch", "reorder", "2", "1", "--config", cfg)
	require.NoError(t, err)
	jobs = listJobs()
	assert.Equal(t, "second", jobs[0].Name)

	out, err := executeCommand(t, "batch", "run", "-o", "json", "--config", cfg)
	require.NoError(t, err)
	var res batch.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Successful)
	assert.Zero(t, res.Failed)

	for _, j := range listJobs() {
		assert.Equal(t, batch.StatusCompleted, j.Status, j.Name)
	}
	assert.DirExists(t, filepath.Join(dest, "2025-123456"))
	assert.DirExists(t, filepath.Join(dest, "2025-654321"))

	_, err = executeCommand(t, "batch", "remove", jobs[0].ID[:8], "--config", cfg)
	require.NoError(t, err)
	assert.Len(t, listJobs(), 1)

	_, err = executeCommand(t, "batch", "clear", "--config", cfg)
	require.NoError(t, err)
	assert.Empty(t, listJobs())
}

func TestBatchAddRejectsJobFileWithSources(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	jobFile := testutils.WriteFile(t, filepath.Join(dir, "job.json"), "{}")

	_, err := executeCommand(t, "batch", "add", "--config", cfg, "--job-file", jobFile, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--job-file")
}

func TestBatchReorderInvalidPosition(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())

	_, err := executeCommand(t, "batch", "reorder", "0", "1", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positions start at 1")
}

func TestRecoverCheckWithoutAutosave(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())

	out, err := executeCommand(t, "recover", "check", "-o", "json", "--config", cfg)
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, false, res["recoverable"])
}

func TestHashVerifyCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	src := testutils.CreateEvidenceTree(t)
	dst := testutils.CreateEvidenceTree(t)
	csvPath := filepath.Join(dir, "verify.csv")

	args := []string{"hash", "verify", "--config", cfg, "-o", "json",
		"--source", filepath.Join(src, "DVR_Export"), "--target", filepath.Join(dst, "DVR_Export"),
		"--csv", csvPath}

	out, err := executeCommand(t, args...)
	require.NoError(t, err)
	var res struct {
		Summary hashing.VerifySummary `json:"summary"`
		Passed  bool                  `json:"passed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Passed)
	assert.Equal(t, 4, res.Summary.Matched)
	assert.FileExists(t, csvPath)

	testutils.WriteFile(t, filepath.Join(dst, "DVR_Export", "player.exe"), "tampered")
	out, err = executeCommand(t, args...)
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeHashMismatch), err.Error())
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.Summary.Mismatched)

	csv, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "MISMATCH")
}

func TestHashComputeCommand(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())
	src := testutils.CreateEvidenceTree(t)

	out, err := executeCommand(t, "hash", "compute", "-o", "json", "--config", cfg, filepath.Join(src, "still.jpg"))
	require.NoError(t, err)

	var rows []hashRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "still.jpg", rows[0].Path)
	assert.Len(t, rows[0].SHA256, 64)
}

func TestArchiveCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	src := testutils.CreateEvidenceTree(t)
	zipPath := filepath.Join(dir, "out", "export.zip")

	out, err := executeCommand(t, "archive", "--config", cfg, "--zip", zipPath, "--level", "0", "-o", "json",
		filepath.Join(src, "DVR_Export"))
	require.NoError(t, err)

	var res struct {
		Path  string `json:"path"`
		Files int    `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, zipPath, res.Path)
	assert.Equal(t, 4, res.Files)
	assert.FileExists(t, zipPath)
}

func TestArchiveUploadNeedsBucket(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	src := testutils.CreateEvidenceTree(t)

	_, err := executeCommand(t, "archive", "--config", cfg, "--upload", filepath.Join(src, "DVR_Export"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.upload.bucket")
}

func TestProbeCommandWithoutExif(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())
	src := testutils.CreateEvidenceTree(t)

	out, err := executeCommand(t, "probe", "-o", "json", "--config", cfg, src)
	require.NoError(t, err)

	var r media.Range
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Zero(t, r.Found)
	require.Len(t, r.Probes, 4)
	for _, p := range r.Probes {
		assert.NotEmpty(t, p.Error, p.Path)
	}
}

func TestCaptureTimesFromFilenamesCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	src := filepath.Join(dir, "export")
	testutils.WriteFile(t, filepath.Join(src, "20230101_123045678.mp4"), "video")
	testutils.WriteFile(t, filepath.Join(src, "file_161048_C.mp4"), "video")
	csvPath := filepath.Join(dir, "timecodes.csv")

	out, err := executeCommand(t, "probe", "-o", "json", "--config", cfg,
		"--fps", "25", "--csv", csvPath, src)
	require.NoError(t, err)

	var r media.Range
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 1, r.Found)
	require.Len(t, r.Probes, 2)
	assert.Equal(t, "12:30:45:17", r.Probes[0].Timecode)
	assert.Equal(t, "16:10:48:00", r.Probes[1].Timecode)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "smpte_timecode")
	assert.Contains(t, string(data), "file_161048_C.mp4")
	assert.Contains(t, string(data), "time_before_c")
}

func TestUnknownFilenamePatternRejected(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())
	src := testutils.CreateEvidenceTree(t)

	_, err := executeCommand(t, "probe", "--config", cfg, "--pattern", "nope", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pattern")
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "generated.yml")

	_, err := executeCommand(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = executeCommand(t, "config", "init", "--path", path)
	require.Error(t, err)

	// Defaults only warn about the missing technician name.
	out, err := executeCommand(t, "config", "validate", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "technician.name")

	_, err = executeCommand(t, "config", "validate", "--file", path, "--strict")
	require.Error(t, err)
}

func TestConfigValidateErrors(t *testing.T) {
	dir := t.TempDir()
	path := testutils.WriteFile(t, filepath.Join(dir, "bad.yml"), "archive:\n  compression_level: 12\n")

	out, err := executeCommand(t, "config", "validate", "--file", path)
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeConfigInvalid))
	assert.Contains(t, out, "archive.compression_level")
}

func TestMissingExplicitConfig(t *testing.T) {
	_, err := executeCommand(t, "template", "list", "--config", filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version", "-o", "json")
	require.NoError(t, err)

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)

	out, err = executeCommand(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Get().Version, strings.TrimSpace(out))

	_, err = executeCommand(t, "version", "--short", "--detailed")
	require.Error(t, err)
}
