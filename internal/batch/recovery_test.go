package batch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/casefiler/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecoveryFixture(t *testing.T, jobs int) (*Queue, *RecoveryManager, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "recovery")
	q := NewQueue()
	for i := 0; i < jobs; i++ {
		require.NoError(t, q.Add(newTestJob(t, string(rune('a'+i)))))
	}
	return q, NewRecoveryManager(dir, q, time.Hour, time.Hour, nil), dir
}

func TestRecoverySaveAndCheck(t *testing.T) {
	_, rm, dir := newRecoveryFixture(t, 2)

	_, ok := rm.Check()
	assert.False(t, ok, "nothing saved yet")

	require.NoError(t, rm.Save())
	assert.FileExists(t, filepath.Join(dir, AutosaveFile))
	assert.NoFileExists(t, filepath.Join(dir, BackupFile))

	require.NoError(t, rm.Save())
	assert.FileExists(t, filepath.Join(dir, BackupFile), "second save rotates the first to backup")

	data, ok := rm.Check()
	require.True(t, ok)
	assert.Equal(t, 2, data.Unfinished())
	assert.True(t, data.AutoSave)
	assert.Equal(t, recoveryVersion, data.Version)

	stats := rm.Stats()
	assert.Equal(t, 2, stats.SaveCount)
	assert.True(t, stats.AutosaveExists)
	assert.True(t, stats.BackupExists)
	require.NotNil(t, stats.LastSave)
}

func TestRecoveryCheckIgnoresFinishedQueue(t *testing.T) {
	q, rm, _ := newRecoveryFixture(t, 1)
	job := q.Jobs()[0]
	require.NoError(t, q.modify(job.ID, func(j *Job) { j.Status = StatusCompleted }))
	require.NoError(t, rm.Save())

	_, ok := rm.Check()
	assert.False(t, ok)
}

func TestRecoveryCheckFallsBackToBackup(t *testing.T) {
	_, rm, dir := newRecoveryFixture(t, 1)
	require.NoError(t, rm.Save())
	require.NoError(t, rm.Save())

	require.NoError(t, os.WriteFile(filepath.Join(dir, AutosaveFile), []byte("corrupt"), 0o644))

	data, ok := rm.Check()
	require.True(t, ok)
	assert.Len(t, data.QueueData.Jobs, 1)
}

func TestRecoveryRestore(t *testing.T) {
	q, rm, dir := newRecoveryFixture(t, 3)
	jobs := q.Jobs()
	require.NoError(t, q.modify(jobs[0].ID, func(j *Job) { j.Status = StatusCompleted }))
	require.NoError(t, q.modify(jobs[1].ID, func(j *Job) { j.Status = StatusProcessing }))
	require.NoError(t, rm.Save())

	fresh := NewQueue()
	restored, skipped, err := rm.Restore(fresh)
	require.NoError(t, err)
	assert.Equal(t, 3, restored)
	assert.Equal(t, 0, skipped)

	got := fresh.Jobs()
	require.Len(t, got, 3)
	assert.Equal(t, StatusCompleted, got[0].Status)
	assert.Equal(t, StatusPending, got[1].Status)
	assert.Equal(t, StatusPending, got[2].Status)

	assert.NoFileExists(t, filepath.Join(dir, AutosaveFile))
	assert.NoFileExists(t, filepath.Join(dir, BackupFile))

	_, _, err = rm.Restore(NewQueue())
	assert.Error(t, err, "nothing left to restore")
}

func TestRecoveryRestoreKeepsJobsWithMissingSources(t *testing.T) {
	q, rm, _ := newRecoveryFixture(t, 2)
	require.NoError(t, rm.Save())

	gone := q.Jobs()[1]
	for _, s := range gone.Sources() {
		require.NoError(t, os.RemoveAll(s))
	}

	fresh := NewQueue()
	restored, skipped, err := rm.Restore(fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, gone.ID, fresh.Jobs()[1].ID)
}

func TestRecoveryClearMissingFiles(t *testing.T) {
	_, rm, _ := newRecoveryFixture(t, 0)
	assert.NoError(t, rm.Clear())
}

func TestRecoveryAutosaveOnChangeWhileProcessing(t *testing.T) {
	q, rm, dir := newRecoveryFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := rm.Start(ctx)
	defer func() {
		cancel()
		<-done
	}()

	// Idle changes wait for the interval.
	require.NoError(t, q.Add(newTestJob(t, "idle")))
	time.Sleep(50 * time.Millisecond)
	assert.NoFileExists(t, filepath.Join(dir, AutosaveFile))

	rm.SetProcessing(true)
	require.NoError(t, q.Add(newTestJob(t, "busy")))
	testutils.WaitFor(t, 2*time.Second, func() bool {
		_, err := os.Stat(filepath.Join(dir, AutosaveFile))
		return err == nil
	}, "autosave after change while processing")
	assert.True(t, rm.Stats().ProcessingActive)
}

func TestRecoverySavesOnShutdown(t *testing.T) {
	_, rm, dir := newRecoveryFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := rm.Start(ctx)
	cancel()
	<-done

	assert.FileExists(t, filepath.Join(dir, AutosaveFile), "autosave on shutdown with unfinished work")
}

func TestRecoveryExportLog(t *testing.T) {
	_, rm, _ := newRecoveryFixture(t, 1)
	rm.SetProcessing(true)
	require.NoError(t, rm.Save())
	rm.SetProcessing(false)

	path := filepath.Join(t.TempDir(), "log.json")
	require.NoError(t, rm.ExportLog(path))

	var out struct {
		Stats  RecoveryStats `json:"stats"`
		Events []LogEntry    `json:"events"`
	}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))

	var events []string
	for _, e := range out.Events {
		events = append(events, e.Event)
	}
	assert.Equal(t, []string{"processing", "save", "processing"}, events)
	assert.Equal(t, 1, out.Stats.SaveCount)
}
