package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestQueueSaveLoad(t *testing.T) {
	q := NewQueue()
	a := newTestJob(t, "a")
	b := newTestJob(t, "b")
	c := newTestJob(t, "c")
	for _, j := range []*Job{a, b, c} {
		require.NoError(t, q.Add(j))
	}
	require.NoError(t, q.modify(b.ID, func(j *Job) {
		now := time.Now()
		j.Status = StatusProcessing
		j.StartTime = &now
	}))
	require.NoError(t, q.modify(c.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.Result = &JobResult{FileCount: 5}
	}))

	path := filepath.Join(t.TempDir(), "nested", "queue.json")
	require.NoError(t, q.Save(path))

	var file map[string]interface{}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &file))
	assert.Equal(t, QueueFileVersion, file["version"])
	assert.EqualValues(t, 3, file["total_jobs"])

	loaded := NewQueue()
	skipped, err := loaded.Load(path, logging.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)

	jobs := loaded.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{jobs[0].Name, jobs[1].Name, jobs[2].Name})
	assert.Equal(t, StatusPending, jobs[1].Status, "interrupted job returns to pending")
	assert.Nil(t, jobs[1].StartTime)
	assert.Equal(t, StatusCompleted, jobs[2].Status)
	assert.Equal(t, 5, jobs[2].Result.FileCount)
	assert.Equal(t, a.Form.OccurrenceNumber, jobs[0].Form.OccurrenceNumber)
}

func TestQueueLoadKeepsJobsWithMissingSources(t *testing.T) {
	q := NewQueue()
	good := newTestJob(t, "good")
	gone := newTestJob(t, "gone")
	require.NoError(t, q.Add(good))
	require.NoError(t, q.Add(gone))

	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, q.Save(path))

	// Evidence drive unplugged between runs.
	for _, s := range gone.Sources() {
		require.NoError(t, os.RemoveAll(s))
	}

	loaded := NewQueue()
	skipped, err := loaded.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Equal(t, 2, loaded.Len())
	require.NoError(t, loaded.Save(path))

	again := NewQueue()
	_, err = again.Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, again.Len())
	assert.Equal(t, gone.ID, again.Jobs()[1].ID)
	assert.Error(t, again.Jobs()[1].Validate(), "missing sources still fail validation")
}

func TestQueueLoadSkipsUnreadableEntries(t *testing.T) {
	q := NewQueue()
	good := newTestJob(t, "good")
	require.NoError(t, q.Add(good))
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, q.Save(path))

	var doc map[string]interface{}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	doc["jobs"] = append(doc["jobs"].([]interface{}), 42, map[string]interface{}{"name": "no id"})
	raw, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	loaded := NewQueue()
	skipped, err := loaded.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Equal(t, 1, loaded.Len())
	assert.Equal(t, good.ID, loaded.Jobs()[0].ID)
}

func TestQueueLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{{{"},
		{name: "no jobs key", content: `{"version":"1.0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			q := NewQueue()
			_, err := q.Load(path, nil)
			require.Error(t, err)
			assert.True(t, errors.HasErrorCode(err, errors.ErrCodeQueueCorrupt), "%v", err)
		})
	}

	_, err := NewQueue().Load(filepath.Join(dir, "missing.json"), nil)
	assert.Error(t, err)
}

func TestExportReportJSON(t *testing.T) {
	q := NewQueue()
	j := newTestJob(t, "done")
	require.NoError(t, q.Add(j))
	start := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	require.NoError(t, q.modify(j.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.StartTime, j.EndTime = &start, &end
		j.Result = &JobResult{FileCount: 5}
	}))

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, q.ExportReport(path))

	var report struct {
		QueueStatistics Stats `json:"queue_statistics"`
		Jobs            []struct {
			Name            string  `json:"job_name"`
			Status          string  `json:"status"`
			FileCount       int     `json:"file_count"`
			DurationSeconds float64 `json:"duration_seconds"`
		} `json:"jobs"`
	}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &report))

	assert.Equal(t, 1, report.QueueStatistics.Completed)
	require.Len(t, report.Jobs, 1)
	assert.Equal(t, "done", report.Jobs[0].Name)
	assert.Equal(t, "completed", report.Jobs[0].Status)
	assert.Equal(t, 5, report.Jobs[0].FileCount)
	assert.InDelta(t, 90, report.Jobs[0].DurationSeconds, 0.001)
}

func TestExportReportHTML(t *testing.T) {
	q := NewQueue()
	j := newTestJob(t, "<script>alert(1)</script>")
	require.NoError(t, q.Add(j))

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, q.ExportReport(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	z := html.NewTokenizer(f)
	scripts := 0
	rows := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.StartTagToken {
			name, _ := z.TagName()
			switch string(name) {
			case "script":
				scripts++
			case "tr":
				rows++
			}
		}
	}
	assert.Zero(t, scripts, "job names must be escaped")
	assert.Positive(t, rows)
}
