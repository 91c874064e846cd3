package batch

import (
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestJob returns a valid job over a fresh evidence tree.
func newTestJob(t *testing.T, name string) *Job {
	t.Helper()
	root := testutils.CreateEvidenceTree(t)
	return NewJob(name, testutils.CreateTestForm(),
		[]string{filepath.Join(root, "still.jpg")},
		[]string{filepath.Join(root, "DVR_Export")},
		t.TempDir())
}

func TestNewJob(t *testing.T) {
	job := NewJob("", testutils.CreateTestForm(), nil, nil, "/out")
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "Job 2025-123456", job.Name)
	assert.Equal(t, StatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	other := NewJob("named", testutils.CreateTestForm(), nil, nil, "/out")
	assert.Equal(t, "named", other.Name)
	assert.NotEqual(t, job.ID, other.ID)
}

func TestJobValidate(t *testing.T) {
	root := testutils.CreateEvidenceTree(t)
	file := filepath.Join(root, "still.jpg")
	folder := filepath.Join(root, "DVR_Export")

	tests := []struct {
		name   string
		mutate func(*Job)
		fields []string
	}{
		{name: "valid", mutate: func(*Job) {}},
		{
			name:   "missing form",
			mutate: func(j *Job) { j.Form = nil },
			fields: []string{"form_data"},
		},
		{
			name:   "invalid form",
			mutate: func(j *Job) { j.Form.OccurrenceNumber = "" },
			fields: []string{"occurrence_number"},
		},
		{
			name:   "no sources",
			mutate: func(j *Job) { j.Files, j.Folders = nil, nil },
			fields: []string{"files"},
		},
		{
			name:   "missing file",
			mutate: func(j *Job) { j.Files = []string{filepath.Join(root, "gone.mp4")} },
			fields: []string{"files"},
		},
		{
			name:   "folder given as file",
			mutate: func(j *Job) { j.Files = []string{folder} },
			fields: []string{"files"},
		},
		{
			name:   "file given as folder",
			mutate: func(j *Job) { j.Folders = []string{file} },
			fields: []string{"folders"},
		},
		{
			name:   "no output",
			mutate: func(j *Job) { j.OutputDir = " " },
			fields: []string{"output_directory"},
		},
		{
			name: "everything wrong",
			mutate: func(j *Job) {
				j.Form.OccurrenceNumber = ""
				j.Files, j.Folders = nil, nil
				j.OutputDir = ""
			},
			fields: []string{"occurrence_number", "files", "output_directory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("j", testutils.CreateTestForm(), []string{file}, []string{folder}, t.TempDir())
			tt.mutate(job)

			err := job.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			var vec *errors.ValidationErrorCollection
			require.True(t, errors.As(err, &vec), "got %T", err)
			got := map[string]bool{}
			for _, e := range vec.Errors {
				got[e.Field()] = true
			}
			for _, f := range tt.fields {
				assert.True(t, got[f], "missing error for %s in %v", f, vec.Errors)
			}
		})
	}
}

func TestJobCloneIsIndependent(t *testing.T) {
	job := newTestJob(t, "a")
	job.Result = &JobResult{ArchivePaths: []string{"a.zip"}}

	c := job.Clone()
	c.Form.OccurrenceNumber = "changed"
	c.Files[0] = "changed"
	c.Result.ArchivePaths[0] = "changed"

	assert.Equal(t, "2025-123456", job.Form.OccurrenceNumber)
	assert.NotEqual(t, "changed", job.Files[0])
	assert.Equal(t, "a.zip", job.Result.ArchivePaths[0])
}

func TestQueueAddGetRemove(t *testing.T) {
	q := NewQueue()
	job := newTestJob(t, "first")

	require.NoError(t, q.Add(job))
	assert.Equal(t, 1, q.Len())

	err := q.Add(job)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeValidationFailed))

	got, err := q.Get(job.ID)
	require.NoError(t, err)
	got.Name = "mutated"
	again, _ := q.Get(job.ID)
	assert.Equal(t, "first", again.Name, "Get must return a copy")

	bad := newTestJob(t, "bad")
	bad.OutputDir = ""
	assert.Error(t, q.Add(bad))
	assert.Equal(t, 1, q.Len())

	_, err = q.Get("nope")
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeJobNotFound))

	require.NoError(t, q.Remove(job.ID))
	assert.Equal(t, 0, q.Len())
	assert.True(t, errors.HasErrorCode(q.Remove(job.ID), errors.ErrCodeJobNotFound))
}

func TestQueueRemoveProcessing(t *testing.T) {
	q := NewQueue()
	job := newTestJob(t, "busy")
	require.NoError(t, q.Add(job))
	require.NoError(t, q.modify(job.ID, func(j *Job) { j.Status = StatusProcessing }))

	assert.Error(t, q.Remove(job.ID))
	assert.Equal(t, 1, q.Len())
}

func TestQueueReorder(t *testing.T) {
	q := NewQueue()
	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		j := newTestJob(t, name)
		require.NoError(t, q.Add(j))
		ids = append(ids, j.ID)
	}

	names := func() []string {
		var out []string
		for _, j := range q.Jobs() {
			out = append(out, j.Name)
		}
		return out
	}

	tests := []struct {
		from, to int
		want     []string
	}{
		{0, 3, []string{"b", "c", "d", "a"}},
		{3, 0, []string{"a", "b", "c", "d"}},
		{1, 2, []string{"a", "c", "b", "d"}},
		{2, 2, []string{"a", "c", "b", "d"}},
	}
	for _, tt := range tests {
		require.NoError(t, q.Reorder(tt.from, tt.to))
		assert.Equal(t, tt.want, names())
	}

	assert.Error(t, q.Reorder(-1, 0))
	assert.Error(t, q.Reorder(0, 4))
	assert.Len(t, ids, 4)
}

func TestQueueReorderTracksCurrent(t *testing.T) {
	q := NewQueue()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, q.Add(newTestJob(t, name)))
	}
	next, ok := q.NextPending()
	require.True(t, ok)
	assert.Equal(t, 0, q.CurrentIndex())

	require.NoError(t, q.Reorder(0, 2))
	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, next.ID, cur.ID)
	assert.Equal(t, 2, q.CurrentIndex())
}

func TestQueueStatusViews(t *testing.T) {
	q := NewQueue()
	statuses := []Status{StatusPending, StatusCompleted, StatusFailed, StatusPending, StatusProcessing}
	for i, s := range statuses {
		j := newTestJob(t, string(rune('a'+i)))
		require.NoError(t, q.Add(j))
		require.NoError(t, q.modify(j.ID, func(j *Job) { j.Status = s }))
	}

	assert.Equal(t, Stats{Total: 5, Pending: 2, Processing: 1, Completed: 1, Failed: 1}, q.Stats())
	assert.Len(t, q.Pending(), 2)
	assert.Len(t, q.Completed(), 1)
	assert.Len(t, q.Failed(), 1)
	assert.True(t, q.HasUnfinished())

	next, ok := q.NextPending()
	require.True(t, ok)
	assert.Equal(t, "a", next.Name)

	assert.Equal(t, 1, q.ResetFailed())
	assert.Len(t, q.Pending(), 3)
	assert.Equal(t, 0, q.ResetFailed())

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.HasUnfinished())
	_, ok = q.NextPending()
	assert.False(t, ok)
	assert.Equal(t, -1, q.CurrentIndex())
}

func TestQueueValidateAll(t *testing.T) {
	q := NewQueue()
	good := newTestJob(t, "good")
	bad := newTestJob(t, "bad")
	require.NoError(t, q.Add(good))
	require.NoError(t, q.Add(bad))

	require.NoError(t, q.modify(bad.ID, func(j *Job) {
		j.Form.OccurrenceNumber = ""
		j.OutputDir = ""
	}))

	sum := q.ValidateAll()
	assert.Equal(t, 1, sum.Valid)
	assert.Equal(t, 1, sum.Invalid)
	assert.Equal(t, 2, sum.TotalErrors)
	assert.Len(t, sum.Errors[bad.ID], 2)
	assert.NotContains(t, sum.Errors, good.ID)
}

func TestQueueOnChange(t *testing.T) {
	q := NewQueue()
	var calls atomic.Int32
	q.OnChange(func() {
		calls.Add(1)
		// Listeners may read the queue.
		_ = q.Stats()
	})

	job := newTestJob(t, "a")
	require.NoError(t, q.Add(job))
	require.NoError(t, q.Update(job))
	require.NoError(t, q.Remove(job.ID))
	q.Clear()

	assert.EqualValues(t, 4, calls.Load())
}
