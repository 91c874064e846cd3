package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/templates"
	"github.com/conneroisu/casefiler/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestFilters(t *testing.T) {
	tests := []struct {
		path     string
		job      bool
		template bool
		notTemp  bool
	}{
		{"/hot/case.json", true, true, true},
		{"/hot/case.YAML", true, true, true},
		{"/hot/case.yml", true, true, true},
		{"/hot/case.toml", true, false, true},
		{"/hot/case.txt", false, false, true},
		{"/hot/.case.json", true, true, false},
		{"/hot/tmp-123.tmp", false, false, false},
		{"/hot/case.json~", false, false, false},
		{"/hot/archive.zip.partial", false, false, false},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			assert.Equal(t, tt.job, JobFileFilter(tt.path), "job")
			assert.Equal(t, tt.template, TemplateFileFilter(tt.path), "template")
			assert.Equal(t, tt.notTemp, NoTempFilter(tt.path), "temp")
		})
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.start(ctx)

	for i := 0; i < 5; i++ {
		d.events <- ChangeEvent{Type: EventTypeModified, Path: "b.json"}
	}
	d.events <- ChangeEvent{Type: EventTypeCreated, Path: "a.json"}

	select {
	case got := <-d.output:
		require.Len(t, got, 2)
		assert.Equal(t, "a.json", got[0].Path)
		assert.Equal(t, "b.json", got[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no flush")
	}
}

func TestAddPathRejectsFiles(t *testing.T) {
	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	file := testutils.WriteFile(t, filepath.Join(t.TempDir(), "x.json"), "{}")
	assert.Error(t, fw.AddPath(file))
	assert.Error(t, fw.AddPath(filepath.Join(t.TempDir(), "missing")))
	assert.NoError(t, fw.AddPath(t.TempDir()))
}

func TestFileWatcherDeliversFilteredEvents(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []string
	)
	fw.AddFilter(NoTempFilter)
	fw.AddFilter(JobFileFilter)
	fw.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			seen = append(seen, filepath.Base(e.Path))
		}
		return nil
	})
	require.NoError(t, fw.AddPath(dir))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))
	defer func() {
		cancel()
		require.NoError(t, fw.Stop())
		fw.Wait()
	}()

	testutils.WriteFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	testutils.WriteFile(t, filepath.Join(dir, "job.json"), "{}")

	testutils.WaitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, "job.json change delivered")

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, seen, "notes.txt")
	assert.Contains(t, seen, "job.json")
}

func writeJobFile(t *testing.T, dir, name string, evidence string) string {
	t.Helper()
	jf := batch.JobFile{
		Name:      "hot " + name,
		OutputDir: filepath.Join(t.TempDir(), "out"),
		Files:     []string{filepath.Join(evidence, "still.jpg")},
		Form:      *testutils.CreateTestForm(),
	}
	data, err := json.Marshal(jf)
	require.NoError(t, err)
	return testutils.WriteFile(t, filepath.Join(dir, name), string(data))
}

func TestHotFolderHandle(t *testing.T) {
	dir := t.TempDir()
	evidence := testutils.CreateEvidenceTree(t)
	queueFile := filepath.Join(t.TempDir(), "queue.json")

	q := batch.NewQueue()
	hf := NewHotFolder(dir, q, queueFile, nil)

	good := writeJobFile(t, dir, "good.json", evidence)
	bad := testutils.WriteFile(t, filepath.Join(dir, "bad.json"), `{"nope": true}`)

	err := hf.Handle(context.Background(), []ChangeEvent{
		{Type: EventTypeCreated, Path: good},
		{Type: EventTypeCreated, Path: bad},
		{Type: EventTypeDeleted, Path: filepath.Join(dir, "gone.json")},
	})
	require.NoError(t, err)

	require.Equal(t, 1, q.Len())
	assert.Equal(t, "hot good.json", q.Jobs()[0].Name)

	assert.FileExists(t, filepath.Join(dir, AcceptedDir, "good.json"))
	assert.FileExists(t, filepath.Join(dir, RejectedDir, "bad.json"))
	assert.NoFileExists(t, good)
	assert.NoFileExists(t, bad)

	saved := batch.NewQueue()
	_, err = saved.Load(queueFile, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Len())
}

func TestHotFolderScanAndWatch(t *testing.T) {
	dir := t.TempDir()
	evidence := testutils.CreateEvidenceTree(t)
	q := batch.NewQueue()
	hf := NewHotFolder(dir, q, "", nil)

	writeJobFile(t, dir, "early.json", evidence)
	n, err := hf.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fw, err := NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, hf.Watch(fw))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))
	defer func() {
		cancel()
		require.NoError(t, fw.Stop())
		fw.Wait()
	}()

	// Write elsewhere and rename in so the watcher sees a complete file.
	staged := writeJobFile(t, t.TempDir(), "late.json", evidence)
	require.NoError(t, os.Rename(staged, filepath.Join(dir, "late.json")))

	testutils.WaitFor(t, 3*time.Second, func() bool { return q.Len() == 2 }, "late job queued")
}

func TestTemplateReloader(t *testing.T) {
	m, err := templates.NewManager(t.TempDir())
	require.NoError(t, err)
	before := len(m.All())

	doc := `{"version":"1.0.0","templates":{"hot_reload":{"templateName":"Hot","structure":{"levels":[{"name":"Case","pattern":"{occurrence_number}"}]}}}}`
	testutils.WriteFile(t, filepath.Join(m.UserDir(), "hot.json"), doc)

	require.NoError(t, TemplateReloader(m, nil)(context.Background(), []ChangeEvent{{Path: "hot.json"}}))
	assert.Len(t, m.All(), before+1)
	_, err = m.Get("hot_reload")
	assert.NoError(t, err)
}
