package batch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/conneroisu/casefiler/internal/logging"
	"github.com/ubuntu/decorate"
)

const (
	AutosaveFile = "batch_autosave.json"
	BackupFile   = "batch_backup.json"

	recoveryVersion = "1.0"
	maxLogEntries   = 500
)

// RecoveryData is the autosave payload.
type RecoveryData struct {
	Version          string    `json:"version"`
	SavedAt          time.Time `json:"saved_at"`
	ProcessingActive bool      `json:"processing_active"`
	AutoSave         bool      `json:"auto_save"`
	QueueData        QueueData `json:"queue_data"`
}

// QueueData is the queue snapshot inside an autosave.
type QueueData struct {
	Jobs            []*Job `json:"jobs"`
	CurrentJobIndex int    `json:"current_job_index"`
}

// Unfinished counts jobs still pending or processing.
func (d *RecoveryData) Unfinished() int {
	n := 0
	for _, j := range d.QueueData.Jobs {
		if j.Status == StatusPending || j.Status == StatusProcessing {
			n++
		}
	}
	return n
}

// RecoveryStats describes the recovery state on disk and in memory.
type RecoveryStats struct {
	Dir              string     `json:"dir" yaml:"dir"`
	AutosaveExists   bool       `json:"autosave_exists" yaml:"autosave_exists"`
	BackupExists     bool       `json:"backup_exists" yaml:"backup_exists"`
	LastSave         *time.Time `json:"last_save,omitempty" yaml:"last_save,omitempty"`
	SaveCount        int        `json:"save_count" yaml:"save_count"`
	ProcessingActive bool       `json:"processing_active" yaml:"processing_active"`
	Interval         string     `json:"interval" yaml:"interval"`
}

// LogEntry is one recovery event kept for ExportLog.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Event   string    `json:"event"`
	Message string    `json:"message"`
}

// RecoveryManager autosaves a queue so an interrupted batch can resume.
type RecoveryManager struct {
	dir                string
	queue              *Queue
	interval           time.Duration
	processingInterval time.Duration
	logger             logging.Logger

	mu         sync.Mutex
	processing bool
	lastSave   *time.Time
	saveCount  int
	log        []LogEntry

	changed chan struct{}
}

// NewRecoveryManager watches queue and autosaves it into dir.
func NewRecoveryManager(dir string, queue *Queue, interval, processingInterval time.Duration, logger logging.Logger) *RecoveryManager {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if processingInterval <= 0 {
		processingInterval = 30 * time.Second
	}
	r := &RecoveryManager{
		dir:                dir,
		queue:              queue,
		interval:           interval,
		processingInterval: processingInterval,
		logger:             logger.WithComponent("recovery"),
		changed:            make(chan struct{}, 1),
	}
	if queue != nil {
		queue.OnChange(r.onQueueChange)
	}
	return r
}

func (r *RecoveryManager) autosavePath() string { return filepath.Join(r.dir, AutosaveFile) }
func (r *RecoveryManager) backupPath() string   { return filepath.Join(r.dir, BackupFile) }

func (r *RecoveryManager) record(event, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, LogEntry{Time: time.Now(), Event: event, Message: msg})
	if len(r.log) > maxLogEntries {
		r.log = r.log[len(r.log)-maxLogEntries:]
	}
}

// onQueueChange asks the autosave loop for an immediate save while a batch
// is running. The send never blocks; one pending signal is enough.
func (r *RecoveryManager) onQueueChange() {
	r.mu.Lock()
	processing := r.processing
	r.mu.Unlock()
	if !processing {
		return
	}
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// SetProcessing switches between the idle and processing save intervals.
func (r *RecoveryManager) SetProcessing(active bool) {
	r.mu.Lock()
	r.processing = active
	r.mu.Unlock()
	if active {
		r.record("processing", "processing started")
	} else {
		r.record("processing", "processing stopped")
	}
}

func (r *RecoveryManager) currentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processing {
		return r.processingInterval
	}
	return r.interval
}

// Start runs the autosave loop until ctx is done, then saves once more if
// work is unfinished. The returned channel closes when the loop has exited.
func (r *RecoveryManager) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		timer := time.NewTimer(r.currentInterval())
		defer timer.Stop()

		save := func() {
			if err := r.Save(); err != nil {
				r.logger.Warn(ctx, err, "autosave failed")
			}
		}

		for {
			select {
			case <-ctx.Done():
				if r.queue != nil && r.queue.HasUnfinished() {
					save()
				}
				return
			case <-timer.C:
				if r.queue != nil && r.queue.Len() > 0 {
					save()
				}
			case <-r.changed:
				save()
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.currentInterval())
		}
	}()
	return done
}

// Save writes an autosave, rotating the previous one to the backup file.
func (r *RecoveryManager) Save() (err error) {
	defer decorate.OnError(&err, "could not autosave batch queue")

	if r.queue == nil {
		return errors.NewRecoveryError("no queue to save", nil)
	}
	r.mu.Lock()
	processing := r.processing
	r.mu.Unlock()

	data, err := json.MarshalIndent(RecoveryData{
		Version:          recoveryVersion,
		SavedAt:          time.Now(),
		ProcessingActive: processing,
		AutoSave:         true,
		QueueData: QueueData{
			Jobs:            r.queue.Jobs(),
			CurrentJobIndex: r.queue.CurrentIndex(),
		},
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return err
	}
	if fileutils.Exists(r.autosavePath()) {
		if err := os.Rename(r.autosavePath(), r.backupPath()); err != nil {
			return err
		}
	}
	if err := fileutils.AtomicWrite(r.autosavePath(), data); err != nil {
		return err
	}

	now := time.Now()
	r.mu.Lock()
	r.lastSave = &now
	r.saveCount++
	r.mu.Unlock()
	r.record("save", "autosave written")
	return nil
}

func readRecovery(path string) (*RecoveryData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d RecoveryData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Check returns the saved state when it still holds unfinished work. A
// corrupt autosave falls back to the backup.
func (r *RecoveryManager) Check() (*RecoveryData, bool) {
	for _, p := range []string{r.autosavePath(), r.backupPath()} {
		d, err := readRecovery(p)
		if err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn(context.Background(), err, "unreadable recovery file", "path", p)
			}
			continue
		}
		if d.Unfinished() == 0 {
			return nil, false
		}
		return d, true
	}
	return nil, false
}

// Restore loads the saved jobs into queue, returns interrupted jobs to
// pending, and removes the recovery files. Entries that cannot be decoded
// are dropped and counted as skipped.
func (r *RecoveryManager) Restore(queue *Queue) (restored, skipped int, err error) {
	defer decorate.OnError(&err, "could not restore batch queue")

	d, ok := r.Check()
	if !ok {
		return 0, 0, errors.NewRecoveryError("no recoverable batch found", nil)
	}

	raw, err := json.Marshal(d.QueueData)
	if err != nil {
		return 0, 0, err
	}
	jobs, skipped, err := decodeJobs(raw, r.logger)
	if err != nil {
		return 0, 0, err
	}
	queue.replace(jobs, -1)

	if err := r.Clear(); err != nil {
		return len(jobs), skipped, err
	}
	r.record("restore", "restored batch queue")
	return len(jobs), skipped, nil
}

// Clear deletes the autosave and backup files.
func (r *RecoveryManager) Clear() error {
	for _, p := range []string{r.autosavePath(), r.backupPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.NewRecoveryError("failed to remove recovery file", err).WithPath(p)
		}
	}
	r.record("clear", "recovery files removed")
	return nil
}

// Stats reports the current recovery state.
func (r *RecoveryManager) Stats() RecoveryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RecoveryStats{
		Dir:              r.dir,
		AutosaveExists:   fileutils.Exists(r.autosavePath()),
		BackupExists:     fileutils.Exists(r.backupPath()),
		SaveCount:        r.saveCount,
		ProcessingActive: r.processing,
		Interval:         r.interval.String(),
	}
	if r.lastSave != nil {
		t := *r.lastSave
		s.LastSave = &t
	} else if info, err := os.Stat(r.autosavePath()); err == nil {
		t := info.ModTime()
		s.LastSave = &t
	}
	if r.processing {
		s.Interval = r.processingInterval.String()
	}
	return s
}

// ExportLog writes the recorded recovery events and current stats as JSON.
func (r *RecoveryManager) ExportLog(path string) (err error) {
	defer decorate.OnError(&err, "could not export recovery log to %s", path)

	stats := r.Stats()
	r.mu.Lock()
	entries := append([]LogEntry(nil), r.log...)
	r.mu.Unlock()
	if entries == nil {
		entries = []LogEntry{}
	}

	data, err := json.MarshalIndent(struct {
		ExportedAt time.Time     `json:"exported_at"`
		Stats      RecoveryStats `json:"stats"`
		Events     []LogEntry    `json:"events"`
	}{time.Now(), stats, entries}, "", "  ")
	if err != nil {
		return err
	}
	return fileutils.AtomicWrite(path, data)
}
