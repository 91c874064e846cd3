package watcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/logging"
	"github.com/conneroisu/casefiler/internal/templates"
)

const (
	AcceptedDir = "accepted"
	RejectedDir = "rejected"
)

// HotFolder adds job files dropped into a directory to a queue. Accepted
// files move to accepted/, unreadable or invalid ones to rejected/.
type HotFolder struct {
	dir       string
	queue     *batch.Queue
	queueFile string
	logger    logging.Logger
}

// NewHotFolder returns an intake for dir. When queueFile is set the queue is
// saved there after each accepted batch.
func NewHotFolder(dir string, queue *batch.Queue, queueFile string, logger logging.Logger) *HotFolder {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &HotFolder{dir: dir, queue: queue, queueFile: queueFile, logger: logger.WithComponent("hotfolder")}
}

// Watch registers the intake on fw.
func (h *HotFolder) Watch(fw *FileWatcher) error {
	if err := os.MkdirAll(h.dir, 0o750); err != nil {
		return errors.WrapFile(err, "create hot folder", h.dir)
	}
	fw.AddFilter(NoTempFilter)
	fw.AddFilter(JobFileFilter)
	fw.AddHandler(h.Handle)
	return fw.AddPath(h.dir)
}

// Scan ingests job files already present, for startup.
func (h *HotFolder) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return 0, errors.WrapFile(err, "scan hot folder", h.dir)
	}
	var events []ChangeEvent
	for _, e := range entries {
		p := filepath.Join(h.dir, e.Name())
		if e.Type().IsRegular() && JobFileFilter(p) && NoTempFilter(p) {
			events = append(events, ChangeEvent{Type: EventTypeCreated, Path: p})
		}
	}
	before := h.queue.Len()
	err = h.Handle(ctx, events)
	return h.queue.Len() - before, err
}

// Handle ingests created or modified job files from one debounced batch.
func (h *HotFolder) Handle(ctx context.Context, events []ChangeEvent) error {
	accepted := 0
	for _, ev := range events {
		if ev.Type == EventTypeDeleted || ev.Type == EventTypeRenamed {
			continue
		}
		if _, err := os.Stat(ev.Path); err != nil {
			continue
		}

		job, err := batch.LoadJobFile(ev.Path)
		if err == nil {
			err = h.queue.Add(job)
		}
		if err != nil {
			h.logger.Warn(ctx, err, "rejected job file", "path", ev.Path)
			h.move(ctx, ev.Path, RejectedDir)
			continue
		}

		h.logger.Info(ctx, "queued job from hot folder", "path", ev.Path, "job_id", job.ID, "job_name", job.Name)
		h.move(ctx, ev.Path, AcceptedDir)
		accepted++
	}

	if accepted > 0 && h.queueFile != "" {
		if err := h.queue.Save(h.queueFile); err != nil {
			return err
		}
	}
	return nil
}

func (h *HotFolder) move(ctx context.Context, path, sub string) {
	dest := filepath.Join(h.dir, sub, filepath.Base(path))
	err := os.MkdirAll(filepath.Dir(dest), 0o750)
	if err == nil {
		err = os.Rename(path, dest)
	}
	if err != nil {
		h.logger.Warn(ctx, err, "could not move job file", "path", path, "dest", dest)
	}
}

// TemplateReloader returns a handler that reloads m on template changes.
func TemplateReloader(m *templates.Manager, logger logging.Logger) ChangeHandler {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return func(ctx context.Context, events []ChangeEvent) error {
		if err := m.Reload(); err != nil {
			return err
		}
		logger.Info(ctx, "templates reloaded", "changes", len(events), "templates", len(m.All()))
		return nil
	}
}

// WatchTemplates watches every template directory of m.
func WatchTemplates(fw *FileWatcher, m *templates.Manager, logger logging.Logger) error {
	fw.AddFilter(NoTempFilter)
	fw.AddFilter(TemplateFileFilter)
	fw.AddHandler(TemplateReloader(m, logger))
	for _, dir := range m.Dirs() {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.WrapFile(err, "create template directory", dir)
		}
		if err := fw.AddPath(dir); err != nil {
			return err
		}
	}
	return nil
}
