package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/casefiler/internal/archive"
	"github.com/conneroisu/casefiler/internal/config"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileops"
	"github.com/conneroisu/casefiler/internal/hashing"
	"github.com/conneroisu/casefiler/internal/logging"
	"github.com/conneroisu/casefiler/internal/pathing"
	"github.com/conneroisu/casefiler/internal/reports"
	"github.com/conneroisu/casefiler/internal/templates"
)

// BatchResult summarises one Run.
type BatchResult struct {
	Total       int           `json:"total" yaml:"total"`
	Successful  int           `json:"successful" yaml:"successful"`
	Failed      int           `json:"failed" yaml:"failed"`
	SuccessRate float64       `json:"success_rate" yaml:"success_rate"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Cancelled   bool          `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
}

// Processor runs queued jobs one at a time.
type Processor struct {
	cfg       *config.Config
	templates *templates.Manager
	uploader  *archive.Uploader
	recovery  *RecoveryManager
	sinks     []EventSink
	logger    logging.Logger
	now       func() time.Time

	pauseMu sync.Mutex
	paused  bool
	resume  chan struct{}
}

type ProcessorOption func(*Processor)

// WithTemplates resolves job template ids through m instead of the built-in
// templates only.
func WithTemplates(m *templates.Manager) ProcessorOption {
	return func(p *Processor) { p.templates = m }
}

func WithUploader(u *archive.Uploader) ProcessorOption {
	return func(p *Processor) { p.uploader = u }
}

// WithRecovery switches r to its processing interval while Run is active.
func WithRecovery(r *RecoveryManager) ProcessorOption {
	return func(p *Processor) { p.recovery = r }
}

func WithSinks(sinks ...EventSink) ProcessorOption {
	return func(p *Processor) { p.sinks = append(p.sinks, sinks...) }
}

func WithProcessorLogger(l logging.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l.WithComponent("batch") }
}

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor returns a processor configured by cfg.
func NewProcessor(cfg *config.Config, opts ...ProcessorOption) *Processor {
	p := &Processor{
		cfg:    cfg,
		logger: logging.NopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) emit(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = p.now()
	}
	for _, s := range p.sinks {
		s.Publish(ctx, e)
	}
}

// Pause stops Run from starting another job. The job in flight finishes.
func (p *Processor) Pause() {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	if !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
}

// Resume lets a paused Run continue.
func (p *Processor) Resume() {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resume)
	}
}

// Paused reports whether Pause is in effect.
func (p *Processor) Paused() bool {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	return p.paused
}

func (p *Processor) waitIfPaused(ctx context.Context) error {
	p.pauseMu.Lock()
	if !p.paused {
		p.pauseMu.Unlock()
		return nil
	}
	ch := p.resume
	p.pauseMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes pending jobs in queue order until none remain or ctx ends.
// A job interrupted by cancellation is returned to pending. When any job
// fails the returned error is a batch processing error.
func (p *Processor) Run(ctx context.Context, q *Queue) (*BatchResult, error) {
	start := p.now()
	if p.recovery != nil {
		p.recovery.SetProcessing(true)
		defer p.recovery.SetProcessing(false)
	}

	res := &BatchResult{Total: len(q.Pending())}
	done := 0

	for {
		if err := p.waitIfPaused(ctx); err != nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		job, ok := q.NextPending()
		if !ok {
			break
		}

		err := p.runJob(ctx, q, job)
		if ctx.Err() != nil {
			break
		}
		done++
		if err != nil {
			res.Failed++
		} else {
			res.Successful++
		}

		total := res.Total
		if done > total {
			total = done
		}
		p.emit(ctx, Event{
			Type:      EventQueueProgress,
			Done:      done,
			Total:     total,
			Percent:   percent(done, total),
			Succeeded: res.Successful,
			Failed:    res.Failed,
		})
	}

	res.Duration = p.now().Sub(start)
	if done > 0 {
		res.SuccessRate = float64(res.Successful) * 100 / float64(done)
	}
	res.Cancelled = ctx.Err() != nil

	p.emit(context.WithoutCancel(ctx), Event{
		Type:      EventBatchCompleted,
		Message:   fmt.Sprintf("batch finished: %d succeeded, %d failed", res.Successful, res.Failed),
		Done:      done,
		Total:     res.Total,
		Percent:   percent(done, res.Total),
		Succeeded: res.Successful,
		Failed:    res.Failed,
	})

	if res.Cancelled {
		return res, ctx.Err()
	}
	if res.Failed > 0 {
		return res, errors.NewBatchProcessingError(res.Successful, res.Failed, nil)
	}
	return res, nil
}

// runJob drives one queued job through ProcessJob and records the outcome.
func (p *Processor) runJob(ctx context.Context, q *Queue, job *Job) error {
	started := p.now()
	_ = q.modify(job.ID, func(j *Job) {
		j.Status = StatusProcessing
		j.Error = ""
		j.StartTime = &started
		j.EndTime = nil
	})
	p.emit(ctx, Event{Type: EventJobStarted, JobID: job.ID, JobName: job.Name, Message: "job started"})

	result, err := p.ProcessJob(ctx, job, func(done, total int, current string) {
		p.emit(ctx, Event{
			Type: EventJobProgress, JobID: job.ID, JobName: job.Name,
			Message: current, Done: done, Total: total, Percent: percent(done, total),
		})
	})

	if ctx.Err() != nil {
		_ = q.modify(job.ID, func(j *Job) { j.resetRun() })
		return ctx.Err()
	}

	ended := p.now()
	if err != nil {
		_ = q.modify(job.ID, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
			j.EndTime = &ended
			j.Result = result
		})
		p.logger.Error(ctx, err, "job failed", "job_id", job.ID)
		p.emit(ctx, Event{Type: EventJobFailed, JobID: job.ID, JobName: job.Name, Error: errors.FormatError(err)})
		return err
	}

	_ = q.modify(job.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.EndTime = &ended
		j.Result = result
	})
	p.emit(ctx, Event{
		Type: EventJobCompleted, JobID: job.ID, JobName: job.Name,
		Message: fmt.Sprintf("%d files copied to %s", result.FileCount, result.DestinationPath),
	})
	return nil
}

// builder resolves the template for id. It returns nil, selecting the
// built-in forensic layout, when neither the job nor the configuration names
// a template.
func (p *Processor) builder(id string) (*templates.Builder, error) {
	if id == "" {
		id = p.cfg.Templates.Default
	}
	if id == "" {
		return nil, nil
	}
	opts := []templates.BuilderOption{
		templates.WithClock(p.now),
		templates.WithDocumentsName(p.cfg.Reports.DocumentsDir),
	}
	if p.templates != nil {
		return p.templates.Builder(id, opts...)
	}
	tpl, ok := templates.SystemTemplate(id)
	if !ok {
		return nil, errors.ErrTemplateNotFound(id)
	}
	return templates.NewBuilder(id, tpl, opts...)
}

// ProcessJob runs the full pipeline for job without touching any queue:
// folder layout, copy and verify, reports, archives and upload.
func (p *Processor) ProcessJob(ctx context.Context, job *Job, progress fileops.ProgressFunc) (*JobResult, error) {
	perf := logging.StartOperation(p.logger.With("job_id", job.ID), "process_job")
	now := p.now()

	if job.Form == nil {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "job has no form data")
	}
	form := *job.Form
	form.ApplyTechnicianDefaults(p.cfg.Technician.Name, p.cfg.Technician.Badge)
	if err := form.Validate(); err != nil {
		return nil, err
	}
	reportOpts := reports.OptionsFromConfig(p.cfg.Reports)
	if reportOpts.Any() {
		if err := form.RequireTechnician(); err != nil {
			return nil, err
		}
	}

	b, err := p.builder(job.TemplateID)
	if err != nil {
		return nil, err
	}
	var levels []string
	if b != nil {
		if levels, err = b.BuildLevels(&form).Unwrap(); err != nil {
			return nil, err
		}
	} else {
		levels = pathing.DefaultLayout(&form, now)
	}
	if len(levels) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, "template produced an empty folder path")
	}
	rel := filepath.Join(levels...)

	dest, err := pathing.ValidateDestination(filepath.Join(job.OutputDir, rel), job.OutputDir)
	if err != nil {
		return nil, err
	}

	sources, err := hashing.Discover(job.Sources())
	if err != nil {
		return nil, err
	}

	copier := fileops.NewCopier(
		fileops.WithBufferSize(p.cfg.Copy.BufferSize),
		fileops.WithWorkers(p.cfg.Copy.Workers),
		fileops.WithVerification(p.cfg.Hashing.Enabled),
		fileops.WithLogger(p.logger),
		fileops.WithProgress(progress),
	)
	copied, err := copier.CopyItems(ctx, job.Sources(), dest)
	result := &JobResult{DestinationPath: dest}
	if copied != nil {
		result.FileCount = copied.Summary.Successful
		result.VerifiedCount = copied.Summary.Verified
		result.BytesCopied = copied.Summary.TotalBytes
	}
	if err != nil {
		perf.EndWithError(ctx, err)
		return result, err
	}
	if result.FileCount != len(sources) {
		err := errors.NewFileOperationError(errors.ErrCodeFileCountMismatch,
			fmt.Sprintf("expected %d files, copied %d", len(sources), result.FileCount), dest, nil)
		perf.EndWithError(ctx, err)
		return result, err
	}

	var docDir string
	if b != nil {
		docDir = b.DocumentsDir(job.OutputDir, rel)
	} else {
		docDir = templates.DocumentsDir(job.OutputDir, rel, nil, p.cfg.Reports.DocumentsDir)
	}
	result.ReportPaths, err = reports.Generate(docDir, reports.Input{
		Form:    &form,
		Summary: reports.SummaryFromCopy(copied.Summary),
		Hashes:  copied.Records(),
	}, reportOpts, now)
	if err != nil {
		perf.EndWithError(ctx, err)
		return result, err
	}

	settings := archive.SettingsFromConfig(p.cfg.Archive)
	if p.cfg.Archive.AutoCreate && settings.Enabled() {
		name := pathing.SanitizeComponent(form.OccurrenceNumber) + "_Video_Recovery.zip"
		if b != nil {
			name = b.BuildArchiveName(&form)
		}
		infos, err := archive.CreateMultiLevel(ctx, filepath.Join(job.OutputDir, levels[0]), levels[1:], settings, name)
		for _, info := range infos {
			result.ArchivePaths = append(result.ArchivePaths, info.Path)
		}
		if err != nil {
			perf.EndWithError(ctx, err)
			return result, err
		}

		if p.uploader != nil {
			for _, path := range result.ArchivePaths {
				up, err := p.uploader.Upload(ctx, path)
				if err != nil {
					perf.EndWithError(ctx, err)
					return result, err
				}
				result.UploadedObjects = append(result.UploadedObjects, up.Object)
			}
		}
	}

	perf.End(ctx, "files", result.FileCount, "destination", dest)
	return result, nil
}
