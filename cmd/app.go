package cmd

import (
	"context"
	"io"

	"github.com/conneroisu/casefiler/internal/archive"
	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/config"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/conneroisu/casefiler/internal/logging"
	"github.com/conneroisu/casefiler/internal/templates"
	"github.com/spf13/cobra"
)

// app is the configuration and logger shared by one command invocation.
// Commands build the services they need from it.
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	out     io.Writer
	closers []func() error
}

func newApp(cmd *cobra.Command, flags *StandardFlags) (*app, error) {
	if flags != nil {
		if err := flags.ValidateFlags(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeValidationFailed, "invalid flags")
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}
	if flags != nil && flags.Verbose {
		level = logging.LevelDebug
	}
	if flags != nil && flags.Quiet {
		level = logging.LevelError
	}

	logCfg := &logging.LoggerConfig{Level: level, Format: cfg.Logging.Format, Output: cmd.ErrOrStderr()}
	a := &app{cfg: cfg, out: cmd.OutOrStdout()}
	var logger logging.Logger = logging.NewLogger(logCfg)

	if cfg.Logging.FileDir != "" {
		fl, err := logging.NewFileLogger(logCfg, cfg.Logging.FileDir)
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
		}
		a.closers = append(a.closers, fl.Close)
		logger = logging.NewMultiLogger(logger, fl)
	}
	a.logger = logger
	return a, nil
}

// Close releases everything the command opened, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.CombineErrors(errs...)
}

func (a *app) templates() (*templates.Manager, error) {
	return templates.NewManager(a.cfg.Templates.UserDir, templates.WithLogger(a.logger))
}

// loadQueue reads the persisted queue. A missing file is an empty queue.
func (a *app) loadQueue(ctx context.Context) (*batch.Queue, error) {
	q := batch.NewQueue()
	path := a.cfg.Batch.QueueFile
	if !fileutils.Exists(path) {
		return q, nil
	}
	skipped, err := q.Load(path, a.logger)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		a.logger.Warn(ctx, nil, "skipped invalid jobs while loading queue", "skipped", skipped, "path", path)
	}
	return q, nil
}

func (a *app) saveQueue(q *batch.Queue) error {
	return q.Save(a.cfg.Batch.QueueFile)
}

func (a *app) recovery(q *batch.Queue) *batch.RecoveryManager {
	return batch.NewRecoveryManager(a.cfg.Batch.RecoveryDir, q,
		a.cfg.Batch.AutosaveInterval, a.cfg.Batch.ProcessingInterval, a.logger)
}

// uploader connects to the configured bucket, or returns nil when uploads
// are not configured.
func (a *app) uploader(ctx context.Context) (*archive.Uploader, error) {
	up := a.cfg.Archive.Upload
	if up.Bucket == "" {
		return nil, nil
	}
	u, err := archive.NewGCSUploader(ctx, up.Bucket, up.Prefix, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, u.Close)
	return u, nil
}
