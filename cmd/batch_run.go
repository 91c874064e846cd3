package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/progress"
	"github.com/conneroisu/casefiler/internal/templates"
	"github.com/conneroisu/casefiler/internal/watcher"
	"github.com/spf13/cobra"
)

var batchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every pending job in queue order",
	Long: `Process pending jobs one at a time. Progress is logged and, with
--progress-addr (or progress.addr), streamed as JSON events to WebSocket
clients on ws://<addr>/ws. A client may send {"action":"pause"} or
{"action":"resume"}; a pause takes effect between jobs. Ctrl+C stops after returning the current job to
pending; the queue is autosaved so the run can be resumed.

Examples:
  casefiler batch run
  casefiler batch run --progress-addr 127.0.0.1:8089
  casefiler batch run --resume --recovery-log recovery.json`,
	Args: cobra.NoArgs,
	RunE: runBatchRun,
}

var batchWatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Queue job files dropped into a directory",
	Long: `Watch a hot folder for .json, .yaml, .yml and .toml job files. Each valid file
is added to the queue and moved to accepted/; invalid files are moved to
rejected/. With --process the queue is run after every intake and template
edits are picked up without a restart.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchWatch,
}

var (
	batchProgressAddr string
	batchResume       bool
	batchRecoveryLog  string
	batchWatchProcess bool
	batchDebounce     time.Duration
)

func init() {
	batchCmd.AddCommand(batchRunCmd, batchWatchCmd)

	batchRunCmd.Flags().StringVar(&batchProgressAddr, "progress-addr", "",
		"Serve progress events over WebSocket on this address (default progress.addr)")
	batchRunCmd.Flags().BoolVar(&batchResume, "resume", false, "Restore an interrupted batch before running")
	batchRunCmd.Flags().StringVar(&batchRecoveryLog, "recovery-log", "", "Write the recovery event log to this file")

	batchWatchCmd.Flags().BoolVar(&batchWatchProcess, "process", false, "Run the queue after each intake")
	batchWatchCmd.Flags().DurationVar(&batchDebounce, "debounce", 500*time.Millisecond,
		"Quiet period before a burst of file events is handled")
}

// startProgress serves the hub on addr until ctx ends. The returned channel
// yields the server's exit error.
func startProgress(ctx context.Context, a *app, addr string) (*progress.Hub, <-chan error, error) {
	hub := progress.NewHub(a.cfg.Progress.AllowedOrigins, a.logger)
	srv, err := progress.Listen(addr, hub)
	if err != nil {
		_ = hub.Shutdown(ctx)
		return nil, nil, err
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	a.logger.Info(ctx, "progress server listening", "url", "ws://"+srv.Addr()+"/ws")
	return hub, done, nil
}

func newProcessor(ctx context.Context, a *app, m *templates.Manager, rm *batch.RecoveryManager, sinks ...batch.EventSink) (*batch.Processor, error) {
	u, err := a.uploader(ctx)
	if err != nil {
		return nil, err
	}
	return batch.NewProcessor(a.cfg,
		batch.WithTemplates(m),
		batch.WithUploader(u),
		batch.WithRecovery(rm),
		batch.WithSinks(append([]batch.EventSink{batch.LogSink{Logger: a.logger}}, sinks...)...),
		batch.WithProcessorLogger(a.logger),
	), nil
}

func runBatchRun(cmd *cobra.Command, _ []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := commandContext(cmd)

	rm := a.recovery(q)
	if batchResume {
		if _, ok := rm.Check(); ok {
			restored, skipped, err := rm.Restore(q)
			if err != nil {
				return err
			}
			a.logger.Info(ctx, "restored interrupted batch", "jobs", restored, "skipped", skipped)
		}
	}
	if len(q.Pending()) == 0 {
		printf(a.out, batchFlags.Quiet, "No pending jobs.\n")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sinks []batch.EventSink
	var hub *progress.Hub
	var serveDone <-chan error
	addr := batchProgressAddr
	if addr == "" {
		addr = a.cfg.Progress.Addr
	}
	if addr != "" {
		h, done, err := startProgress(runCtx, a, addr)
		if err != nil {
			return err
		}
		hub = h
		sinks = append(sinks, hub)
		serveDone = done
	}

	m, err := a.templates()
	if err != nil {
		return err
	}
	p, err := newProcessor(ctx, a, m, rm, sinks...)
	if err != nil {
		return err
	}
	if hub != nil {
		hub.OnControl(func(action string) {
			switch action {
			case "pause":
				p.Pause()
			case "resume":
				p.Resume()
			}
		})
	}
	recoveryDone := rm.Start(runCtx)

	res, runErr := p.Run(ctx, q)

	cancel()
	<-recoveryDone
	if serveDone != nil {
		if err := <-serveDone; err != nil {
			a.logger.Warn(ctx, err, "progress server shutdown")
		}
	}

	saveErr := a.saveQueue(q)
	if !q.HasUnfinished() {
		if err := rm.Clear(); err != nil {
			a.logger.Warn(ctx, err, "could not remove recovery files")
		}
	}
	if batchRecoveryLog != "" {
		if err := rm.ExportLog(batchRecoveryLog); err != nil {
			a.logger.Warn(ctx, err, "could not export recovery log", "path", batchRecoveryLog)
		}
	}

	if err := render(a.out, batchFlags.OutputFormat, res, func(tw *tabwriter.Writer) {
		if batchFlags.Quiet {
			return
		}
		fmt.Fprintf(tw, "Processed:\t%d of %d\n", res.Successful+res.Failed, res.Total)
		fmt.Fprintf(tw, "Succeeded:\t%d\n", res.Successful)
		fmt.Fprintf(tw, "Failed:\t%d\n", res.Failed)
		fmt.Fprintf(tw, "Success rate:\t%.1f%%\n", res.SuccessRate)
		fmt.Fprintf(tw, "Duration:\t%s\n", res.Duration.Round(time.Second))
		if res.Cancelled {
			fmt.Fprintln(tw, "Cancelled:\tremaining jobs are still pending")
		}
	}); err != nil {
		return err
	}
	return errors.CombineErrors(runErr, saveErr)
}

func runBatchWatch(cmd *cobra.Command, args []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := commandContext(cmd)

	fw, err := watcher.NewFileWatcher(batchDebounce, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = fw.Stop()
		fw.Wait()
	}()

	hf := watcher.NewHotFolder(args[0], q, a.cfg.Batch.QueueFile, a.logger)
	if err := hf.Watch(fw); err != nil {
		return err
	}

	if batchWatchProcess {
		stop, err := processOnIntake(ctx, a, q, fw)
		if err != nil {
			return err
		}
		defer stop()
	}

	n, err := hf.Scan(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		a.logger.Info(ctx, "queued job files already in hot folder", "jobs", n)
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	printf(a.out, batchFlags.Quiet, "Watching %s for job files (Ctrl+C to stop)\n", args[0])
	<-ctx.Done()
	return nil
}

// processOnIntake runs the queue whenever the hot folder accepts files and
// keeps templates in sync with their directories. The returned func waits
// for the background work to finish once ctx is done.
func processOnIntake(ctx context.Context, a *app, q *batch.Queue, fw *watcher.FileWatcher) (func(), error) {
	m, err := a.templates()
	if err != nil {
		return nil, err
	}
	rm := a.recovery(q)
	p, err := newProcessor(ctx, a, m, rm)
	if err != nil {
		return nil, err
	}

	tw, err := watcher.NewFileWatcher(batchDebounce, a.logger)
	if err != nil {
		return nil, err
	}
	if err := watcher.WatchTemplates(tw, m, a.logger); err != nil {
		_ = tw.Stop()
		return nil, err
	}
	if err := tw.Start(ctx); err != nil {
		_ = tw.Stop()
		return nil, err
	}
	trigger := make(chan struct{}, 1)
	kick := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}
	fw.AddHandler(func(context.Context, []watcher.ChangeEvent) error {
		kick()
		return nil
	})

	recoveryDone := rm.Start(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-trigger:
			}
			if len(q.Pending()) == 0 {
				continue
			}
			if _, err := p.Run(ctx, q); err != nil && ctx.Err() == nil {
				a.logger.Warn(ctx, err, "batch finished with failures")
			}
			if err := a.saveQueue(q); err != nil {
				a.logger.Error(ctx, err, "could not save queue")
			}
		}
	}()
	kick()

	return func() {
		<-loopDone
		<-recoveryDone
		_ = tw.Stop()
		tw.Wait()
	}, nil
}
