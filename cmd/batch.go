package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:     "batch",
	Aliases: []string{"b"},
	Short:   "Queue jobs and process them in one run",
	Long: `Manage the persistent batch queue. The queue is stored in batch.queue_file and
autosaved into batch.recovery_dir while a run is in progress, so an
interrupted batch can be resumed with 'casefiler recover restore'.

Examples:
  casefiler batch add -f case.yaml --dest /cases DVR_Export/
  casefiler batch add --job-file job.toml
  casefiler batch list
  casefiler batch reorder 3 1
  casefiler batch run --progress-addr localhost:8089
  casefiler batch reset
  casefiler batch export summary.html
  casefiler batch watch /srv/intake --process`,
}

var batchAddCmd = &cobra.Command{
	Use:   "add [files or folders...]",
	Short: "Add a job to the queue",
	RunE:  runBatchAdd,
}

var batchListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List queued jobs",
	Args:    cobra.NoArgs,
	RunE:    runBatchList,
}

var batchRemoveCmd = &cobra.Command{
	Use:     "remove <job-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a job (a unique id prefix is enough)",
	Args:    cobra.ExactArgs(1),
	RunE:    runBatchRemove,
}

var batchReorderCmd = &cobra.Command{
	Use:   "reorder <from> <to>",
	Short: "Move a job to another position (positions start at 1)",
	Args:  cobra.ExactArgs(2),
	RunE:  runBatchReorder,
}

var batchClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every job from the queue",
	Args:  cobra.NoArgs,
	RunE:  runBatchClear,
}

var batchResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return failed jobs to pending",
	Args:  cobra.NoArgs,
	RunE:  runBatchReset,
}

var batchStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count jobs by status",
	Args:  cobra.NoArgs,
	RunE:  runBatchStats,
}

var batchValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every queued job",
	Args:  cobra.NoArgs,
	RunE:  runBatchValidate,
}

var batchExportCmd = &cobra.Command{
	Use:   "export <file.json|file.html>",
	Short: "Write a queue summary report",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchExport,
}

var (
	batchFlags      *StandardFlags
	batchForm       *FormFlags
	batchDest       string
	batchTemplate   string
	batchName       string
	batchJobFile    string
	batchInferTimes bool
)

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchAddCmd, batchListCmd, batchRemoveCmd, batchReorderCmd, batchClearCmd,
		batchResetCmd, batchStatsCmd, batchValidateCmd, batchExportCmd)

	batchFlags = &StandardFlags{}
	batchCmd.PersistentFlags().StringVarP(&batchFlags.OutputFormat, "output", "o", "table",
		"Output format (table|json|yaml)")
	batchCmd.PersistentFlags().BoolVarP(&batchFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	batchCmd.PersistentFlags().BoolVarP(&batchFlags.Quiet, "quiet", "q", false, "Suppress output")

	batchForm = AddFormFlags(batchAddCmd)
	batchAddCmd.Flags().StringVarP(&batchDest, "dest", "d", "", "Output root directory")
	batchAddCmd.Flags().StringVarP(&batchTemplate, "template", "t", "", "Template id (default from config)")
	batchAddCmd.Flags().StringVarP(&batchName, "name", "n", "", "Job name (default from occurrence number)")
	batchAddCmd.Flags().StringVar(&batchJobFile, "job-file", "", "Read the whole job from a .json, .yaml or .toml file")
	batchAddCmd.Flags().BoolVar(&batchInferTimes, "infer-times", false,
		"Fill missing video start/end from EXIF capture times of still images")
	AddFlagValidation(batchAddCmd, "job-file", ValidateFileExists)
}

// openQueue loads the persisted queue for a batch subcommand.
func openQueue(cmd *cobra.Command) (*app, *batch.Queue, error) {
	a, err := newApp(cmd, batchFlags)
	if err != nil {
		return nil, nil, err
	}
	q, err := a.loadQueue(commandContext(cmd))
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, q, nil
}

// resolveJobID accepts a full id or a unique prefix of one.
func resolveJobID(q *batch.Queue, arg string) (string, error) {
	var matches []string
	for _, j := range q.Jobs() {
		if j.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(j.ID, arg) {
			matches = append(matches, j.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.ErrJobNotFound(arg)
	case 1:
		return matches[0], nil
	default:
		return "", errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("job id prefix %q matches %d jobs", arg, len(matches)))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runBatchAdd(cmd *cobra.Command, args []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var job *batch.Job
	if batchJobFile != "" {
		if len(args) > 0 {
			return fmt.Errorf("--job-file cannot be combined with source arguments")
		}
		if job, err = batch.LoadJobFile(batchJobFile); err != nil {
			return err
		}
	} else {
		if len(args) == 0 {
			return fmt.Errorf("at least one file or folder is required")
		}
		if batchDest == "" {
			return fmt.Errorf("--dest is required")
		}
		form, err := batchForm.Form()
		if err != nil {
			return err
		}
		files, folders, err := splitSources(args)
		if err != nil {
			return err
		}
		if batchInferTimes {
			if err := inferTimes(a, cmd, form, append(append([]string(nil), files...), folders...)); err != nil {
				return err
			}
		}
		dest, err := filepath.Abs(batchDest)
		if err != nil {
			return errors.WrapFile(err, "resolve destination", batchDest)
		}
		job = batch.NewJob(batchName, form, files, folders, dest)
		job.TemplateID = batchTemplate
	}

	if err := q.Add(job); err != nil {
		return err
	}
	if err := a.saveQueue(q); err != nil {
		return err
	}
	return render(a.out, batchFlags.OutputFormat, job, func(tw *tabwriter.Writer) {
		if !batchFlags.Quiet {
			fmt.Fprintf(tw, "Queued %s\t%s\t(%d job(s) in queue)\n", shortID(job.ID), job.Name, q.Len())
		}
	})
}

func runBatchList(cmd *cobra.Command, _ []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs := q.Jobs()
	return render(a.out, batchFlags.OutputFormat, jobs, func(tw *tabwriter.Writer) {
		if len(jobs) == 0 {
			fmt.Fprintln(tw, "Queue is empty.")
			return
		}
		fmt.Fprintln(tw, "#\tID\tNAME\tSTATUS\tSOURCES\tTEMPLATE\tERROR")
		for i, j := range jobs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n", i+1, shortID(j.ID), j.Name, j.Status,
				len(j.Sources()), orDash(j.TemplateID), orDash(j.Error))
		}
	})
}

func runBatchRemove(cmd *cobra.Command, args []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveJobID(q, args[0])
	if err != nil {
		return err
	}
	if err := q.Remove(id); err != nil {
		return err
	}
	if err := a.saveQueue(q); err != nil {
		return err
	}
	printf(a.out, batchFlags.Quiet, "Removed job %s\n", shortID(id))
	return nil
}

func parsePosition(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid position %q, positions start at 1", s)
	}
	return n - 1, nil
}

func runBatchReorder(cmd *cobra.Command, args []string) error {
	from, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	to, err := parsePosition(args[1])
	if err != nil {
		return err
	}

	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := q.Reorder(from, to); err != nil {
		return err
	}
	if err := a.saveQueue(q); err != nil {
		return err
	}
	printf(a.out, batchFlags.Quiet, "Moved job %d to position %d\n", from+1, to+1)
	return nil
}

func runBatchClear(cmd *cobra.Command, _ []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n := q.Len()
	q.Clear()
	if err := a.saveQueue(q); err != nil {
		return err
	}
	printf(a.out, batchFlags.Quiet, "Removed %d job(s)\n", n)
	return nil
}

func runBatchReset(cmd *cobra.Command, _ []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n := q.ResetFailed()
	if err := a.saveQueue(q); err != nil {
		return err
	}
	printf(a.out, batchFlags.Quiet, "Reset %d failed job(s) to pending\n", n)
	return nil
}

func runBatchStats(cmd *cobra.Command, _ []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s := q.Stats()
	return render(a.out, batchFlags.OutputFormat, s, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Total:\t%d\n", s.Total)
		fmt.Fprintf(tw, "Pending:\t%d\n", s.Pending)
		fmt.Fprintf(tw, "Processing:\t%d\n", s.Processing)
		fmt.Fprintf(tw, "Completed:\t%d\n", s.Completed)
		fmt.Fprintf(tw, "Failed:\t%d\n", s.Failed)
	})
}

func runBatchValidate(cmd *cobra.Command, _ []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sum := q.ValidateAll()
	if err := render(a.out, batchFlags.OutputFormat, sum, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Valid:\t%d\n", sum.Valid)
		fmt.Fprintf(tw, "Invalid:\t%d\n", sum.Invalid)
		for id, msgs := range sum.Errors {
			for _, m := range msgs {
				fmt.Fprintf(tw, "  %s\t%s\n", shortID(id), m)
			}
		}
	}); err != nil {
		return err
	}
	if sum.Invalid > 0 {
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("%d job(s) failed validation with %d error(s)", sum.Invalid, sum.TotalErrors))
	}
	return nil
}

func runBatchExport(cmd *cobra.Command, args []string) error {
	a, q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := q.ExportReport(args[0]); err != nil {
		return err
	}
	printf(a.out, batchFlags.Quiet, "Exported %d job(s) to %s\n", q.Len(), args[0])
	return nil
}
