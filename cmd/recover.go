package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Inspect and restore an interrupted batch",
	Long: `While 'batch run' is processing, the queue is autosaved into
batch.recovery_dir. After a crash or Ctrl+C these commands show what was
saved and put it back into the queue.

Examples:
  casefiler recover check
  casefiler recover restore
  casefiler recover stats -o json
  casefiler recover export-log recovery.json`,
}

var recoverCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether an unfinished batch was saved",
	Args:  cobra.NoArgs,
	RunE:  runRecoverCheck,
}

var recoverRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the queue with the saved batch",
	Args:  cobra.NoArgs,
	RunE:  runRecoverRestore,
}

var recoverClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the autosave and backup files",
	Args:  cobra.NoArgs,
	RunE:  runRecoverClear,
}

var recoverStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the recovery files and settings",
	Args:  cobra.NoArgs,
	RunE:  runRecoverStats,
}

var recoverExportLogCmd = &cobra.Command{
	Use:   "export-log <file>",
	Short: "Write recovery stats and events as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecoverExportLog,
}

var recoverFlags *StandardFlags

func init() {
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.AddCommand(recoverCheckCmd, recoverRestoreCmd, recoverClearCmd, recoverStatsCmd, recoverExportLogCmd)

	recoverFlags = &StandardFlags{}
	recoverCmd.PersistentFlags().StringVarP(&recoverFlags.OutputFormat, "output", "o", "table",
		"Output format (table|json|yaml)")
	recoverCmd.PersistentFlags().BoolVarP(&recoverFlags.Quiet, "quiet", "q", false, "Suppress output")
}

func openRecovery(cmd *cobra.Command) (*app, *batch.RecoveryManager, error) {
	a, err := newApp(cmd, recoverFlags)
	if err != nil {
		return nil, nil, err
	}
	return a, a.recovery(nil), nil
}

func runRecoverCheck(cmd *cobra.Command, _ []string) error {
	a, rm, err := openRecovery(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	type checkResult struct {
		Recoverable bool       `json:"recoverable" yaml:"recoverable"`
		SavedAt     *time.Time `json:"saved_at,omitempty" yaml:"saved_at,omitempty"`
		Jobs        int        `json:"jobs" yaml:"jobs"`
		Unfinished  int        `json:"unfinished" yaml:"unfinished"`
		Processing  bool       `json:"processing_active" yaml:"processing_active"`
	}
	res := checkResult{}
	if d, ok := rm.Check(); ok {
		saved := d.SavedAt
		res = checkResult{
			Recoverable: true,
			SavedAt:     &saved,
			Jobs:        len(d.QueueData.Jobs),
			Unfinished:  d.Unfinished(),
			Processing:  d.ProcessingActive,
		}
	}
	return render(a.out, recoverFlags.OutputFormat, res, func(tw *tabwriter.Writer) {
		if !res.Recoverable {
			fmt.Fprintln(tw, "No unfinished batch found.")
			return
		}
		fmt.Fprintf(tw, "Saved at:\t%s\n", res.SavedAt.Format(time.RFC3339))
		fmt.Fprintf(tw, "Jobs:\t%d (%d unfinished)\n", res.Jobs, res.Unfinished)
		fmt.Fprintln(tw, "Run 'casefiler recover restore' to put them back in the queue.")
	})
}

func runRecoverRestore(cmd *cobra.Command, _ []string) error {
	a, rm, err := openRecovery(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	q := batch.NewQueue()
	restored, skipped, err := rm.Restore(q)
	if err != nil {
		return err
	}
	if err := a.saveQueue(q); err != nil {
		return err
	}
	printf(a.out, recoverFlags.Quiet, "Restored %d job(s), skipped %d; run 'casefiler batch run' to continue\n",
		restored, skipped)
	return nil
}

func runRecoverClear(cmd *cobra.Command, _ []string) error {
	a, rm, err := openRecovery(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := rm.Clear(); err != nil {
		return err
	}
	printf(a.out, recoverFlags.Quiet, "Recovery files removed\n")
	return nil
}

func runRecoverStats(cmd *cobra.Command, _ []string) error {
	a, rm, err := openRecovery(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s := rm.Stats()
	return render(a.out, recoverFlags.OutputFormat, s, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Directory:\t%s\n", s.Dir)
		fmt.Fprintf(tw, "Autosave:\t%t\n", s.AutosaveExists)
		fmt.Fprintf(tw, "Backup:\t%t\n", s.BackupExists)
		if s.LastSave != nil {
			fmt.Fprintf(tw, "Last save:\t%s\n", s.LastSave.Format(time.RFC3339))
		}
		fmt.Fprintf(tw, "Interval:\t%s\n", s.Interval)
	})
}

func runRecoverExportLog(cmd *cobra.Command, args []string) error {
	a, rm, err := openRecovery(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := rm.ExportLog(args[0]); err != nil {
		return err
	}
	printf(a.out, recoverFlags.Quiet, "Recovery log written to %s\n", args[0])
	return nil
}
