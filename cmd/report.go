package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/conneroisu/casefiler/internal/hashing"
	"github.com/conneroisu/casefiler/internal/reports"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate case PDF reports",
	Long: `Generate the time offset sheet or the technician upload log for a case
without running a full organize.

Examples:
  casefiler report time-offset -f case.yaml --dest /cases/2025-001/Documents
  casefiler report upload-log -f case.yaml --from-dir /cases/2025-001/DVR_Export`,
}

var reportTimeOffsetCmd = &cobra.Command{
	Use:   "time-offset",
	Short: "Write the DVR time offset sheet",
	Args:  cobra.NoArgs,
	RunE:  runReportTimeOffset,
}

var reportUploadLogCmd = &cobra.Command{
	Use:   "upload-log",
	Short: "Write the technician upload log",
	Long: `Write the upload log. File counts come from --files/--bytes, or are
counted from the folders given with --from-dir.`,
	Args: cobra.NoArgs,
	RunE: runReportUploadLog,
}

var (
	reportFlags   *StandardFlags
	reportForm    *FormFlags
	reportDest    string
	reportFromDir []string
	reportFiles   int
	reportBytes   int64
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportTimeOffsetCmd, reportUploadLogCmd)

	reportFlags = &StandardFlags{}
	reportCmd.PersistentFlags().BoolVarP(&reportFlags.Quiet, "quiet", "q", false, "Suppress output")
	reportCmd.PersistentFlags().StringVarP(&reportDest, "dest", "d", ".", "Directory the report is written to")

	// Both subcommands read the same case form.
	reportForm = AddFormFlags(reportTimeOffsetCmd)
	bindFormFlags(reportUploadLogCmd, reportForm)

	reportUploadLogCmd.Flags().StringSliceVar(&reportFromDir, "from-dir", nil, "Count files and bytes in these folders")
	reportUploadLogCmd.Flags().IntVar(&reportFiles, "files", 0, "Number of files uploaded")
	reportUploadLogCmd.Flags().Int64Var(&reportBytes, "bytes", 0, "Total bytes uploaded")
}

// reportFormData reads the case form and fills technician details from the
// configuration when the form leaves them blank.
func reportFormData(a *app) (*forms.FormData, error) {
	form, err := reportForm.Form()
	if err != nil {
		return nil, err
	}
	form.ApplyTechnicianDefaults(a.cfg.Technician.Name, a.cfg.Technician.Badge)
	if err := form.Validate(); err != nil {
		return nil, err
	}
	return form, nil
}

func writeReport(a *app, name string, write func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(reportDest, 0o755); err != nil {
		return errors.WrapFile(err, "create report directory", reportDest)
	}
	path := filepath.Join(reportDest, name)
	if err := fileutils.AtomicWrite(path, buf.Bytes()); err != nil {
		return errors.WrapFile(err, "write report", path)
	}
	printf(a.out, reportFlags.Quiet, "Report written to %s\n", path)
	return nil
}

func runReportTimeOffset(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, reportFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	form, err := reportFormData(a)
	if err != nil {
		return err
	}
	return writeReport(a, reports.TimeOffsetName(form.OccurrenceNumber), func(buf *bytes.Buffer) error {
		return reports.TimeOffsetReport(buf, form, time.Now())
	})
}

func runReportUploadLog(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, reportFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	form, err := reportFormData(a)
	if err != nil {
		return err
	}

	summary := reports.UploadSummary{FileCount: reportFiles, Verified: reportFiles, TotalBytes: reportBytes}
	if len(reportFromDir) > 0 {
		files, err := hashing.Discover(reportFromDir)
		if err != nil {
			return err
		}
		summary = reports.UploadSummary{
			FileCount:  len(files),
			Verified:   len(files),
			TotalBytes: hashing.TotalSize(files),
		}
	}
	return writeReport(a, reports.UploadLogName(form.OccurrenceNumber), func(buf *bytes.Buffer) error {
		return reports.UploadLog(buf, form, summary, time.Now())
	})
}
