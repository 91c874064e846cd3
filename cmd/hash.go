package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileops"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/conneroisu/casefiler/internal/hashing"
	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Compute and verify SHA-256 digests",
	Long: `Hash evidence files, or compare a source set against a copy of it.

Examples:
  casefiler hash compute DVR_Export/ still.jpg
  casefiler hash verify --source DVR_Export/ --target /cases/2025-001/DVR_Export --csv verify.csv`,
}

var hashComputeCmd = &cobra.Command{
	Use:   "compute <files or folders...>",
	Short: "Print the digest of every file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHashCompute,
}

var hashVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every source file has an identical target",
	Long: `Hash both sides and pair files by relative path, falling back to the file
name. The command fails unless every source file matched.`,
	Args: cobra.NoArgs,
	RunE: runHashVerify,
}

var (
	hashFlags      *StandardFlags
	hashSources    []string
	hashTargets    []string
	hashCSV        string
	hashTechnician string
)

func init() {
	rootCmd.AddCommand(hashCmd)
	hashCmd.AddCommand(hashComputeCmd, hashVerifyCmd)

	hashFlags = &StandardFlags{}
	hashCmd.PersistentFlags().StringVarP(&hashFlags.OutputFormat, "output", "o", "table",
		"Output format (table|json|yaml)")
	hashCmd.PersistentFlags().BoolVarP(&hashFlags.Quiet, "quiet", "q", false, "Suppress output")

	hashVerifyCmd.Flags().StringSliceVar(&hashSources, "source", nil, "Source files or folders")
	hashVerifyCmd.Flags().StringSliceVar(&hashTargets, "target", nil, "Target files or folders")
	hashVerifyCmd.Flags().StringVar(&hashCSV, "csv", "", "Write the verification report as CSV")
	hashVerifyCmd.Flags().StringVar(&hashTechnician, "technician", "", "Technician named in the CSV report")
	_ = hashVerifyCmd.MarkFlagRequired("source")
	_ = hashVerifyCmd.MarkFlagRequired("target")
}

type hashRow struct {
	Path   string `json:"path" yaml:"path"`
	Size   int64  `json:"size" yaml:"size"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a *app) hashPaths(cmd *cobra.Command, paths []string) ([]hashing.Result, error) {
	files, err := hashing.Discover(paths)
	if err != nil {
		return nil, err
	}
	ctx := commandContext(cmd)
	a.logger.Debug(ctx, "hashing", "files", len(files), "bytes", hashing.TotalSize(files))
	return hashing.HashFiles(ctx, files, a.cfg.Hashing.Workers, a.cfg.Copy.BufferSize)
}

func runHashCompute(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, hashFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.hashPaths(cmd, args)
	if err != nil {
		return err
	}

	rows := make([]hashRow, 0, len(results))
	var failed []error
	for _, r := range results {
		row := hashRow{Path: r.RelativePath, Size: r.Size, SHA256: r.Hash}
		if r.Err != nil {
			row.Error = r.Err.Error()
			failed = append(failed, r.Err)
		}
		rows = append(rows, row)
	}
	if err := render(a.out, hashFlags.OutputFormat, rows, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "SHA256\tSIZE\tPATH")
		for _, r := range rows {
			sum := r.SHA256
			if r.Error != "" {
				sum = "ERROR: " + r.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", sum, fileops.FormatBytes(r.Size), r.Path)
		}
	}); err != nil {
		return err
	}
	return errors.CombineErrors(failed...)
}

type verifyRow struct {
	Source string         `json:"source" yaml:"source"`
	Target string         `json:"target,omitempty" yaml:"target,omitempty"`
	Status hashing.Status `json:"status" yaml:"status"`
	Match  string         `json:"match" yaml:"match"`
	Notes  string         `json:"notes,omitempty" yaml:"notes,omitempty"`
}

type verifyOutput struct {
	Summary hashing.VerifySummary `json:"summary" yaml:"summary"`
	Passed  bool                  `json:"passed" yaml:"passed"`
	Files   []verifyRow           `json:"files" yaml:"files"`
	CSV     string                `json:"csv,omitempty" yaml:"csv,omitempty"`
}

func runHashVerify(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, hashFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := a.hashPaths(cmd, hashSources)
	if err != nil {
		return err
	}
	targets, err := a.hashPaths(cmd, hashTargets)
	if err != nil {
		return err
	}
	results, summary := hashing.Verify(sources, targets)

	out := verifyOutput{Summary: summary, Passed: summary.Passed(), CSV: hashCSV}
	for _, v := range results {
		row := verifyRow{
			Source: v.Source.RelativePath,
			Status: v.Status,
			Match:  string(v.MatchType),
			Notes:  v.Notes,
		}
		if v.Target != nil {
			row.Target = v.Target.RelativePath
		}
		out.Files = append(out.Files, row)
	}

	if hashCSV != "" {
		technician := hashTechnician
		if technician == "" {
			technician = a.cfg.Technician.Name
		}
		var buf bytes.Buffer
		meta := hashing.ReportMeta{
			GeneratedAt: time.Now(),
			SourceRoot:  joinRoots(hashSources),
			TargetRoot:  joinRoots(hashTargets),
			Technician:  technician,
		}
		if err := hashing.WriteVerificationCSV(&buf, results, meta); err != nil {
			return err
		}
		if err := fileutils.AtomicWrite(hashCSV, buf.Bytes()); err != nil {
			return errors.WrapFile(err, "write verification report", hashCSV)
		}
	}

	if err := render(a.out, hashFlags.OutputFormat, out, func(tw *tabwriter.Writer) {
		if hashFlags.Quiet {
			return
		}
		for _, r := range out.Files {
			if r.Status != hashing.StatusMatch {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Status, r.Source, r.Notes)
			}
		}
		fmt.Fprintf(tw, "Total:\t%d\n", summary.Total)
		fmt.Fprintf(tw, "Matched:\t%d\n", summary.Matched)
		fmt.Fprintf(tw, "Mismatched:\t%d\n", summary.Mismatched)
		fmt.Fprintf(tw, "Missing target:\t%d\n", summary.MissingTarget)
		fmt.Fprintf(tw, "Ambiguous:\t%d\n", summary.Ambiguous)
		if hashCSV != "" {
			fmt.Fprintf(tw, "Report:\t%s\n", hashCSV)
		}
	}); err != nil {
		return err
	}

	if !summary.Passed() {
		return &errors.CaseError{
			Type:     errors.ErrorTypeHashVerification,
			Code:     errors.ErrCodeHashMismatch,
			Message:  fmt.Sprintf("verification failed: %d of %d files did not match", summary.Total-summary.Matched, summary.Total),
			Severity: errors.SeverityCritical,
		}
	}
	return nil
}

func joinRoots(paths []string) string {
	var s string
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if i > 0 {
			s += string(os.PathListSeparator)
		}
		s += p
	}
	return s
}
