package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileops"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/conneroisu/casefiler/internal/media"
	"github.com/spf13/cobra"
)

var organizeCmd = &cobra.Command{
	Use:     "organize [files or folders...]",
	Aliases: []string{"o"},
	Short:   "Copy evidence into the forensic folder structure",
	Long: `Copy files and folders into the folder structure built from the case form,
verify every copy with SHA-256, write the case reports and, when enabled,
create and upload archives.

Examples:
  casefiler organize -f case.yaml --dest /cases DVR_Export/
  casefiler organize --occurrence 2025-001 --business "Corner Store" \
      --location "42 Main St" --dest /cases --infer-times stills/ clip.mp4
  casefiler organize -f case.json -t simple_structure --dest /cases export/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOrganize,
}

var (
	organizeFlags      *StandardFlags
	organizeForm       *FormFlags
	organizeDest       string
	organizeTemplate   string
	organizeInferTimes bool
)

func init() {
	rootCmd.AddCommand(organizeCmd)

	organizeFlags = AddStandardFlags(organizeCmd, "output")
	organizeForm = AddFormFlags(organizeCmd)
	organizeCmd.Flags().StringVarP(&organizeDest, "dest", "d", "", "Output root directory")
	organizeCmd.Flags().StringVarP(&organizeTemplate, "template", "t", "", "Template id (default from config)")
	organizeCmd.Flags().BoolVar(&organizeInferTimes, "infer-times", false,
		"Fill missing video start/end from EXIF capture times of still images")
	_ = organizeCmd.MarkFlagRequired("dest")
}

// splitSources sorts arguments into files and folders, as absolute paths.
func splitSources(args []string) (files, folders []string, err error) {
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, nil, errors.WrapFile(err, "resolve source", arg)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, nil, errors.WrapFile(err, "stat source", arg)
		}
		if info.IsDir() {
			folders = append(folders, abs)
		} else {
			files = append(files, abs)
		}
	}
	return files, folders, nil
}

// inferTimes fills blank video times on form from the stills and video
// file names below sources.
func inferTimes(a *app, cmd *cobra.Command, form *forms.FormData, sources []string) error {
	ctx := commandContext(cmd)
	r, err := newTimeReader(a.cfg.Media).CaptureRange(sources)
	if errors.Is(err, media.ErrNoCaptureTime) {
		a.logger.Warn(ctx, err, "no capture times in EXIF data or file names; video times left as given")
		return nil
	}
	if err != nil {
		return err
	}
	if media.FillVideoRange(form, r) {
		a.logger.Info(ctx, "video times inferred from capture times",
			"files", r.Found, "start", r.Start, "end", r.End)
	}
	return nil
}

func runOrganize(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, organizeFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := commandContext(cmd)

	form, err := organizeForm.Form()
	if err != nil {
		return err
	}
	files, folders, err := splitSources(args)
	if err != nil {
		return err
	}
	if organizeInferTimes {
		if err := inferTimes(a, cmd, form, append(append([]string(nil), files...), folders...)); err != nil {
			return err
		}
	}

	dest, err := filepath.Abs(organizeDest)
	if err != nil {
		return errors.WrapFile(err, "resolve destination", organizeDest)
	}
	job := batch.NewJob("", form, files, folders, dest)
	job.TemplateID = organizeTemplate
	if err := job.Validate(); err != nil {
		return err
	}

	m, err := a.templates()
	if err != nil {
		return err
	}
	uploader, err := a.uploader(ctx)
	if err != nil {
		return err
	}
	p := batch.NewProcessor(a.cfg,
		batch.WithTemplates(m),
		batch.WithUploader(uploader),
		batch.WithProcessorLogger(a.logger),
	)

	var progress fileops.ProgressFunc = func(done, total int, current string) {
		a.logger.Debug(ctx, "copied", "done", done, "total", total, "file", current)
	}
	result, err := p.ProcessJob(ctx, job, progress)
	if err != nil {
		return err
	}

	return render(a.out, organizeFlags.OutputFormat, result, func(tw *tabwriter.Writer) {
		if organizeFlags.Quiet {
			return
		}
		fmt.Fprintf(tw, "Destination:\t%s\n", result.DestinationPath)
		fmt.Fprintf(tw, "Files copied:\t%d (%d verified, %s)\n",
			result.FileCount, result.VerifiedCount, fileops.FormatBytes(result.BytesCopied))
		for _, p := range result.ReportPaths {
			fmt.Fprintf(tw, "Report:\t%s\n", p)
		}
		for _, p := range result.ArchivePaths {
			fmt.Fprintf(tw, "Archive:\t%s\n", p)
		}
		for _, o := range result.UploadedObjects {
			fmt.Fprintf(tw, "Uploaded:\t%s\n", o)
		}
	})
}
