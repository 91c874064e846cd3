package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/conneroisu/casefiler/internal/archive"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileops"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <folder>",
	Short: "Zip a folder and optionally upload it",
	Long: `Create a ZIP archive of a folder. Entries keep the folder name as their
first path component. With --upload the archive is sent to the bucket in
archive.upload; an object that already exists is left untouched.

Examples:
  casefiler archive /cases/2025-001
  casefiler archive /cases/2025-001 --zip /tmp/2025-001.zip --level 9
  casefiler archive /cases/2025-001 --upload`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

var (
	archiveFlags  *StandardFlags
	archiveZip    string
	archiveLevel  int
	archiveUpload bool
)

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveFlags = AddStandardFlags(archiveCmd, "output")
	archiveCmd.Flags().StringVar(&archiveZip, "zip", "", "Archive path (default <folder>.zip next to the folder)")
	archiveCmd.Flags().IntVar(&archiveLevel, "level", -1, "Compression level 0-9 (default archive.compression_level)")
	archiveCmd.Flags().BoolVar(&archiveUpload, "upload", false, "Upload the archive to the configured bucket")
}

type archiveOutput struct {
	archive.Info `yaml:",inline"`
	Upload       *archive.UploadResult `json:"upload,omitempty" yaml:"upload,omitempty"`
}

func runArchive(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, archiveFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := commandContext(cmd)

	src, err := filepath.Abs(args[0])
	if err != nil {
		return errors.WrapFile(err, "resolve folder", args[0])
	}
	zipPath := archiveZip
	if zipPath == "" {
		zipPath = strings.TrimRight(src, string(filepath.Separator)) + ".zip"
	}
	level := archiveLevel
	if level < 0 {
		level = a.cfg.Archive.CompressionLevel
	}

	var uploader *archive.Uploader
	if archiveUpload {
		if uploader, err = a.uploader(ctx); err != nil {
			return err
		}
		if uploader == nil {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				"--upload needs archive.upload.bucket to be set")
		}
	}

	info, err := archive.CreateArchive(ctx, src, zipPath, level)
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "archive created", "path", info.Path, "files", info.Files, "bytes", info.Bytes)

	out := archiveOutput{Info: *info}
	if uploader != nil {
		if out.Upload, err = uploader.Upload(ctx, info.Path); err != nil {
			return err
		}
	}

	return render(a.out, archiveFlags.OutputFormat, out, func(tw *tabwriter.Writer) {
		if archiveFlags.Quiet {
			return
		}
		fmt.Fprintf(tw, "Archive:\t%s\n", info.Path)
		fmt.Fprintf(tw, "Files:\t%d (%s)\n", info.Files, fileops.FormatBytes(info.Bytes))
		if out.Upload != nil {
			status := "uploaded"
			if out.Upload.AlreadyExists {
				status = "already present, skipped"
			}
			fmt.Fprintf(tw, "Object:\t%s (%s)\n", out.Upload.Object, status)
		}
	})
}
