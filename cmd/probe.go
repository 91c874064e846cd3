package cmd

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/casefiler/internal/config"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/conneroisu/casefiler/internal/media"
	"github.com/conneroisu/casefiler/internal/timecode"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <files or folders...>",
	Short: "Read capture times from stills and video exports",
	Long: `Print the capture time of every still and video export below the given paths
and the earliest and latest time found. This is the range 'organize --infer-times'
would fill into a form without video times.

Stills are read from EXIF first. Any file can fall back to the time in its name,
matched against known DVR and NVR naming schemes; those matches are also shown as
SMPTE timecode at --fps. A name that carries a time but no date gives a timecode
and is left out of the range.

Use --offset with --offset-direction when the recorder clock was wrong: "behind"
adds the offset, "ahead" subtracts it. --csv writes one row per file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProbe,
}

var (
	probeFlags     *StandardFlags
	probeFPS       float64
	probePattern   string
	probeCSV       string
	probeOffset    time.Duration
	probeDirection string
	probeNoNames   bool
)

func init() {
	rootCmd.AddCommand(probeCmd)
	probeFlags = AddStandardFlags(probeCmd, "output")
	probeCmd.Flags().Float64Var(&probeFPS, "fps", 0, "Frame rate for timecodes (default media.frame_rate)")
	probeCmd.Flags().StringVar(&probePattern, "pattern", "",
		"Only use this filename pattern id (or "+timecode.TwoPhaseID+")")
	probeCmd.Flags().StringVar(&probeCSV, "csv", "", "Also write results to this CSV file")
	probeCmd.Flags().DurationVar(&probeOffset, "offset", 0, "Recorder clock error, e.g. 1h2m")
	probeCmd.Flags().StringVar(&probeDirection, "offset-direction", string(timecode.Behind),
		"Whether the recorder clock was behind or ahead")
	probeCmd.Flags().BoolVar(&probeNoNames, "no-filenames", false, "Only read EXIF data")
}

// newTimeReader builds a capture-time reader from the media settings.
func newTimeReader(cfg config.MediaConfig) *media.Reader {
	return media.NewReader(cfg.FilenameTimes, cfg.FrameRate)
}

func runProbe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, probeFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	p := newTimeReader(a.cfg.Media)
	if probeFPS != 0 {
		p.FrameRate = probeFPS
	}
	if probeNoNames {
		p.FilenameTimes = false
	}
	if probePattern != "" && probePattern != timecode.TwoPhaseID {
		if _, ok := timecode.NewLibrary().Get(probePattern); !ok {
			return errors.NewValidationError(errors.ErrCodeNoTimestamp, "unknown pattern: "+probePattern)
		}
	}
	p.Pattern = probePattern
	if probeOffset != 0 {
		dir, err := timecode.ParseDirection(probeDirection)
		if err != nil {
			return err
		}
		p.Offset = timecode.Offset{Duration: probeOffset, Direction: dir}
	}
	if p.FilenameTimes {
		if _, err := timecode.ToSMPTE(timecode.TimeData{}, p.FrameRate); err != nil {
			return err
		}
	}

	r, err := p.CaptureRange(args)
	if err != nil && !errors.Is(err, media.ErrNoCaptureTime) {
		return err
	}
	if probeCSV != "" {
		if err := writeProbeCSV(probeCSV, p, r); err != nil {
			return err
		}
		a.logger.Info(commandContext(cmd), "timecode CSV written", "path", probeCSV, "rows", len(r.Probes))
	}
	return render(a.out, probeFlags.OutputFormat, r, func(tw *tabwriter.Writer) {
		if len(r.Probes) == 0 {
			fmt.Fprintln(tw, "No stills or videos found.")
			return
		}
		fmt.Fprintln(tw, "CAPTURED\tTIMECODE\tSOURCE\tFILE")
		for _, pr := range r.Probes {
			when := "-"
			if pr.CaptureTime != nil {
				when = pr.CaptureTime.Format(time.DateTime)
			} else if probeFlags.Verbose && pr.Error != "" {
				when = "- (" + pr.Error + ")"
			}
			tc, src := dash(pr.Timecode), dash(pr.Source)
			if pr.Pattern != "" {
				src += ":" + pr.Pattern
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", when, tc, src, pr.Path)
		}
		if r.Found > 0 {
			fmt.Fprintf(tw, "\nRange:\t%s to %s (%d of %d files)\n",
				r.Start.Format(time.DateTime), r.End.Format(time.DateTime), r.Found, len(r.Probes))
		}
	})
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeProbeCSV(path string, p *media.Reader, r *media.Range) error {
	rows := make([]timecode.Row, 0, len(r.Probes))
	for _, pr := range r.Probes {
		row := timecode.Row{
			Path: pr.Path, Timecode: pr.Timecode, FrameRate: p.FrameRate,
			Pattern: pr.Pattern, Offset: p.Offset,
		}
		if pr.CaptureTime != nil {
			row.Start = *pr.CaptureTime
		}
		if pr.Error != "" {
			row.Err = errors.New(pr.Error)
		}
		rows = append(rows, row)
	}
	var buf bytes.Buffer
	if err := timecode.WriteCSV(&buf, rows); err != nil {
		return errors.WrapFile(err, "write timecode csv", path)
	}
	if err := fileutils.AtomicWrite(path, buf.Bytes()); err != nil {
		return errors.WrapFile(err, "write timecode csv", path)
	}
	return nil
}
