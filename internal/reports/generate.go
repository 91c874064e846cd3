package reports

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/conneroisu/casefiler/internal/config"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/conneroisu/casefiler/internal/hashing"
	"github.com/conneroisu/casefiler/internal/pathing"
)

// Options selects which reports a job produces.
type Options struct {
	TimeOffset bool
	UploadLog  bool
	HashCSV    bool
}

func OptionsFromConfig(c config.ReportsConfig) Options {
	return Options{TimeOffset: c.TimeOffset, UploadLog: c.UploadLog, HashCSV: c.HashCSV}
}

// Any reports whether at least one report is enabled.
func (o Options) Any() bool {
	return o.TimeOffset || o.UploadLog || o.HashCSV
}

// Input is everything a job's reports are built from.
type Input struct {
	Form    *forms.FormData
	Summary UploadSummary
	Hashes  []hashing.CopyRecord
}

// Filenames for a given occurrence number.
func TimeOffsetName(occ string) string { return pathing.SanitizeComponent(occ) + "_TimeOffset.pdf" }
func UploadLogName(occ string) string  { return pathing.SanitizeComponent(occ) + "_UploadLog.pdf" }
func HashCSVName(occ string) string    { return pathing.SanitizeComponent(occ) + "_Hashes.csv" }

// Generate writes the enabled reports into dir and returns their paths. The
// time offset sheet is skipped when the form records no offset and the hash
// CSV when no digests were taken.
func Generate(dir string, in Input, opts Options, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapFile(err, "create documents directory", dir)
	}

	occ := in.Form.OccurrenceNumber
	var paths []string

	write := func(name string, render func(*bytes.Buffer) error) error {
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			return err
		}
		path := filepath.Join(dir, name)
		if err := fileutils.AtomicWrite(path, buf.Bytes()); err != nil {
			return errors.WrapFile(err, "write report", path)
		}
		paths = append(paths, path)
		return nil
	}

	if opts.TimeOffset && in.Form.HasTimeOffset() {
		if err := write(TimeOffsetName(occ), func(b *bytes.Buffer) error {
			return TimeOffsetReport(b, in.Form, now)
		}); err != nil {
			return paths, err
		}
	}

	if opts.UploadLog {
		if err := write(UploadLogName(occ), func(b *bytes.Buffer) error {
			return UploadLog(b, in.Form, in.Summary, now)
		}); err != nil {
			return paths, err
		}
	}

	if opts.HashCSV && len(in.Hashes) > 0 {
		if err := write(HashCSVName(occ), func(b *bytes.Buffer) error {
			if err := hashing.WriteHashCSV(b, in.Hashes); err != nil {
				return errors.NewReportError("hash", "failed to write CSV", err)
			}
			return nil
		}); err != nil {
			return paths, err
		}
	}

	return paths, nil
}
