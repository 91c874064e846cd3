package timecode

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// Row statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var csvHeader = []string{
	"filename", "source_file_path", "smpte_timecode", "start_time_iso",
	"frame_rate", "pattern_used", "time_offset_applied", "status", "error_message",
}

// Row is one line of a timecode export.
type Row struct {
	Path     string
	Timecode string
	// Start is zero when the name carries no date.
	Start     time.Time
	FrameRate float64
	Pattern   string
	Offset    Offset
	Err       error
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		status, msg := StatusSuccess, ""
		if r.Err != nil {
			status, msg = StatusFailed, r.Err.Error()
		}
		start := ""
		if !r.Start.IsZero() {
			start = r.Start.Format(time.RFC3339)
		}
		rec := []string{
			baseName(r.Path), r.Path, r.Timecode, start,
			strconv.FormatFloat(r.FrameRate, 'f', -1, 64),
			r.Pattern, r.Offset.String(), status, msg,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}
