package fileops

import (
	"fmt"
	"time"
)

// Summary aggregates a copy run.
type Summary struct {
	TotalFiles       int           `json:"total_files"`
	Successful       int           `json:"successful"`
	Failed           int           `json:"failed"`
	Verified         int           `json:"verified"`
	TotalBytes       int64         `json:"total_bytes"`
	Duration         time.Duration `json:"duration"`
	AverageSpeedMBps float64       `json:"average_speed_mbps"`
}

// Summarize totals results over the wall-clock duration of the run.
func Summarize(results []*FileResult, elapsed time.Duration) Summary {
	s := Summary{TotalFiles: len(results), Duration: elapsed}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			continue
		}
		s.Successful++
		s.TotalBytes += r.Size
		if r.Verified {
			s.Verified++
		}
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.AverageSpeedMBps = float64(s.TotalBytes) / (1024 * 1024) / secs
	}
	return s
}

// AllVerified reports whether every file was copied and verified.
func (s Summary) AllVerified() bool {
	return s.Failed == 0 && s.Verified == s.TotalFiles
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d files copied, %d verified, %s in %s (%.1f MB/s)",
		s.Successful, s.TotalFiles, s.Verified, FormatBytes(s.TotalBytes),
		s.Duration.Round(time.Millisecond), s.AverageSpeedMBps)
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
