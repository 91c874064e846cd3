package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/conneroisu/casefiler/internal/logging"
	"github.com/conneroisu/casefiler/internal/reports"
	"github.com/ubuntu/decorate"
)

// QueueFileVersion is written into every saved queue.
const QueueFileVersion = "1.0"

type queueFile struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	TotalJobs int       `json:"total_jobs"`
	Jobs      []*Job    `json:"jobs"`
}

// Save writes the queue to path atomically.
func (q *Queue) Save(path string) (err error) {
	defer decorate.OnError(&err, "could not save queue to %s", path)

	jobs := q.Jobs()
	if jobs == nil {
		jobs = []*Job{}
	}
	data, err := json.MarshalIndent(queueFile{
		Version:   QueueFileVersion,
		CreatedAt: time.Now(),
		TotalJobs: len(jobs),
		Jobs:      jobs,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return fileutils.AtomicWrite(path, data)
}

// Load replaces the queue with the jobs saved at path. Jobs interrupted while
// processing become pending again; jobs that no longer validate are skipped
// and counted.
func (q *Queue) Load(path string, logger logging.Logger) (skipped int, err error) {
	defer decorate.OnError(&err, "could not load queue from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	jobs, skipped, err := decodeJobs(data, logger)
	if err != nil {
		return 0, err
	}
	q.replace(jobs, -1)
	return skipped, nil
}

// decodeJobs parses a document holding a "jobs" array. Only entries that
// cannot be decoded are skipped.
func decodeJobs(data []byte, logger logging.Logger) ([]*Job, int, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	var raw struct {
		Jobs *[]json.RawMessage `json:"jobs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrorTypeBatch, errors.ErrCodeQueueCorrupt, "queue file is not valid JSON")
	}
	if raw.Jobs == nil {
		return nil, 0, errors.NewInternalError(errors.ErrCodeQueueCorrupt, "queue file has no jobs list", nil)
	}

	jobs := make([]*Job, 0, len(*raw.Jobs))
	skipped := 0
	for i, msg := range *raw.Jobs {
		var j Job
		if err := json.Unmarshal(msg, &j); err != nil {
			logger.Warn(context.Background(), err, "skipping unreadable job", "index", i)
			skipped++
			continue
		}
		if j.Status == StatusProcessing || j.Status == "" {
			j.Status = StatusPending
			j.StartTime = nil
		}
		if j.ID == "" {
			logger.Warn(context.Background(), errors.NewInternalError(errors.ErrCodeQueueCorrupt, "job has no id", nil),
				"skipping unreadable job", "index", i)
			skipped++
			continue
		}
		// Sources are not checked here; an unplugged drive must not erase
		// the job. ProcessJob fails it instead.
		jobs = append(jobs, &j)
	}
	return jobs, skipped, nil
}

type exportReport struct {
	ExportDate      time.Time        `json:"export_date"`
	QueueStatistics Stats            `json:"queue_statistics"`
	Jobs            []reports.JobRow `json:"jobs"`
}

// Rows converts jobs to report rows.
func Rows(jobs []*Job) []reports.JobRow {
	rows := make([]reports.JobRow, 0, len(jobs))
	for _, j := range jobs {
		row := reports.JobRow{
			Name:            j.Name,
			Status:          string(j.Status),
			DurationSeconds: j.Duration().Seconds(),
			StartTime:       j.StartTime,
			EndTime:         j.EndTime,
			ErrorMessage:    j.Error,
		}
		if j.Form != nil {
			row.OccurrenceNumber = j.Form.OccurrenceNumber
		}
		if j.Result != nil {
			row.FileCount = j.Result.FileCount
		}
		rows = append(rows, row)
	}
	return rows
}

func (s Stats) reportStats() reports.QueueStats {
	return reports.QueueStats{
		Total:      s.Total,
		Pending:    s.Pending,
		Processing: s.Processing,
		Completed:  s.Completed,
		Failed:     s.Failed,
	}
}

// ExportReport writes a summary of the queue. A path ending in .html gets
// an HTML page; anything else gets JSON.
func (q *Queue) ExportReport(path string) (err error) {
	defer decorate.OnError(&err, "could not export queue report to %s", path)

	now := time.Now()
	stats := q.Stats()
	rows := Rows(q.Jobs())

	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".html") {
		var buf bytes.Buffer
		if err := reports.BatchSummaryHTML(stats.reportStats(), rows, now).Render(context.Background(), &buf); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		data, err = json.MarshalIndent(exportReport{
			ExportDate:      now,
			QueueStatistics: stats,
			Jobs:            rows,
		}, "", "  ")
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return fileutils.AtomicWrite(path, data)
}
