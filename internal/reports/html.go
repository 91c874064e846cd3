package reports

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// QueueStats are the counts shown at the top of the batch summary.
type QueueStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// JobRow is one line of the batch summary table.
type JobRow struct {
	Name             string     `json:"job_name"`
	OccurrenceNumber string     `json:"occurrence_number"`
	Status           string     `json:"status"`
	FileCount        int        `json:"file_count"`
	DurationSeconds  float64    `json:"duration_seconds"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	ErrorMessage     string     `json:"error_message"`
}

const summaryStyle = `body{font-family:sans-serif;margin:2em;color:#222}
table{border-collapse:collapse;width:100%}
th,td{border:1px solid #ccc;padding:4px 8px;text-align:left}
th{background:#f0f0f0}
.completed{color:#1a7f37}.failed{color:#cf222e}.pending,.processing{color:#9a6700}`

// BatchSummaryHTML renders a standalone HTML page for a batch export.
func BatchSummaryHTML(stats QueueStats, jobs []JobRow, generated time.Time) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		e := templ.EscapeString

		b.WriteString("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		b.WriteString("<title>Batch Processing Report</title><style>")
		b.WriteString(summaryStyle)
		b.WriteString("</style></head><body>")
		b.WriteString("<h1>Batch Processing Report</h1>")
		fmt.Fprintf(&b, "<p class=\"generated\">Generated %s</p>", e(generated.Format(displayLayout)))

		b.WriteString("<table id=\"stats\"><tr><th>Total</th><th>Pending</th><th>Processing</th><th>Completed</th><th>Failed</th></tr>")
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td></tr></table>",
			stats.Total, stats.Pending, stats.Processing, stats.Completed, stats.Failed)

		b.WriteString("<h2>Jobs</h2><table id=\"jobs\"><tr><th>Job</th><th>Occurrence</th><th>Status</th><th>Files</th><th>Duration (s)</th><th>Error</th></tr>")
		for _, j := range jobs {
			fmt.Fprintf(&b, "<tr class=\"%s\"><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%.1f</td><td>%s</td></tr>",
				e(j.Status), e(j.Name), e(j.OccurrenceNumber), e(j.Status), j.FileCount, j.DurationSeconds, e(j.ErrorMessage))
		}
		b.WriteString("</table></body></html>\n")

		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
}
