package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileops"
	"github.com/conneroisu/casefiler/internal/forms"
)

const displayLayout = "2006-01-02 15:04:05"

const certification = "I certify that the files listed in this log were recovered and copied " +
	"from the original recording device, that each copy was verified against its source " +
	"using a SHA-256 digest, and that no file was altered during the recovery."

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(displayLayout)
}

func caseInformation(l *layout, form *forms.FormData) {
	l.heading("Case Information")
	l.field("Occurrence Number", form.OccurrenceNumber)
	l.field("Business Name", form.BusinessName)
	l.field("Location Address", form.LocationAddress)
	l.field("Video Start", formatTime(form.VideoStart))
	l.field("Video End", formatTime(form.VideoEnd))
}

// TimeOffsetReport writes the DVR time offset sheet for form.
func TimeOffsetReport(w io.Writer, form *forms.FormData, now time.Time) error {
	l := newLayout()
	l.title("DVR Time Offset Report")
	caseInformation(l, form)

	l.heading("Time Offset")
	offset := form.TimeOffset
	if minutes, ok := form.OffsetMinutes(); ok {
		offset = fmt.Sprintf("%d minutes", minutes)
		switch {
		case minutes > 0:
			offset += " (DVR ahead of real time)"
		case minutes < 0:
			offset += " (DVR behind real time)"
		}
	}
	l.field("Offset", offset)
	l.field("DVR Time", formatTime(form.DVRTime))
	l.field("Real Time", formatTime(form.RealTime))
	if form.DVRTime != nil && form.RealTime != nil {
		l.field("Measured Difference", form.DVRTime.Sub(*form.RealTime).String())
	}

	l.heading("Extraction Period")
	l.field("Extraction Start", formatTime(form.ExtractionStart))
	l.field("Extraction End", formatTime(form.ExtractionEnd))
	l.field("Technician", form.TechnicianName)
	l.field("Badge Number", form.BadgeNumber)

	l.footer("Generated " + now.Format(displayLayout))

	if err := l.render(w); err != nil {
		return errors.NewReportError("time offset", "failed to render PDF", err)
	}
	return nil
}

// UploadSummary is the copy outcome quoted in the upload log.
type UploadSummary struct {
	FileCount  int
	Verified   int
	TotalBytes int64
}

// SummaryFromCopy adapts a copy run for the upload log.
func SummaryFromCopy(s fileops.Summary) UploadSummary {
	return UploadSummary{FileCount: s.Successful, Verified: s.Verified, TotalBytes: s.TotalBytes}
}

// UploadLog writes the technician upload log for form.
func UploadLog(w io.Writer, form *forms.FormData, summary UploadSummary, now time.Time) error {
	if err := form.RequireTechnician(); err != nil {
		return errors.NewReportError("upload log", "technician name is required", err)
	}

	l := newLayout()
	l.title("Technician Upload Log")
	caseInformation(l, form)

	uploaded := form.UploadTimestamp
	if uploaded == nil {
		uploaded = &now
	}

	l.heading("Upload Details")
	l.field("Technician", form.TechnicianName)
	l.field("Badge Number", form.BadgeNumber)
	l.field("Upload Timestamp", formatTime(uploaded))
	l.field("Files", fmt.Sprintf("%d (%d verified)", summary.FileCount, summary.Verified))
	l.field("Total Size", fileops.FormatBytes(summary.TotalBytes))

	l.heading("Certification")
	l.paragraph(certification)

	l.space()
	l.space()
	l.add("Signature: ________________________________", fontRegular, 11, 12)
	l.add("Date: ____________________", fontRegular, 11, 12)

	l.footer("Generated " + now.Format(displayLayout))

	if err := l.render(w); err != nil {
		return errors.NewReportError("upload log", "failed to render PDF", err)
	}
	return nil
}
