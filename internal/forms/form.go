// Package forms holds the case metadata a technician fills in for each
// evidence recovery, its validation rules, and loaders for case files written
// as JSON, YAML or TOML.
package forms

import (
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
)

// MaxTimeOffsetMinutes bounds a numeric DVR offset to one day.
const MaxTimeOffsetMinutes = 1440

// forbiddenOccurrenceChars may not appear in an occurrence number because it
// becomes the top-level folder name.
const forbiddenOccurrenceChars = `/\:*?"<>|`

// FormData is the case metadata attached to one recovery.
type FormData struct {
	OccurrenceNumber string `json:"occurrence_number" yaml:"occurrence_number" toml:"occurrence_number"`
	BusinessName     string `json:"business_name,omitempty" yaml:"business_name,omitempty" toml:"business_name"`
	LocationAddress  string `json:"location_address,omitempty" yaml:"location_address,omitempty" toml:"location_address"`

	ExtractionStart *time.Time `json:"extraction_start,omitempty" yaml:"extraction_start,omitempty" toml:"extraction_start"`
	ExtractionEnd   *time.Time `json:"extraction_end,omitempty" yaml:"extraction_end,omitempty" toml:"extraction_end"`
	VideoStart      *time.Time `json:"video_start_datetime,omitempty" yaml:"video_start_datetime,omitempty" toml:"video_start_datetime"`
	VideoEnd        *time.Time `json:"video_end_datetime,omitempty" yaml:"video_end_datetime,omitempty" toml:"video_end_datetime"`

	// TimeOffset is free text ("DVR 2h ahead") or a number of minutes.
	TimeOffset string     `json:"time_offset,omitempty" yaml:"time_offset,omitempty" toml:"time_offset"`
	DVRTime    *time.Time `json:"dvr_time,omitempty" yaml:"dvr_time,omitempty" toml:"dvr_time"`
	RealTime   *time.Time `json:"real_time,omitempty" yaml:"real_time,omitempty" toml:"real_time"`

	TechnicianName  string     `json:"technician_name,omitempty" yaml:"technician_name,omitempty" toml:"technician_name"`
	BadgeNumber     string     `json:"badge_number,omitempty" yaml:"badge_number,omitempty" toml:"badge_number"`
	UploadTimestamp *time.Time `json:"upload_timestamp,omitempty" yaml:"upload_timestamp,omitempty" toml:"upload_timestamp"`
}

// Validate checks the form and returns a *errors.ValidationErrorCollection
// when any rule fails.
func (f *FormData) Validate() error {
	vec := &errors.ValidationErrorCollection{}

	occ := strings.TrimSpace(f.OccurrenceNumber)
	switch {
	case occ == "":
		vec.AddField("occurrence_number", f.OccurrenceNumber, "is required",
			"enter the agency occurrence or case number")
	case len(occ) < 2:
		vec.AddField("occurrence_number", f.OccurrenceNumber, "must be at least 2 characters")
	case strings.ContainsAny(occ, forbiddenOccurrenceChars):
		vec.AddField("occurrence_number", f.OccurrenceNumber,
			"contains characters not allowed in folder names",
			"remove any of "+forbiddenOccurrenceChars)
	}

	if strings.TrimSpace(f.BusinessName) == "" && strings.TrimSpace(f.LocationAddress) == "" {
		vec.AddField("location_address", "", "business name or location address is required")
	}

	if f.ExtractionStart != nil && f.ExtractionEnd != nil && !f.ExtractionEnd.After(*f.ExtractionStart) {
		vec.AddField("extraction_end", f.ExtractionEnd, "must be after extraction start")
	}
	if f.VideoStart != nil && f.VideoEnd != nil && !f.VideoEnd.After(*f.VideoStart) {
		vec.AddField("video_end_datetime", f.VideoEnd, "must be after video start")
	}

	if minutes, ok := f.OffsetMinutes(); ok && abs(minutes) > MaxTimeOffsetMinutes {
		vec.AddField("time_offset", f.TimeOffset,
			"numeric offset exceeds 24 hours", "enter the offset in minutes, at most 1440")
	}

	if vec.HasErrors() {
		return vec
	}
	return nil
}

// RequireTechnician fails when no technician is recorded; reports need one.
func (f *FormData) RequireTechnician() error {
	if strings.TrimSpace(f.TechnicianName) == "" {
		return errors.NewFieldValidationError("technician_name", "", "is required to sign reports")
	}
	return nil
}

// OffsetMinutes parses TimeOffset as a signed number of minutes.
func (f *FormData) OffsetMinutes() (int, bool) {
	s := strings.TrimSpace(f.TimeOffset)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// HasTimeOffset reports whether any offset information was recorded.
func (f *FormData) HasTimeOffset() bool {
	return strings.TrimSpace(f.TimeOffset) != "" || f.DVRTime != nil || f.RealTime != nil
}

// TextField returns a plain string field by its placeholder name.
func (f *FormData) TextField(name string) (string, bool) {
	switch name {
	case "occurrence_number":
		return f.OccurrenceNumber, true
	case "business_name":
		return f.BusinessName, true
	case "location_address":
		return f.LocationAddress, true
	case "technician_name":
		return f.TechnicianName, true
	case "badge_number":
		return f.BadgeNumber, true
	case "time_offset":
		return f.TimeOffset, true
	}
	return "", false
}

// TimeField returns a datetime field by its placeholder name. The value is nil
// when the field is known but unset.
func (f *FormData) TimeField(name string) (*time.Time, bool) {
	switch name {
	case "video_start_datetime":
		return f.VideoStart, true
	case "video_end_datetime":
		return f.VideoEnd, true
	case "extraction_start":
		return f.ExtractionStart, true
	case "extraction_end":
		return f.ExtractionEnd, true
	case "upload_timestamp":
		return f.UploadTimestamp, true
	}
	return nil, false
}

// ApplyTechnicianDefaults fills technician identity from configuration when
// the case file leaves it blank.
func (f *FormData) ApplyTechnicianDefaults(name, badge string) {
	if strings.TrimSpace(f.TechnicianName) == "" {
		f.TechnicianName = name
	}
	if strings.TrimSpace(f.BadgeNumber) == "" {
		f.BadgeNumber = badge
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Fields returns the plain placeholder values for the form plus the clock
// fields current_datetime, current_date and year. Datetime fields are left to
// the caller because their rendering depends on the chosen date format.
func (f *FormData) Fields(now time.Time) map[string]string {
	return map[string]string{
		"occurrence_number": strings.TrimSpace(f.OccurrenceNumber),
		"business_name":     strings.TrimSpace(f.BusinessName),
		"location_address":  strings.TrimSpace(f.LocationAddress),
		"technician_name":   strings.TrimSpace(f.TechnicianName),
		"badge_number":      strings.TrimSpace(f.BadgeNumber),
		"time_offset":       strings.TrimSpace(f.TimeOffset),
		"current_datetime":  now.Format("2006-01-02_150405"),
		"current_date":      now.Format("2006-01-02"),
		"year":              strconv.Itoa(now.Year()),
	}
}
