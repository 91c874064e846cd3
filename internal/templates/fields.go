package templates

import (
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/conneroisu/casefiler/internal/pathing"
)

// FieldKind is the value type of a placeholder.
type FieldKind string

const (
	KindString   FieldKind = "string"
	KindDatetime FieldKind = "datetime"
	KindDate     FieldKind = "date"
	KindNumber   FieldKind = "number"
)

// FieldDoc documents one placeholder usable in patterns.
type FieldDoc struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Kind        FieldKind `json:"type" yaml:"type"`
	Example     string    `json:"example" yaml:"example"`
}

var fieldDocs = []FieldDoc{
	{"occurrence_number", "Case/occurrence number", KindString, "2024-001"},
	{"business_name", "Business/establishment name", KindString, "Corner Store"},
	{"location_address", "Address/location", KindString, "123 Main Street"},
	{"video_start_datetime", "Video start time", KindDatetime, "2025-07-30 16:30:00"},
	{"video_end_datetime", "Video end time", KindDatetime, "2025-07-30 18:00:00"},
	{"technician_name", "Technician name (from settings)", KindString, "John Smith"},
	{"badge_number", "Badge number (from settings)", KindString, "12345"},
	{"current_datetime", "Current date/time when processing", KindDatetime, "2025-08-28_143000"},
	{"current_date", "Current date only", KindDate, "2025-08-28"},
	{"year", "Current year", KindNumber, "2025"},
	{"extraction_start", "Extraction start time", KindDatetime, "2025-08-28 10:00:00"},
	{"extraction_end", "Extraction end time", KindDatetime, "2025-08-28 12:00:00"},
}

var knownFields = func() map[string]FieldDoc {
	m := make(map[string]FieldDoc, len(fieldDocs))
	for _, d := range fieldDocs {
		m[d.Name] = d
	}
	return m
}()

// formDateFields are datetime fields that take the level's date format.
// current_datetime has a fixed layout and is not among them.
var formDateFields = map[string]bool{
	"video_start_datetime": true,
	"video_end_datetime":   true,
	"extraction_start":     true,
	"extraction_end":       true,
}

// FieldDocs lists every placeholder a pattern may reference.
func FieldDocs() []FieldDoc {
	return append([]FieldDoc(nil), fieldDocs...)
}

// IsKnownField reports whether name is a valid placeholder.
func IsKnownField(name string) bool {
	_, ok := knownFields[name]
	return ok
}

// IsDateField reports whether name renders through a date format.
func IsDateField(name string) bool {
	return formDateFields[name]
}

// fieldLookup resolves placeholders against a form at a fixed instant.
func fieldLookup(form *forms.FormData, now time.Time, format pathing.DateFormat) func(string) string {
	plain := form.Fields(now)
	return func(name string) string {
		if formDateFields[name] {
			t, _ := form.TimeField(name)
			if t == nil {
				return ""
			}
			return pathing.FormatDate(*t, format)
		}
		return strings.TrimSpace(plain[name])
	}
}
