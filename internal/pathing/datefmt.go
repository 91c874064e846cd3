package pathing

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateFormat selects how datetime fields render inside folder names.
type DateFormat string

const (
	// DateMilitary renders 28AUG25_1630; the day is not padded (5AUG25_0907).
	DateMilitary DateFormat = "military"
	// DateISO renders 2025-08-28_1630.
	DateISO DateFormat = "iso"
)

const (
	isoLayout       = "2006-01-02_1504"
	TimestampLayout = "2006-01-02_150405"
	DateLayout      = "2006-01-02"
)

var upper = cases.Upper(language.Und)

// ParseDateFormat accepts the two supported names; empty means military.
func ParseDateFormat(s string) (DateFormat, error) {
	switch DateFormat(s) {
	case "", DateMilitary:
		return DateMilitary, nil
	case DateISO:
		return DateISO, nil
	default:
		return "", fmt.Errorf("unknown date format %q (use military or iso)", s)
	}
}

// FormatDate renders t in the given style.
func FormatDate(t time.Time, f DateFormat) string {
	if f == DateISO {
		return t.Format(isoLayout)
	}
	return t.Format("2") + upper.String(t.Format("Jan")) + t.Format("06_1504")
}
