package pathing

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/forms"
)

// Placeholders used when the form leaves a level blank.
const (
	NoOccurrence = "NO_OCCURRENCE"
	NoLocation   = "NO_LOCATION"
)

// LocationLabel joins business and address the way the location level shows
// them: "Business @ Address", or whichever one is present.
func LocationLabel(business, address string) string {
	business = strings.TrimSpace(business)
	address = strings.TrimSpace(address)

	switch {
	case business != "" && address != "":
		return business + " @ " + address
	case business != "":
		return business
	case address != "":
		return address
	default:
		return ""
	}
}

// DefaultLayout returns the three sanitized levels used when no template is
// selected: occurrence, location, and the DVR time range.
func DefaultLayout(form *forms.FormData, now time.Time) []string {
	occurrence := strings.TrimSpace(form.OccurrenceNumber)
	if occurrence == "" {
		occurrence = NoOccurrence
	}

	location := LocationLabel(form.BusinessName, form.LocationAddress)
	if location == "" {
		location = NoLocation
	}

	timeRange := now.Format(TimestampLayout)
	if form.VideoStart != nil {
		// A missing end collapses the range onto the start.
		end := form.VideoStart
		if form.VideoEnd != nil {
			end = form.VideoEnd
		}
		timeRange = FormatDate(*form.VideoStart, DateMilitary) + "_to_" +
			FormatDate(*end, DateMilitary) + "_DVR_Time"
	}

	return []string{
		SanitizeComponent(occurrence),
		SanitizeComponent(location),
		SanitizeComponent(timeRange),
	}
}

// DefaultRelativePath joins DefaultLayout into a relative path.
func DefaultRelativePath(form *forms.FormData, now time.Time) string {
	return filepath.Join(DefaultLayout(form, now)...)
}
