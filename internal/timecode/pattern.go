// Package timecode extracts recording times from DVR and NVR export file
// names and converts them to SMPTE timecode.
//
// Matching tries a library of known naming schemes in priority order. When
// none yields valid values, date and time are searched for independently
// and the most plausible pair is combined.
package timecode

import (
	"regexp"
	"sort"
	"strings"
)

// Component names one value captured from a file name.
type Component string

const (
	Hours        Component = "hours"
	Minutes      Component = "minutes"
	Seconds      Component = "seconds"
	Milliseconds Component = "milliseconds"
	Frames       Component = "frames"
	Year         Component = "year"
	Month        Component = "month"
	Day          Component = "day"
	Channel      Component = "channel"
	CameraID     Component = "camera_id"
)

// Category groups patterns by the kind of system that produces them.
type Category string

const (
	CategoryDahua     Category = "dvr_dahua"
	CategoryGeneric   Category = "dvr_generic"
	CategoryCompact   Category = "compact_timestamp"
	CategoryDelimited Category = "delimited_timestamp"
	CategoryEmbedded  Category = "embedded_timestamp"
	CategoryISO       Category = "iso_datetime"
	CategoryHybrid    Category = "hybrid"
)

// ComponentDef maps a capture group to a component and its valid range.
type ComponentDef struct {
	Type     Component
	Group    int
	Min, Max int
	Optional bool
}

func (d ComponentDef) valid(v int) bool { return v >= d.Min && v <= d.Max }

// Pattern is one naming scheme.
type Pattern struct {
	ID          string
	Name        string
	Description string
	Example     string
	Category    Category
	// Priority orders matching; higher is tried first.
	Priority   int
	HasDate    bool
	Components []ComponentDef

	re *regexp.Regexp
}

func (p *Pattern) find(name string) []string {
	if p.re == nil {
		return nil
	}
	return p.re.FindStringSubmatch(name)
}

func comp(t Component, group, min, max int) ComponentDef {
	return ComponentDef{Type: t, Group: group, Min: min, Max: max}
}

func optional(t Component, group, min, max int) ComponentDef {
	return ComponentDef{Type: t, Group: group, Min: min, Max: max, Optional: true}
}

func hms(h, m, s int) []ComponentDef {
	return []ComponentDef{comp(Hours, h, 0, 23), comp(Minutes, m, 0, 59), comp(Seconds, s, 0, 59)}
}

func ymd(y, m, d, minYear, maxYear int) []ComponentDef {
	return []ComponentDef{comp(Year, y, minYear, maxYear), comp(Month, m, 1, 12), comp(Day, d, 1, 31)}
}

func join(defs ...[]ComponentDef) []ComponentDef {
	var out []ComponentDef
	for _, d := range defs {
		out = append(out, d...)
	}
	return out
}

// notDigit and notDigitBefore stand in for lookaround assertions, which
// RE2 lacks.
const (
	notDigit       = `(?:\D|$)`
	notDigitBefore = `(?:^|\D)`
)

// builtinPatterns lists the known naming schemes.
func builtinPatterns() []*Pattern {
	return []*Pattern{
		{
			ID: "dahua_nvr_standard", Name: "Dahua NVR Standard",
			Description: "Dahua NVR export with channel and start-end range",
			Example:     "NPV-CH01-MAIN-20171215143022-20171215143522.DAV",
			Category:    CategoryDahua, Priority: 90, HasDate: true,
			re:         regexp.MustCompile(`.*CH(\d+).*(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})-`),
			Components: join([]ComponentDef{comp(Channel, 1, 1, 999)}, ymd(2, 3, 4, 2000, 2099), hms(5, 6, 7)),
		},
		{
			ID: "yyyymmdd_hhmmssmmm", Name: "YYYYMMDD_HHMMSSmmm",
			Description: "Compact date and time with milliseconds",
			Example:     "20230101_123045678.mp4",
			Category:    CategoryISO, Priority: 72, HasDate: true,
			re: regexp.MustCompile(`(\d{4})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})(\d{3})`),
			Components: join(ymd(1, 2, 3, 2000, 2099), hms(4, 5, 6),
				[]ComponentDef{comp(Milliseconds, 7, 0, 999)}),
		},
		{
			ID: "yyyymmdd_hhmmss", Name: "YYYYMMDD_HHMMSS",
			Description: "Compact date and time",
			Example:     "20230101_123045_CH01.mp4",
			Category:    CategoryISO, Priority: 70, HasDate: true,
			re:         regexp.MustCompile(`(\d{4})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})`),
			Components: join(ymd(1, 2, 3, 2000, 2099), hms(4, 5, 6)),
		},
		{
			ID: "yyyy_mm_dd_hh_mm_ss", Name: "YYYY-MM-DD HH:MM:SS",
			Description: "Delimited date and time",
			Example:     "2023-01-01_16-30-45.mp4",
			Category:    CategoryISO, Priority: 68, HasDate: true,
			re:         regexp.MustCompile(`(\d{4})[-/_](\d{2})[-/_](\d{2})[_ ](\d{2})[-:_](\d{2})[-:_](\d{2})`),
			Components: join(ymd(1, 2, 3, 2000, 2099), hms(4, 5, 6)),
		},
		{
			ID: "suffix_datetime_ms_c", Name: "Suffix DateTime with MS (_C)",
			Description: "YYMMDD_HHMMSSmmm before a _C suffix",
			Example:     "file_240103_161048123_C.mp4",
			Category:    CategoryGeneric, Priority: 66, HasDate: true,
			re: regexp.MustCompile(`_(\d{2})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})(\d{3})_C(?:\.|$)`),
			Components: join(ymd(1, 2, 3, 0, 99), hms(4, 5, 6),
				[]ComponentDef{comp(Milliseconds, 7, 0, 999)}),
		},
		{
			ID: "suffix_datetime_c", Name: "Suffix DateTime (_C)",
			Description: "YYMMDD_HHMMSS before a _C suffix",
			Example:     "file_240103_161048_C.mp4",
			Category:    CategoryGeneric, Priority: 64, HasDate: true,
			re:         regexp.MustCompile(`_(\d{2})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})_C(?:\.|$)`),
			Components: join(ymd(1, 2, 3, 0, 99), hms(4, 5, 6)),
		},
		{
			ID: "suffix_time_ms_c", Name: "Suffix Time with MS (_C)",
			Description: "HHMMSSmmm after an unparsed date block, before _C",
			Example:     "file_240103_161048123_C.mp4",
			Category:    CategoryGeneric, Priority: 62,
			re:         regexp.MustCompile(`_\d{6}_(\d{2})(\d{2})(\d{2})(\d{3})_C(?:\.|$)`),
			Components: join(hms(1, 2, 3), []ComponentDef{comp(Milliseconds, 4, 0, 999)}),
		},
		{
			ID: "suffix_time_c", Name: "Suffix Time Only (_C)",
			Description: "HHMMSS after an unparsed date block, before _C",
			Example:     "file_240103_161048_C.mp4",
			Category:    CategoryGeneric, Priority: 60,
			re:         regexp.MustCompile(`_\d{6}_(\d{2})(\d{2})(\d{2})_C(?:\.|$)`),
			Components: hms(1, 2, 3),
		},
		{
			ID: "mmddyyhhmmss_before_c", Name: "MMDDYYHHMMSS Before _C",
			Description: "MMDDYY and HHMMSS run together before _C",
			Example:     "file_010524102942_C.mp4",
			Category:    CategoryGeneric, Priority: 58, HasDate: true,
			re: regexp.MustCompile(`(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})_C(?:\.|$)`),
			Components: join([]ComponentDef{comp(Month, 1, 1, 12), comp(Day, 2, 1, 31), comp(Year, 3, 0, 99)},
				hms(4, 5, 6)),
		},
		{
			ID: "time_before_c", Name: "Time Before _C",
			Description: "HHMMSS immediately before _C",
			Example:     "file_161048_C.mp4",
			Category:    CategoryGeneric, Priority: 55,
			re:         regexp.MustCompile(`(\d{2})(\d{2})(\d{2})_C(?:\.|$)`),
			Components: hms(1, 2, 3),
		},
		{
			ID: "hh_mm_ss_mmm_underscore", Name: "HH_MM_SS_mmm",
			Description: "Underscore separated time with milliseconds",
			Example:     "video_16_38_20_123.mp4",
			Category:    CategoryDelimited, Priority: 52,
			re:         regexp.MustCompile(`(\d{1,2})_(\d{2})_(\d{2})_(\d{2,3})`),
			Components: join(hms(1, 2, 3), []ComponentDef{comp(Milliseconds, 4, 0, 999)}),
		},
		{
			ID: "hh_mm_ss_underscore", Name: "HH_MM_SS",
			Description: "Underscore separated time",
			Example:     "2645 Battleford Ch14 16_38_20_C.mp4",
			Category:    CategoryDelimited, Priority: 50,
			re:         regexp.MustCompile(`(\d{1,2})_(\d{2})_(\d{2})(?:_[A-Za-z0-9])?`),
			Components: hms(1, 2, 3),
		},
		{
			ID: "hh_mm_ss_dash", Name: "HH-MM-SS",
			Description: "Dash separated time",
			Example:     "video-16-10-48.mp4",
			Category:    CategoryDelimited, Priority: 48,
			re:         regexp.MustCompile(`(\d{2})-(\d{2})-(\d{2})(?:-(\d{2,3}))?`),
			Components: join(hms(1, 2, 3), []ComponentDef{optional(Milliseconds, 4, 0, 999)}),
		},
		{
			ID: "hh_mm_ss_colon", Name: "HH:MM:SS",
			Description: "Colon separated time",
			Example:     "video_16:10:48.mp4",
			Category:    CategoryDelimited, Priority: 46,
			re:         regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})(?::(\d{2,3}))?`),
			Components: join(hms(1, 2, 3), []ComponentDef{optional(Milliseconds, 4, 0, 999)}),
		},
		{
			ID: "hhmmssmmm_compact", Name: "HHMMSSmmm Compact",
			Description: "Nine digit time with milliseconds",
			Example:     "cam-03JAN24_161325038.mp4",
			Category:    CategoryCompact, Priority: 45,
			re:         regexp.MustCompile(notDigitBefore + `(\d{2})(\d{2})(\d{2})(\d{3})` + notDigit),
			Components: join(hms(1, 2, 3), []ComponentDef{comp(Milliseconds, 4, 0, 999)}),
		},
		{
			ID: "hh_mm_ss_dot", Name: "HH.MM.SS",
			Description: "Dot separated time",
			Example:     "video.16.10.48.mp4",
			Category:    CategoryDelimited, Priority: 44,
			re:         regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{2})(?:\.(\d{2,3}))?`),
			Components: join(hms(1, 2, 3), []ComponentDef{optional(Milliseconds, 4, 0, 999)}),
		},
		{
			ID: "military_time", Name: "Military Time",
			Description: "Hours and minutes with an hrs or h suffix",
			Example:     "recording_1630hrs.mp4",
			Category:    CategoryCompact, Priority: 42,
			re:          regexp.MustCompile(`(\d{2})(\d{2})(?:hrs?|h)`),
			Components:  []ComponentDef{comp(Hours, 1, 0, 23), comp(Minutes, 2, 0, 59)},
		},
		{
			ID: "hhmmss_compact", Name: "HHMMSS Compact",
			Description: "Six digit time",
			Example:     "video_161048.mp4",
			Category:    CategoryCompact, Priority: 40,
			re:          regexp.MustCompile(notDigitBefore + `(\d{2})(\d{2})(\d{2})` + notDigit),
			Components:  hms(1, 2, 3),
		},
		{
			ID: "embedded_time_location_channel", Name: "Embedded Time (Location/Channel)",
			Description: "Underscore time after a space, following site and channel text",
			Example:     "2645 Battleford Ch14 16_38_20_C.mp4",
			Category:    CategoryEmbedded, Priority: 35,
			re:          regexp.MustCompile(`.*?\s(\d{1,2})_(\d{2})_(\d{2})(?:_[A-Za-z0-9])?\.`),
			Components:  hms(1, 2, 3),
		},
		{
			ID: "embedded_time_flexible", Name: "Flexible Embedded Time",
			Description: "Any time-like digit run; last resort",
			Example:     "camera_161048_recording.mp4",
			Category:    CategoryEmbedded, Priority: 10,
			re:         regexp.MustCompile(`.*?(\d{1,2})[-_.]?(\d{2})[-_.]?(\d{2})(?:[-_.]?(\d{2,3}))?`),
			Components: join(hms(1, 2, 3), []ComponentDef{optional(Milliseconds, 4, 0, 999)}),
		},
	}
}

// Library holds patterns ordered by descending priority.
type Library struct {
	patterns []*Pattern
	byID     map[string]*Pattern
}

// NewLibrary returns a library holding the built-in patterns.
func NewLibrary() *Library {
	l := &Library{byID: make(map[string]*Pattern)}
	for _, p := range builtinPatterns() {
		l.add(p)
	}
	return l
}

func (l *Library) add(p *Pattern) {
	l.patterns = append(l.patterns, p)
	l.byID[p.ID] = p
	sort.SliceStable(l.patterns, func(i, j int) bool { return l.patterns[i].Priority > l.patterns[j].Priority })
}

// Get returns the pattern with id.
func (l *Library) Get(id string) (*Pattern, bool) {
	p, ok := l.byID[id]
	return p, ok
}

// All returns every pattern, highest priority first.
func (l *Library) All() []*Pattern {
	return append([]*Pattern(nil), l.patterns...)
}

// Search filters patterns by a case-insensitive name or description query
// and, when non-empty, a category.
func (l *Library) Search(query string, category Category) []*Pattern {
	q := strings.ToLower(query)
	var out []*Pattern
	for _, p := range l.patterns {
		if category != "" && p.Category != category {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		out = append(out, p)
	}
	return out
}
