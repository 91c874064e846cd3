package timecode

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
)

// TwoPhaseID is reported as the pattern of matches found by searching for
// date and time independently.
const TwoPhaseID = "two_phase"

// TimeData is the set of values read from one file name.
type TimeData struct {
	Hours        int
	Minutes      int
	Seconds      int
	Milliseconds int
	Frames       int
	HasMillis    bool
	HasFrames    bool

	// Year, Month and Day are zero when the name carries no date.
	Year  int
	Month int
	Day   int

	Channel  int
	CameraID int

	PatternID  string
	Confidence float64
}

// HasDate reports whether a full calendar date was read.
func (td TimeData) HasDate() bool {
	return td.Year != 0 && td.Month != 0 && td.Day != 0
}

// Time returns the moment td names in loc. It fails when no date was read
// or the date does not exist.
func (td TimeData) Time(loc *time.Location) (time.Time, error) {
	if !td.HasDate() {
		return time.Time{}, errors.NewValidationError(errors.ErrCodeNoTimestamp, "file name carries a time but no date")
	}
	if !validDate(td.Year, td.Month, td.Day) {
		return time.Time{}, errors.NewValidationError(errors.ErrCodeNoTimestamp,
			"invalid date "+strconv.Itoa(td.Year)+"-"+strconv.Itoa(td.Month)+"-"+strconv.Itoa(td.Day))
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(td.Year, time.Month(td.Month), td.Day,
		td.Hours, td.Minutes, td.Seconds, td.Milliseconds*int(time.Millisecond), loc), nil
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func validDate(year, month, day int) bool {
	if year < 2000 || year > 2099 || month < 1 || month > 12 || day < 1 {
		return false
	}
	return day <= daysIn(year, month)
}

// Matcher reads times from file names.
type Matcher struct {
	lib *Library
	// Now anchors the year plausibility check of two-phase extraction.
	Now func() time.Time
}

// NewMatcher returns a matcher over the built-in library.
func NewMatcher() *Matcher {
	return &Matcher{lib: NewLibrary(), Now: time.Now}
}

// Library returns the patterns the matcher tries.
func (m *Matcher) Library() *Library { return m.lib }

// Match reads a time from the base name of filename. When patternID is
// empty every pattern is tried in priority order, followed by two-phase
// extraction; otherwise only the named pattern is used.
func (m *Matcher) Match(filename, patternID string) (TimeData, error) {
	name := filepath.Base(filename)

	if patternID != "" && patternID != TwoPhaseID {
		p, ok := m.lib.Get(patternID)
		if !ok {
			return TimeData{}, errors.NewValidationError(errors.ErrCodeNoTimestamp, "unknown pattern: "+patternID)
		}
		if td, ok := extract(p, name); ok {
			return td, nil
		}
		return TimeData{}, errors.NewValidationError(errors.ErrCodeNoTimestamp,
			"pattern "+patternID+" does not match "+name)
	}

	if patternID == "" {
		for _, p := range m.lib.patterns {
			if td, ok := extract(p, name); ok {
				if !td.HasDate() {
					m.attachDate(&td, name)
				}
				return td, nil
			}
		}
	}
	if td, ok := m.twoPhase(name); ok {
		return td, nil
	}
	return TimeData{}, errors.NewValidationError(errors.ErrCodeNoTimestamp, "no time found in "+name)
}

// extract applies p to name and validates each captured component.
func extract(p *Pattern, name string) (TimeData, bool) {
	groups := p.find(name)
	if groups == nil {
		return TimeData{}, false
	}
	td := TimeData{PatternID: p.ID, Confidence: float64(p.Priority) / 100}
	for _, def := range p.Components {
		if def.Group >= len(groups) || groups[def.Group] == "" {
			if def.Optional {
				continue
			}
			return TimeData{}, false
		}
		v, err := strconv.Atoi(groups[def.Group])
		if err != nil || !def.valid(v) {
			return TimeData{}, false
		}
		switch def.Type {
		case Hours:
			td.Hours = v
		case Minutes:
			td.Minutes = v
		case Seconds:
			td.Seconds = v
		case Milliseconds:
			td.Milliseconds = v
			td.HasMillis = true
		case Frames:
			td.Frames = v
			td.HasFrames = true
		case Year:
			if v < 100 {
				v += 2000
			}
			td.Year = v
		case Month:
			td.Month = v
		case Day:
			td.Day = v
		case Channel:
			td.Channel = v
		case CameraID:
			td.CameraID = v
		}
	}
	if p.HasDate && !validDate(td.Year, td.Month, td.Day) {
		return TimeData{}, false
	}
	return td, true
}

var monthAbbrev = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

type dateForm struct {
	re *regexp.Regexp
	// read maps submatches to year, month and day.
	read func(g []string) (int, int, int, bool)
}

type timeForm struct {
	re     *regexp.Regexp
	millis bool
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

var dateForms = []dateForm{
	{ // YYYYMMDD
		re:   regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})`),
		read: func(g []string) (int, int, int, bool) { return atoi(g[1]), atoi(g[2]), atoi(g[3]), true },
	},
	{ // YYYY-MM-DD and YYYY/MM/DD
		re:   regexp.MustCompile(`^(\d{4})[-/](\d{2})[-/](\d{2})`),
		read: func(g []string) (int, int, int, bool) { return atoi(g[1]), atoi(g[2]), atoi(g[3]), true },
	},
	{ // DDMMMYY
		re: regexp.MustCompile(`^(?i)(\d{1,2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)(\d{2})`),
		read: func(g []string) (int, int, int, bool) {
			return 2000 + atoi(g[3]), monthAbbrev[strings.ToUpper(g[2])], atoi(g[1]), true
		},
	},
	{ // MMDDYYYY
		re:   regexp.MustCompile(`^(\d{2})(\d{2})(\d{4})`),
		read: func(g []string) (int, int, int, bool) { return atoi(g[3]), atoi(g[1]), atoi(g[2]), true },
	},
	{ // DD-MM-YYYY
		re:   regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})`),
		read: func(g []string) (int, int, int, bool) { return atoi(g[3]), atoi(g[2]), atoi(g[1]), true },
	},
}

var timeForms = []timeForm{
	{re: regexp.MustCompile(`^(\d{2})(\d{2})(\d{2})(\d{3})`), millis: true},
	{re: regexp.MustCompile(`^(\d{2})(\d{2})(\d{2})`)},
	{re: regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})`)},
	{re: regexp.MustCompile(`^(\d{2})_(\d{2})_(\d{2})`)},
	{re: regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{2})`)},
}

type span struct{ start, end int }

type dateCandidate struct {
	span
	year, month, day int
	score            float64
}

type timeCandidate struct {
	span
	h, m, s, ms int
	millis      bool
	score       float64
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// starts returns the offsets where a digit run begins.
func starts(name string) []int {
	var out []int
	for i := 0; i < len(name); i++ {
		if isDigit(name[i]) && (i == 0 || !isDigit(name[i-1])) {
			out = append(out, i)
		}
	}
	return out
}

// bounded reports whether a match ending at end is not cut from a longer
// digit run.
func bounded(name string, end int) bool {
	return end >= len(name) || !isDigit(name[end])
}

func (m *Matcher) dates(name string) []dateCandidate {
	now := m.Now()
	var out []dateCandidate
	for _, i := range starts(name) {
		for _, f := range dateForms {
			loc := f.re.FindStringSubmatchIndex(name[i:])
			if loc == nil || !bounded(name, i+loc[1]) {
				continue
			}
			g := submatches(name[i:], loc)
			y, mo, d, ok := f.read(g)
			if !ok || !validDate(y, mo, d) {
				continue
			}
			c := dateCandidate{span: span{i, i + loc[1]}, year: y, month: mo, day: d}
			c.score = dateScore(c, len(name), now)
			out = append(out, c)
		}
	}
	return out
}

func (m *Matcher) times(name string) []timeCandidate {
	var out []timeCandidate
	for _, i := range starts(name) {
		for _, f := range timeForms {
			loc := f.re.FindStringSubmatchIndex(name[i:])
			if loc == nil || !bounded(name, i+loc[1]) {
				continue
			}
			g := submatches(name[i:], loc)
			c := timeCandidate{span: span{i, i + loc[1]}, h: atoi(g[1]), m: atoi(g[2]), s: atoi(g[3])}
			if f.millis {
				c.ms = atoi(g[4])
				c.millis = true
			}
			if c.h > 23 || c.m > 59 || c.s > 59 {
				continue
			}
			c.score = timeScore(c, len(name))
			out = append(out, c)
		}
	}
	return out
}

func submatches(s string, loc []int) []string {
	g := make([]string, len(loc)/2)
	for k := range g {
		if loc[2*k] >= 0 {
			g[k] = s[loc[2*k]:loc[2*k+1]]
		}
	}
	return g
}

func dateScore(c dateCandidate, n int, now time.Time) float64 {
	score := 0.5
	switch {
	case c.year >= now.Year()-5 && c.year <= now.Year()+5:
		score += 0.3
	case c.year >= 2000:
		score += 0.1
	default:
		score -= 0.3
	}
	pos := float64(c.start) / float64(n)
	switch {
	case pos < 0.3:
		score += 0.2
	case pos < 0.6:
		score += 0.1
	}
	switch {
	case c.day <= 28:
		score += 0.1
	case c.month == 2:
		score += 0.02
	default:
		score += 0.05
	}
	return score
}

func timeScore(c timeCandidate, n int) float64 {
	score := 0.7
	pos := float64(c.start) / float64(n)
	switch {
	case pos >= 0.3 && pos <= 0.7:
		score += 0.2
	case pos < 0.3:
		score += 0.1
	}
	return score
}

// adjacent reports whether two spans sit within 14 bytes of each other.
func adjacent(a, b span) bool {
	const window = 14
	return (b.start >= a.end && b.start-a.end <= window) || (a.start >= b.end && a.start-b.end <= window)
}

func overlaps(a, b span) bool { return a.start < b.end && b.start < a.end }

// attachDate fills td's date from the best date found elsewhere in name.
func (m *Matcher) attachDate(td *TimeData, name string) {
	dates := m.dates(name)
	if len(dates) == 0 {
		return
	}
	best := dates[0]
	for _, d := range dates[1:] {
		if d.score > best.score {
			best = d
		}
	}
	td.Year, td.Month, td.Day = best.year, best.month, best.day
}

// twoPhase searches for a date and a time independently and combines the
// highest scoring pair. A time with no date is still a match.
func (m *Matcher) twoPhase(name string) (TimeData, bool) {
	times := m.times(name)
	if len(times) == 0 {
		return TimeData{}, false
	}
	dates := m.dates(name)
	sort.SliceStable(times, func(i, j int) bool { return times[i].score > times[j].score })
	sort.SliceStable(dates, func(i, j int) bool { return dates[i].score > dates[j].score })

	bestTime := times[0]
	var bestDate *dateCandidate
	best := bestTime.score
	for _, t := range times {
		for k := range dates {
			d := dates[k]
			if overlaps(t.span, d.span) {
				continue
			}
			ts, ds := t.score, d.score
			if adjacent(t.span, d.span) {
				ts += 0.1
				ds += 0.1
			}
			if bestDate == nil || ts+ds > best {
				best = ts + ds
				bestTime = t
				bestDate = &dates[k]
			}
		}
	}

	td := TimeData{
		Hours: bestTime.h, Minutes: bestTime.m, Seconds: bestTime.s,
		Milliseconds: bestTime.ms, HasMillis: bestTime.millis,
		PatternID: TwoPhaseID, Confidence: bestTime.score,
	}
	if bestDate != nil {
		td.Year, td.Month, td.Day = bestDate.year, bestDate.month, bestDate.day
		td.Confidence = (best) / 2
	}
	return td, true
}
