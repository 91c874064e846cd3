// Package media reads capture times from recovered stills and video exports
// so a case form can be pre-filled with the footage time range. Stills are
// read from EXIF first; any file may fall back to the time in its name.
package media

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/conneroisu/casefiler/internal/hashing"
	"github.com/conneroisu/casefiler/internal/timecode"
	"github.com/rwcarlsen/goexif/exif"
)

const exifLayout = "2006:01:02 15:04:05"

// ErrNoCaptureTime means the file carries no usable timestamp.
var ErrNoCaptureTime = errors.New("no capture time found")

// Probe sources.
const (
	SourceExif     = "exif"
	SourceFilename = "filename"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".dav": true,
	".264": true, ".h264": true, ".asf": true, ".wmv": true, ".m4v": true, ".ts": true,
}

func isImage(path string) bool { return imageExtensions[strings.ToLower(filepath.Ext(path))] }

// Probeable reports whether path is a still or video export worth reading.
func Probeable(path string) bool {
	return isImage(path) || videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// ProbeCaptureTime returns DateTimeOriginal, or DateTime when the original
// tag is absent. Times without a zone are interpreted as local time.
func ProbeCaptureTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, errors.WrapFile(err, "probe", path)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, ErrNoCaptureTime
	}

	if dt, err := x.DateTime(); err == nil && plausible(dt) {
		return dt, nil
	}
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		if dt, ok := parseExifTime(s); ok {
			return dt, nil
		}
	}
	return time.Time{}, ErrNoCaptureTime
}

// parseExifTime accepts the EXIF layout with trailing NULs or spaces.
func parseExifTime(s string) (time.Time, bool) {
	s = strings.TrimRight(s, "\x00 ")
	if len(s) < len(exifLayout) {
		return time.Time{}, false
	}
	dt, err := time.ParseInLocation(exifLayout, s[:len(exifLayout)], time.Local)
	if err != nil || !plausible(dt) {
		return time.Time{}, false
	}
	return dt, true
}

// plausible rejects zeroed camera clocks and dates in the future.
func plausible(t time.Time) bool {
	return t.Year() > 1990 && t.Year() <= time.Now().Year()+1
}

// Probe is the outcome for one file.
type Probe struct {
	Path        string     `json:"path" yaml:"path"`
	CaptureTime *time.Time `json:"capture_time,omitempty" yaml:"capture_time,omitempty"`
	Source      string     `json:"source,omitempty" yaml:"source,omitempty"`
	Pattern     string     `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Timecode    string     `json:"timecode,omitempty" yaml:"timecode,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Range is the span of capture times found under a set of paths.
type Range struct {
	Start  time.Time `json:"start" yaml:"start"`
	End    time.Time `json:"end" yaml:"end"`
	Probes []Probe   `json:"probes" yaml:"probes"`
	Found  int       `json:"found" yaml:"found"`
}

// Reader reads capture times from files.
type Reader struct {
	// FilenameTimes enables reading times from file names.
	FilenameTimes bool
	// FrameRate is used for the SMPTE timecode of filename matches.
	FrameRate float64
	// Pattern restricts filename matching to one pattern ID.
	Pattern string
	// Offset corrects a recorder clock.
	Offset timecode.Offset

	matcher *timecode.Matcher
}

// NewReader returns a reader that reads file names at fps.
func NewReader(filenameTimes bool, fps float64) *Reader {
	return &Reader{FilenameTimes: filenameTimes, FrameRate: fps, matcher: timecode.NewMatcher()}
}

// DefaultReader reads EXIF and file names at 30 frames per second.
func DefaultReader() *Reader { return NewReader(true, 30) }

// ReadFile reads one file. Stills try EXIF before the name; videos only
// have the name. A time without a date fills Timecode but not CaptureTime.
func (p *Reader) ReadFile(path string) Probe {
	out := Probe{Path: path}
	var exifErr error
	if isImage(path) {
		dt, err := ProbeCaptureTime(path)
		if err == nil {
			dt = timecode.ApplyOffsetTime(dt, p.Offset)
			out.CaptureTime, out.Source = &dt, SourceExif
			return out
		}
		exifErr = err
		if !errors.Is(err, ErrNoCaptureTime) {
			out.Error = err.Error()
			return out
		}
	}
	if !p.FilenameTimes {
		if exifErr == nil {
			exifErr = ErrNoCaptureTime
		}
		out.Error = exifErr.Error()
		return out
	}
	p.fromName(&out)
	return out
}

func (p *Reader) fromName(out *Probe) {
	if p.matcher == nil {
		p.matcher = timecode.NewMatcher()
	}
	td, err := p.matcher.Match(out.Path, p.Pattern)
	if err != nil {
		out.Error = ErrNoCaptureTime.Error()
		return
	}
	out.Source, out.Pattern = SourceFilename, td.PatternID

	tc, err := timecode.ToSMPTE(td, p.FrameRate)
	if err != nil {
		out.Error = err.Error()
		return
	}
	out.Timecode = timecode.ApplyOffset(tc, p.Offset, p.FrameRate).String()

	if td.HasDate() {
		dt, err := td.Time(time.Local)
		if err != nil {
			out.Error = err.Error()
			return
		}
		dt = timecode.ApplyOffsetTime(dt, p.Offset)
		out.CaptureTime = &dt
	}
}

// ProbeAll reads every still and video below paths, in path order.
func (p *Reader) ProbeAll(paths []string) ([]Probe, error) {
	files, err := hashing.Discover(paths)
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var out []Probe
	for _, f := range files {
		if !Probeable(f.Path) {
			continue
		}
		out = append(out, p.ReadFile(f.Path))
	}
	return out, nil
}

// CaptureRange returns the earliest and latest dated capture times below
// paths. It returns ErrNoCaptureTime when no file has one.
func (p *Reader) CaptureRange(paths []string) (*Range, error) {
	probes, err := p.ProbeAll(paths)
	if err != nil {
		return nil, err
	}
	r := &Range{Probes: probes}
	for _, pr := range probes {
		if pr.CaptureTime == nil {
			continue
		}
		t := *pr.CaptureTime
		if r.Found == 0 || t.Before(r.Start) {
			r.Start = t
		}
		if r.Found == 0 || t.After(r.End) {
			r.End = t
		}
		r.Found++
	}
	if r.Found == 0 {
		return r, ErrNoCaptureTime
	}
	return r, nil
}

// ProbeAll reads paths with the default reader.
func ProbeAll(paths []string) ([]Probe, error) { return DefaultReader().ProbeAll(paths) }

// CaptureRange reads paths with the default reader.
func CaptureRange(paths []string) (*Range, error) { return DefaultReader().CaptureRange(paths) }

// FillVideoRange sets the form's video start and end from r where they are
// blank. It reports whether anything changed.
func FillVideoRange(form *forms.FormData, r *Range) bool {
	if r == nil || r.Found == 0 {
		return false
	}
	changed := false
	if form.VideoStart == nil {
		start := r.Start
		form.VideoStart = &start
		changed = true
	}
	if form.VideoEnd == nil && r.End.After(*form.VideoStart) {
		end := r.End
		form.VideoEnd = &end
		changed = true
	}
	return changed
}
