package timecode

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
)

// MinFrameRate and MaxFrameRate bound the accepted frame rates.
const (
	MinFrameRate = 1.0
	MaxFrameRate = 240.0
)

var smpteRE = regexp.MustCompile(`^([0-2]\d):([0-5]\d):([0-5]\d):([0-6]\d)$`)

// SMPTE is an HH:MM:SS:FF timecode.
type SMPTE struct {
	Hours, Minutes, Seconds, Frames int
}

func (s SMPTE) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", s.Hours, s.Minutes, s.Seconds, s.Frames)
}

func checkRate(fps float64) error {
	if fps < MinFrameRate || fps > MaxFrameRate || math.IsNaN(fps) {
		return errors.NewValidationError(errors.ErrCodeInvalidTimecode,
			fmt.Sprintf("frame rate %g outside %g to %g", fps, MinFrameRate, MaxFrameRate))
	}
	return nil
}

// ToSMPTE converts td to a timecode at fps. Milliseconds become the nearest
// frame; a value that rounds up to a full second is shown as frame zero.
func ToSMPTE(td TimeData, fps float64) (SMPTE, error) {
	if err := checkRate(fps); err != nil {
		return SMPTE{}, err
	}
	s := SMPTE{Hours: td.Hours, Minutes: td.Minutes, Seconds: td.Seconds}
	switch {
	case td.HasFrames:
		s.Frames = td.Frames
	case td.HasMillis:
		s.Frames = int(math.Round(float64(td.Milliseconds) / 1000 * fps))
		if s.Frames >= int(math.Round(fps)) {
			s.Frames = 0
		}
	}
	return normalize(s, fps), nil
}

// normalize carries overflowing frames, seconds and minutes upward and
// wraps hours at 24.
func normalize(s SMPTE, fps float64) SMPTE {
	perSecond := int(math.Ceil(fps))
	if s.Frames >= perSecond {
		s.Seconds += s.Frames / perSecond
		s.Frames %= perSecond
	}
	total := s.Hours*3600 + s.Minutes*60 + s.Seconds
	total %= 24 * 3600
	if total < 0 {
		total += 24 * 3600
	}
	s.Hours, s.Minutes, s.Seconds = total/3600, total/60%60, total%60
	return s
}

// ParseSMPTE parses an HH:MM:SS:FF string.
func ParseSMPTE(v string) (SMPTE, error) {
	g := smpteRE.FindStringSubmatch(v)
	if g == nil {
		return SMPTE{}, errors.NewValidationError(errors.ErrCodeInvalidTimecode, "invalid timecode: "+v)
	}
	s := SMPTE{}
	s.Hours, _ = strconv.Atoi(g[1])
	s.Minutes, _ = strconv.Atoi(g[2])
	s.Seconds, _ = strconv.Atoi(g[3])
	s.Frames, _ = strconv.Atoi(g[4])
	if s.Hours > 23 {
		return SMPTE{}, errors.NewValidationError(errors.ErrCodeInvalidTimecode, "invalid timecode: "+v)
	}
	return s, nil
}

// Direction says which way a recorder clock was wrong.
type Direction string

const (
	// Behind means the recorder clock runs slow, so the offset is added.
	Behind Direction = "behind"
	// Ahead means the recorder clock runs fast, so the offset is subtracted.
	Ahead Direction = "ahead"
)

// Offset is a recorder clock correction.
type Offset struct {
	Duration  time.Duration
	Direction Direction
}

// IsZero reports whether o changes nothing.
func (o Offset) IsZero() bool { return o.Duration == 0 }

func (o Offset) String() string {
	if o.IsZero() {
		return ""
	}
	return o.Duration.String() + " " + string(o.Direction)
}

// ParseDirection accepts "behind" or "ahead".
func ParseDirection(v string) (Direction, error) {
	switch Direction(v) {
	case Behind, Ahead:
		return Direction(v), nil
	}
	return "", errors.NewValidationError(errors.ErrCodeInvalidTimecode,
		"offset direction must be behind or ahead, got "+v)
}

// ApplyOffset shifts s by whole seconds of o; frames are kept.
func ApplyOffset(s SMPTE, o Offset, fps float64) SMPTE {
	secs := int(o.Duration / time.Second)
	if o.Direction == Ahead {
		secs = -secs
	}
	s.Seconds += secs
	return normalize(s, fps)
}

// ApplyOffsetTime shifts t by o.
func ApplyOffsetTime(t time.Time, o Offset) time.Time {
	if o.Direction == Ahead {
		return t.Add(-o.Duration)
	}
	return t.Add(o.Duration)
}
