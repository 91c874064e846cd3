package templates

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/conneroisu/casefiler/internal/pathing"
)

const (
	// UnknownComponent names a level whose pattern and fallback are both empty.
	UnknownComponent = "UNKNOWN"

	// DefaultDocumentsDir is the name of the reports folder.
	DefaultDocumentsDir = "Documents"

	defaultArchivePattern  = "{occurrence_number}_Video_Recovery.zip"
	defaultArchiveFallback = "{occurrence_number}_Recovery.zip"
)

type compiledLevel struct {
	pattern      Pattern
	fallback     *Pattern
	businessOnly *Pattern
	locationOnly *Pattern
	neither      *Pattern
	dateFormat   pathing.DateFormat
	prefix       string
	suffix       string
}

// Builder renders folder paths and archive names for one template.
type Builder struct {
	id              string
	template        *Template
	levels          []compiledLevel
	archive         Pattern
	archiveFallback Pattern
	documentsName   string
	now             func() time.Time
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithClock fixes the instant used for current_* fields.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithDocumentsName overrides the Documents folder name.
func WithDocumentsName(name string) BuilderOption {
	return func(b *Builder) {
		if strings.TrimSpace(name) != "" {
			b.documentsName = name
		}
	}
}

// NewBuilder parses every pattern in tpl once. It fails on the first syntax
// error; run Validate for a complete report.
func NewBuilder(id string, tpl *Template, opts ...BuilderOption) (*Builder, error) {
	if tpl == nil {
		return nil, errors.ErrTemplateNotFound(id)
	}
	if len(tpl.Structure.Levels) == 0 {
		return nil, errors.NewTemplateValidationError(id, "template has no levels")
	}

	b := &Builder{
		id:            id,
		template:      tpl,
		documentsName: DefaultDocumentsDir,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	for i, lvl := range tpl.Structure.Levels {
		cl, err := compileLevel(lvl)
		if err != nil {
			return nil, errors.NewTemplateValidationError(id,
				fmt.Sprintf("level %d: %v", i+1, err))
		}
		b.levels = append(b.levels, cl)
	}

	pattern, fallback := defaultArchivePattern, defaultArchiveFallback
	if an := tpl.ArchiveNaming; an != nil {
		if an.Pattern != "" {
			pattern = an.Pattern
		}
		if an.FallbackPattern != "" {
			fallback = an.FallbackPattern
		}
	}
	var err error
	if b.archive, err = ParsePattern(pattern); err != nil {
		return nil, errors.NewTemplateValidationError(id, "archive pattern: "+err.Error())
	}
	if b.archiveFallback, err = ParsePattern(fallback); err != nil {
		return nil, errors.NewTemplateValidationError(id, "archive fallback: "+err.Error())
	}

	return b, nil
}

func compileLevel(lvl Level) (compiledLevel, error) {
	var cl compiledLevel
	var err error

	if cl.pattern, err = ParsePattern(lvl.Pattern); err != nil {
		return cl, err
	}
	if cl.dateFormat, err = pathing.ParseDateFormat(lvl.DateFormat); err != nil {
		return cl, err
	}
	if cl.fallback, err = parseOptional(lvl.Fallback); err != nil {
		return cl, fmt.Errorf("fallback: %w", err)
	}
	if c := lvl.Conditionals; c != nil {
		if cl.businessOnly, err = parseOptional(c.BusinessOnly); err != nil {
			return cl, fmt.Errorf("business_only: %w", err)
		}
		if cl.locationOnly, err = parseOptional(c.LocationOnly); err != nil {
			return cl, fmt.Errorf("location_only: %w", err)
		}
		if cl.neither, err = parseOptional(c.Neither); err != nil {
			return cl, fmt.Errorf("neither: %w", err)
		}
	}
	cl.prefix = lvl.Prefix
	cl.suffix = lvl.Suffix
	return cl, nil
}

func parseOptional(src string) (*Pattern, error) {
	if src == "" {
		return nil, nil
	}
	p, err := ParsePattern(src)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ID returns the template id.
func (b *Builder) ID() string { return b.id }

// Template returns the template being rendered.
func (b *Builder) Template() *Template { return b.template }

// Depth returns the number of folder levels.
func (b *Builder) Depth() int { return len(b.levels) }

// BuildLevels renders each level to a sanitized folder name.
func (b *Builder) BuildLevels(form *forms.FormData) errors.Result[[]string] {
	if form == nil {
		return errors.Err[[]string](errors.NewValidationError(errors.ErrCodeValidationFailed, "no form data"))
	}

	now := b.now()
	hasBusiness := strings.TrimSpace(form.BusinessName) != ""
	hasLocation := strings.TrimSpace(form.LocationAddress) != ""

	out := make([]string, 0, len(b.levels))
	for _, lvl := range b.levels {
		lookup := fieldLookup(form, now, lvl.dateFormat)

		body, empty := renderChecked(lvl.choose(hasBusiness, hasLocation), lookup)
		if empty {
			body = ""
			if lvl.fallback != nil {
				if fb, fbEmpty := renderChecked(*lvl.fallback, lookup); !fbEmpty {
					body = fb
				}
			}
			if body == "" {
				body = UnknownComponent
			}
		}

		out = append(out, pathing.SanitizeComponent(lvl.prefix+body+lvl.suffix))
	}

	return errors.Ok(out)
}

// BuildRelativePath renders the folder hierarchy for form.
func (b *Builder) BuildRelativePath(form *forms.FormData) errors.Result[string] {
	return errors.Map(b.BuildLevels(form), func(levels []string) string {
		return filepath.Join(levels...)
	})
}

// choose picks the pattern for the available business and location data.
func (cl compiledLevel) choose(hasBusiness, hasLocation bool) Pattern {
	var alt *Pattern
	switch {
	case hasBusiness && hasLocation:
		return cl.pattern
	case hasBusiness:
		alt = cl.businessOnly
	case hasLocation:
		alt = cl.locationOnly
	default:
		alt = cl.neither
	}
	if alt != nil {
		return *alt
	}
	return cl.pattern
}

// renderChecked renders p and reports whether the result carries no data:
// blank text, or a pattern whose every field resolved empty.
func renderChecked(p Pattern, lookup func(string) string) (string, bool) {
	fields := 0
	filled := 0
	out := p.Render(func(name string) string {
		fields++
		v := lookup(name)
		if v != "" {
			filled++
		}
		return v
	})
	if strings.TrimSpace(out) == "" {
		return out, true
	}
	return out, fields > 0 && filled == 0
}

// BuildArchiveName renders the ZIP file name. It never returns an empty name.
func (b *Builder) BuildArchiveName(form *forms.FormData) string {
	now := b.now()
	if form == nil {
		return lastResortArchiveName(now)
	}
	lookup := fieldLookup(form, now, pathing.DateMilitary)

	for _, p := range []Pattern{b.archive, b.archiveFallback} {
		name, empty := renderChecked(p, lookup)
		if empty {
			continue
		}
		name = tidyArchiveName(name)
		if name == "" || strings.EqualFold(name, ".zip") {
			continue
		}
		name = pathing.SanitizeComponent(name)
		if !strings.HasSuffix(strings.ToLower(name), ".zip") {
			name += ".zip"
		}
		return name
	}

	return lastResortArchiveName(now)
}

var (
	spacedAt  = regexp.MustCompile(`\s+@\s*`)
	spaceRuns  = regexp.MustCompile(`\s{2,}`)
)

// tidyArchiveName normalizes a separated "@" to " @ " and collapses runs of
// whitespace. An "@" inside a word, as in an e-mail style name, is kept.
func tidyArchiveName(s string) string {
	s = spacedAt.ReplaceAllString(s, " @ ")
	s = spaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Placement returns the resolved Documents level for this template.
func (b *Builder) Placement() int {
	return b.template.DocumentsPlacement.Resolve(len(b.levels))
}

// DocumentsDir returns where reports go for a job whose folders were built at
// outputRoot/relPath.
func (b *Builder) DocumentsDir(outputRoot, relPath string) string {
	return DocumentsDir(outputRoot, relPath, b.template.DocumentsPlacement, b.documentsName)
}

// DocumentsDir places the documents folder under the first placement+1
// components of relPath. A nil placement selects the level above the deepest.
func DocumentsDir(outputRoot, relPath string, placement *Placement, name string) string {
	if name == "" {
		name = DefaultDocumentsDir
	}
	var components []string
	for _, c := range strings.Split(filepath.ToSlash(filepath.Clean(relPath)), "/") {
		if c != "" && c != "." {
			components = append(components, c)
		}
	}
	if len(components) == 0 {
		return filepath.Join(outputRoot, name)
	}

	lvl := placement.Resolve(len(components))
	parts := append([]string{outputRoot}, components[:lvl+1]...)
	return filepath.Join(append(parts, name)...)
}

// OccurrenceDir returns the top-level folder of relPath under outputRoot.
func OccurrenceDir(outputRoot, relPath string) string {
	first := strings.SplitN(filepath.ToSlash(filepath.Clean(relPath)), "/", 2)[0]
	return filepath.Join(outputRoot, first)
}

func lastResortArchiveName(now time.Time) string {
	return "Archive_" + now.Format("20060102_150405") + ".zip"
}
