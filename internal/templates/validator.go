package templates

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conneroisu/casefiler/internal/errors"
)

// IssueLevel grades a validation finding.
type IssueLevel string

const (
	LevelError   IssueLevel = "error"
	LevelWarning IssueLevel = "warning"
	LevelInfo    IssueLevel = "info"
	LevelSuccess IssueLevel = "success"
)

// Issue is one validation finding.
type Issue struct {
	Level      IssueLevel `json:"level" yaml:"level"`
	Pass       string     `json:"pass" yaml:"pass"`
	Message    string     `json:"message" yaml:"message"`
	Path       string     `json:"path,omitempty" yaml:"path,omitempty"`
	Suggestion string     `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Field      string     `json:"field,omitempty" yaml:"field,omitempty"`
}

func (i Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(i.Level)), i.Message)
	if i.Path != "" {
		fmt.Fprintf(&b, " (%s)", i.Path)
	}
	if i.Suggestion != "" {
		fmt.Fprintf(&b, "\n  suggestion: %s", i.Suggestion)
	}
	return b.String()
}

// Report is the outcome of validating a template document.
type Report struct {
	Issues   []Issue   `json:"issues" yaml:"issues"`
	Document *Document `json:"-" yaml:"-"`
}

// Errors returns the error-level issues.
func (r *Report) Errors() []Issue { return r.filter(LevelError) }

// Warnings returns the warning-level issues.
func (r *Report) Warnings() []Issue { return r.filter(LevelWarning) }

// Valid reports whether the document decoded and no pass found an error.
func (r *Report) Valid() bool {
	return r.Document != nil && len(r.Errors()) == 0
}

func (r *Report) filter(level IssueLevel) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Level == level {
			out = append(out, i)
		}
	}
	return out
}

// Err converts the error-level issues into a template validation error.
func (r *Report) Err(source string) error {
	errs := r.Errors()
	if len(errs) == 0 && r.Document != nil {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return errors.NewTemplateValidationError(source,
		fmt.Sprintf("%d error(s): %s", len(errs), strings.Join(msgs, "; "))).
		WithContext("issues", errs).
		WithComponent("templates")
}

func (r *Report) add(level IssueLevel, pass, path, msg, suggestion string) {
	r.Issues = append(r.Issues, Issue{
		Level:      level,
		Pass:       pass,
		Message:    msg,
		Path:       path,
		Suggestion: suggestion,
		Field:      lastPathElement(path),
	})
}

func lastPathElement(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Complexity limits for template documents.
const (
	MaxDocumentBytes     = 1 << 20
	MaxPatternLength     = 200
	MaxLevels            = 10
	MaxTemplates         = 100
	MaxFieldReferences   = 50
	maxPlacementIndex    = 9
	warnLevels           = 8
	warnPatternLength    = 150
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxLevelNameLength   = 50
	maxFallbackLength    = 100
	maxAffixLength       = 50
	maxTags              = 20
	maxTagLength         = 50
	maxNotesLength       = 1000
)

var (
	templateIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)
	semverPattern     = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	controlChars      = regexp.MustCompile(`[\x00-\x1f]`)
	windowsInvalid    = regexp.MustCompile(`[<>:"|?*]`)
	reservedPattern   = regexp.MustCompile(`(?i)^(CON|PRN|AUX|NUL|COM[1-9]|LPT[1-9])$`)
)

// Validator runs the template validation passes in order: schema, security,
// business rules, performance, field references and pattern syntax. A schema
// failure stops validation.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateFile reads and validates a template file.
func (v *Validator) ValidateFile(path string) *Report {
	r := &Report{}
	info, err := os.Stat(path)
	if err != nil {
		r.add(LevelError, "schema", "", "cannot read template file: "+err.Error(), "check the file path")
		return r
	}
	if info.Size() > MaxDocumentBytes {
		r.add(LevelError, "schema", "", fmt.Sprintf("template file is %d bytes, limit is %d", info.Size(), MaxDocumentBytes),
			"split the templates into several files")
		return r
	}
	format, err := FormatFromPath(path)
	if err != nil {
		r.add(LevelError, "schema", "", err.Error(), "use a .json, .yaml or .yml file")
		return r
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.add(LevelError, "schema", "", "cannot read template file: "+err.Error(), "")
		return r
	}
	return v.Validate(data, format)
}

// Validate decodes raw and runs every pass.
func (v *Validator) Validate(raw []byte, format Format) *Report {
	r := &Report{}
	if len(raw) > MaxDocumentBytes {
		r.add(LevelError, "schema", "", fmt.Sprintf("template document is %d bytes, limit is %d", len(raw), MaxDocumentBytes),
			"split the templates into several files")
		return r
	}

	doc, err := DecodeDocument(raw, format)
	if err != nil {
		r.add(LevelError, "schema", "", err.Error(), "check the document against the template schema")
		return r
	}

	v.validateSchema(doc, r)
	if len(r.Errors()) > 0 {
		return r
	}
	r.Document = doc
	v.ValidateDocument(doc, r)
	return r
}

// ValidateDocument runs the passes after schema on an already decoded
// document, appending to r.
func (v *Validator) ValidateDocument(doc *Document, r *Report) {
	passes := []struct {
		name string
		run  func(*Document, *Report)
	}{
		{"security", v.validateSecurity},
		{"business", v.validateBusiness},
		{"performance", v.validatePerformance},
		{"fields", v.validateFields},
		{"patterns", v.validatePatterns},
	}
	for _, p := range passes {
		before := len(r.Errors())
		p.run(doc, r)
		if len(r.Errors()) == before {
			r.add(LevelSuccess, p.name, "", p.name+" validation passed", "")
		}
	}
}

func tplPath(id string) string { return "templates." + id }

func levelPath(id string, i int) string {
	return fmt.Sprintf("templates.%s.structure.levels[%d]", id, i)
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func (v *Validator) validateSchema(doc *Document, r *Report) {
	const pass = "schema"

	if !semverPattern.MatchString(doc.Version) {
		r.add(LevelError, pass, "version", fmt.Sprintf("version %q is not semantic (x.y.z)", doc.Version), `use a version such as "1.0.0"`)
	}
	switch {
	case len(doc.Templates) == 0:
		r.add(LevelError, pass, "templates", "document defines no templates", "add at least one template")
	case len(doc.Templates) > MaxTemplates:
		r.add(LevelError, pass, "templates", fmt.Sprintf("document defines %d templates, limit is %d", len(doc.Templates), MaxTemplates), "")
	}

	for _, id := range doc.IDs() {
		t := doc.Templates[id]
		base := tplPath(id)
		if !templateIDPattern.MatchString(id) {
			r.add(LevelError, pass, base, fmt.Sprintf("invalid template id %q", id),
				"use 1-50 letters, digits, underscores or hyphens")
		}
		if t == nil {
			r.add(LevelError, pass, base, "template is empty", "")
			continue
		}
		if strings.TrimSpace(t.Name) == "" {
			r.add(LevelError, pass, base+".templateName", "templateName is required", "give the template a readable name")
		} else if tooLong(t.Name, maxNameLength) {
			r.add(LevelError, pass, base+".templateName", "templateName exceeds 100 characters", "")
		}
		if tooLong(t.Description, maxDescriptionLength) {
			r.add(LevelError, pass, base+".templateDescription", "templateDescription exceeds 500 characters", "")
		}

		levels := t.Structure.Levels
		switch {
		case len(levels) == 0:
			r.add(LevelError, pass, base+".structure.levels", "at least one level is required", "add a level with a pattern")
		case len(levels) > MaxLevels:
			r.add(LevelError, pass, base+".structure.levels", fmt.Sprintf("%d levels exceeds the limit of %d", len(levels), MaxLevels), "")
		}
		for i, l := range levels {
			lp := levelPath(id, i)
			if l.Pattern == "" {
				r.add(LevelError, pass, lp+".pattern", "pattern is required", "")
			} else if tooLong(l.Pattern, MaxPatternLength) {
				r.add(LevelError, pass, lp+".pattern", "pattern exceeds 200 characters", "shorten the pattern")
			}
			if tooLong(l.Name, maxLevelNameLength) {
				r.add(LevelError, pass, lp+".name", "level name exceeds 50 characters", "")
			}
			if tooLong(l.Fallback, maxFallbackLength) {
				r.add(LevelError, pass, lp+".fallback", "fallback exceeds 100 characters", "")
			}
			if tooLong(l.Prefix, maxAffixLength) {
				r.add(LevelError, pass, lp+".prefix", "prefix exceeds 50 characters", "")
			}
			if tooLong(l.Suffix, maxAffixLength) {
				r.add(LevelError, pass, lp+".suffix", "suffix exceeds 50 characters", "")
			}
			if l.DateFormat != "" && l.DateFormat != "military" && l.DateFormat != "iso" {
				r.add(LevelError, pass, lp+".dateFormat", fmt.Sprintf("unknown dateFormat %q", l.DateFormat), `use "military" or "iso"`)
			}
			l.Conditionals.Each(func(name, p string) {
				if tooLong(p, MaxPatternLength) {
					r.add(LevelError, pass, lp+".conditionals."+name, "conditional exceeds 200 characters", "")
				}
			})
		}

		if p := t.DocumentsPlacement; p != nil && (p.Level < 0 || p.Level > maxPlacementIndex) {
			r.add(LevelError, pass, base+".documentsPlacement", fmt.Sprintf("documentsPlacement %d is outside 0-9", p.Level), "")
		}

		if an := t.ArchiveNaming; an != nil {
			if an.Pattern == "" {
				r.add(LevelError, pass, base+".archiveNaming.pattern", "archive pattern is required when archiveNaming is set", "")
			} else if tooLong(an.Pattern, MaxPatternLength) {
				r.add(LevelError, pass, base+".archiveNaming.pattern", "archive pattern exceeds 200 characters", "")
			}
			if tooLong(an.FallbackPattern, MaxPatternLength) {
				r.add(LevelError, pass, base+".archiveNaming.fallbackPattern", "archive fallback exceeds 200 characters", "")
			}
		}

		if m := t.Metadata; m != nil {
			v.validateMetadata(base+".metadata", m, r)
		}
	}
}

func (v *Validator) validateMetadata(base string, m *Metadata, r *Report) {
	const pass = "schema"
	for name, s := range map[string]string{
		"author": m.Author, "agency": m.Agency, "exported_by": m.ExportedBy,
	} {
		if tooLong(s, maxNameLength) {
			r.add(LevelError, pass, base+"."+name, name+" exceeds 100 characters", "")
		}
	}
	if tooLong(m.OriginalSource, 50) {
		r.add(LevelError, pass, base+".original_source", "original_source exceeds 50 characters", "")
	}
	if tooLong(m.ImportedFrom, MaxPatternLength) {
		r.add(LevelError, pass, base+".imported_from", "imported_from exceeds 200 characters", "")
	}
	if m.Version != "" && !semverPattern.MatchString(m.Version) {
		r.add(LevelError, pass, base+".version", fmt.Sprintf("metadata version %q is not semantic", m.Version), "")
	}
	for name, s := range map[string]string{
		"created": m.Created, "modified": m.Modified,
		"exported_date": m.ExportedDate, "imported_date": m.ImportedDate,
	} {
		if s != "" && !isTimestamp(s) {
			r.add(LevelError, pass, base+"."+name, name+" is not an ISO 8601 timestamp", "")
		}
	}
	if len(m.Tags) > maxTags {
		r.add(LevelError, pass, base+".tags", "more than 20 tags", "")
	}
	for _, tag := range m.Tags {
		if tooLong(tag, maxTagLength) {
			r.add(LevelError, pass, base+".tags", fmt.Sprintf("tag %q exceeds 50 characters", tag), "")
		}
	}
	if tooLong(m.Notes, maxNotesLength) {
		r.add(LevelError, pass, base+".notes", "notes exceed 1000 characters", "")
	}
}

func isTimestamp(s string) bool {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// unsafeReason reports why a pattern could produce an unsafe folder name.
func unsafeReason(p string) string {
	switch {
	case strings.Contains(p, ".."):
		return "path traversal sequence"
	case windowsInvalid.MatchString(p):
		return "characters invalid on Windows"
	case controlChars.MatchString(p):
		return "control characters"
	case reservedPattern.MatchString(strings.TrimSpace(p)):
		return "a reserved device name"
	case strings.TrimSpace(p) == "":
		return "only whitespace"
	case utf8.RuneCountInString(p) >= 300:
		return "excessive length"
	}
	return ""
}

func (v *Validator) validateSecurity(doc *Document, r *Report) {
	const pass = "security"
	for _, id := range doc.IDs() {
		if !templateIDPattern.MatchString(id) {
			r.add(LevelError, pass, tplPath(id), fmt.Sprintf("template id %q contains unsafe characters", id), "")
		}
		t := doc.Templates[id]
		for i, l := range t.Structure.Levels {
			lp := levelPath(id, i)
			if why := unsafeReason(l.Pattern); why != "" {
				r.add(LevelError, pass, lp+".pattern",
					fmt.Sprintf("pattern %q contains %s", l.Pattern, why), "remove the unsafe content")
			}
			if l.Fallback != "" {
				if why := unsafeReason(l.Fallback); why != "" {
					r.add(LevelWarning, pass, lp+".fallback",
						fmt.Sprintf("fallback %q contains %s", l.Fallback, why), "use a safe fallback pattern")
				}
			}
			l.Conditionals.Each(func(name, p string) {
				if why := unsafeReason(p); why != "" {
					r.add(LevelWarning, pass, lp+".conditionals."+name,
						fmt.Sprintf("conditional %s contains %s", name, why), "use a safe conditional pattern")
				}
			})
		}
		if an := t.ArchiveNaming; an != nil {
			for name, p := range map[string]string{"pattern": an.Pattern, "fallbackPattern": an.FallbackPattern} {
				if p == "" {
					continue
				}
				if why := unsafeReason(p); why != "" {
					r.add(LevelWarning, pass, tplPath(id)+".archiveNaming."+name,
						fmt.Sprintf("archive %s contains %s", name, why), "use a safe archive naming pattern")
				}
			}
		}
	}
}

func (v *Validator) validateBusiness(doc *Document, r *Report) {
	const pass = "business"
	for _, id := range doc.IDs() {
		t := doc.Templates[id]
		base := tplPath(id)
		if strings.TrimSpace(t.Name) == "" {
			r.add(LevelError, pass, base+".templateName", "template has no name", "")
		}
		levels := t.Structure.Levels
		if len(levels) == 0 {
			r.add(LevelError, pass, base+".structure.levels", "template has no levels", "")
			continue
		}

		for i, l := range levels {
			lp := levelPath(id, i)
			if strings.TrimSpace(l.Pattern) == "" {
				r.add(LevelError, pass, lp+".pattern", fmt.Sprintf("level %d has an empty pattern", i+1), "provide a pattern for each level")
				continue
			}
			refs := referencedFields(l.Pattern)
			for _, f := range refs {
				if f == id {
					r.add(LevelError, pass, lp+".pattern", fmt.Sprintf("circular reference to template %q in pattern", id), "remove the self reference")
				}
			}
			if l.DateFormat != "" && !anyDateField(levelPatterns(l)) {
				r.add(LevelWarning, pass, lp+".dateFormat",
					fmt.Sprintf("dateFormat %q set but level %d uses no datetime field", l.DateFormat, i+1),
					"remove dateFormat or add a datetime field")
			}
		}

		if p := t.DocumentsPlacement; p != nil {
			if p.Level >= len(levels) {
				r.add(LevelError, pass, base+".documentsPlacement",
					fmt.Sprintf("documentsPlacement %s is beyond the %d defined levels", p, len(levels)),
					fmt.Sprintf("use a level between 0 and %d", len(levels)-1))
			}
			if p.Alias == "datetime" && len(levels) < 3 {
				r.add(LevelWarning, pass, base+".documentsPlacement",
					"datetime placement needs at least 3 levels", "use a numeric level index")
			}
		}
	}
}

func (v *Validator) validatePerformance(doc *Document, r *Report) {
	const pass = "performance"
	for _, id := range doc.IDs() {
		t := doc.Templates[id]
		if n := len(t.Structure.Levels); n > warnLevels {
			r.add(LevelWarning, pass, tplPath(id)+".structure.levels",
				fmt.Sprintf("%d levels makes deep paths that may exceed filesystem limits", n), "flatten the hierarchy")
		}
		for i, l := range t.Structure.Levels {
			lp := levelPath(id, i) + ".pattern"
			if utf8.RuneCountInString(l.Pattern) > warnPatternLength {
				r.add(LevelWarning, pass, lp, fmt.Sprintf("very long pattern in level %d", i+1), "consider shortening the pattern")
			}
			if n := len(referencedFields(l.Pattern)); n > MaxFieldReferences {
				r.add(LevelWarning, pass, lp, fmt.Sprintf("level %d references %d fields", i+1, n), "consider simplifying the pattern")
			}
		}
	}
}

func (v *Validator) validateFields(doc *Document, r *Report) {
	const pass = "fields"
	for _, id := range doc.IDs() {
		t := doc.Templates[id]
		for i, l := range t.Structure.Levels {
			lp := levelPath(id, i)
			check := func(where, p string) {
				for _, f := range referencedFields(p) {
					if !IsKnownField(f) {
						r.add(LevelError, pass, lp+"."+where,
							fmt.Sprintf("unknown field reference {%s} in %s", f, where), "run 'casefiler template fields' for the list")
					} else if IsDateField(f) && l.DateFormat == "" && where == "pattern" {
						r.add(LevelWarning, pass, lp+"."+where,
							fmt.Sprintf("datetime field {%s} without dateFormat renders as military", f), `set dateFormat to "military" or "iso"`)
					}
				}
			}
			check("pattern", l.Pattern)
			check("fallback", l.Fallback)
			l.Conditionals.Each(func(name, p string) { check("conditionals."+name, p) })
		}
		if an := t.ArchiveNaming; an != nil {
			for name, p := range map[string]string{"pattern": an.Pattern, "fallbackPattern": an.FallbackPattern} {
				for _, f := range referencedFields(p) {
					if !IsKnownField(f) {
						r.add(LevelError, pass, tplPath(id)+".archiveNaming."+name,
							fmt.Sprintf("unknown field reference {%s} in archive %s", f, name), "")
					}
				}
			}
		}
	}
}

func (v *Validator) validatePatterns(doc *Document, r *Report) {
	const pass = "patterns"
	for _, id := range doc.IDs() {
		t := doc.Templates[id]
		for i, l := range t.Structure.Levels {
			lp := levelPath(id, i)
			syntax := func(where, p string) {
				if p == "" {
					return
				}
				if _, err := ParsePattern(p); err != nil {
					var se *SyntaxError
					suggestion := ""
					if errors.As(err, &se) {
						suggestion = se.Suggestion()
					}
					r.add(LevelError, pass, lp+"."+where, err.Error(), suggestion)
				}
			}
			syntax("pattern", l.Pattern)
			syntax("fallback", l.Fallback)
			l.Conditionals.Each(func(name, p string) { syntax("conditionals."+name, p) })

			if l.Fallback != "" && l.Fallback == l.Pattern {
				r.add(LevelError, pass, lp+".fallback", "fallback is identical to the pattern", "use a different fallback or remove it")
			}
		}
		if an := t.ArchiveNaming; an != nil {
			for name, p := range map[string]string{"pattern": an.Pattern, "fallbackPattern": an.FallbackPattern} {
				if p == "" {
					continue
				}
				if _, err := ParsePattern(p); err != nil {
					r.add(LevelError, pass, tplPath(id)+".archiveNaming."+name, err.Error(), "")
				}
			}
		}
	}
}

// referencedFields extracts {name} references leniently so the field pass can
// report on patterns that fail to parse.
var fieldRefPattern = regexp.MustCompile(`\{(\w+)\}`)

func referencedFields(p string) []string {
	var out []string
	for _, m := range fieldRefPattern.FindAllStringSubmatch(p, -1) {
		out = append(out, m[1])
	}
	return out
}

func levelPatterns(l Level) []string {
	out := []string{l.Pattern, l.Fallback}
	l.Conditionals.Each(func(_, p string) { out = append(out, p) })
	return out
}

func anyDateField(patterns []string) bool {
	for _, p := range patterns {
		for _, f := range referencedFields(p) {
			if IsDateField(f) || f == "current_datetime" || f == "current_date" {
				return true
			}
		}
	}
	return false
}
