// Package templates implements user-defined folder templates: a small pattern
// language with {field} placeholders, the typed template document, its
// multi-pass validator, the path builder, and the on-disk template store.
package templates

import (
	"fmt"
	"strings"
)

// Segment is one piece of a parsed pattern: a Literal or a FieldRef.
type Segment interface {
	segment()
}

// Literal is text copied verbatim into the rendered name.
type Literal struct {
	Text string
}

// FieldRef is a {name} placeholder.
type FieldRef struct {
	Name string
}

func (Literal) segment()  {}
func (FieldRef) segment() {}

// Pattern is a parsed template pattern.
type Pattern struct {
	Source   string
	Segments []Segment
}

// SyntaxErrorKind classifies pattern syntax errors.
type SyntaxErrorKind string

const (
	SyntaxUnbalanced SyntaxErrorKind = "unbalanced"
	SyntaxEmptyField SyntaxErrorKind = "empty_field"
	SyntaxNested     SyntaxErrorKind = "nested"
	SyntaxBadName    SyntaxErrorKind = "bad_name"
)

// SyntaxError reports where a pattern failed to parse.
type SyntaxError struct {
	Kind    SyntaxErrorKind
	Pattern string
	Offset  int
}

func (e *SyntaxError) Error() string {
	switch e.Kind {
	case SyntaxEmptyField:
		return fmt.Sprintf("empty field reference at offset %d in %q", e.Offset, e.Pattern)
	case SyntaxNested:
		return fmt.Sprintf("nested braces at offset %d in %q", e.Offset, e.Pattern)
	case SyntaxBadName:
		return fmt.Sprintf("invalid field name at offset %d in %q", e.Offset, e.Pattern)
	default:
		return fmt.Sprintf("unbalanced braces at offset %d in %q", e.Offset, e.Pattern)
	}
}

// Suggestion returns a short fix hint for the technician.
func (e *SyntaxError) Suggestion() string {
	switch e.Kind {
	case SyntaxEmptyField:
		return "Provide field names inside braces, e.g. {occurrence_number}"
	case SyntaxNested:
		return "Use flat field references, e.g. {field_name}"
	case SyntaxBadName:
		return "Field names may only contain letters, digits and underscores"
	default:
		return "Ensure each { has a matching }"
	}
}

// ParsePattern parses src into literal and field segments. Field names are
// word characters; whitespace inside braces is rejected.
func ParsePattern(src string) (Pattern, error) {
	p := Pattern{Source: src}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			p.Segments = append(p.Segments, Literal{Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '}':
			return Pattern{}, &SyntaxError{Kind: SyntaxUnbalanced, Pattern: src, Offset: i}
		case '{':
			end := -1
			for j := i + 1; j < len(src); j++ {
				if src[j] == '{' {
					return Pattern{}, &SyntaxError{Kind: SyntaxNested, Pattern: src, Offset: j}
				}
				if src[j] == '}' {
					end = j
					break
				}
			}
			if end < 0 {
				return Pattern{}, &SyntaxError{Kind: SyntaxUnbalanced, Pattern: src, Offset: i}
			}

			name := src[i+1 : end]
			if strings.TrimSpace(name) == "" {
				return Pattern{}, &SyntaxError{Kind: SyntaxEmptyField, Pattern: src, Offset: i}
			}
			if !isFieldName(name) {
				return Pattern{}, &SyntaxError{Kind: SyntaxBadName, Pattern: src, Offset: i + 1}
			}

			flush()
			p.Segments = append(p.Segments, FieldRef{Name: name})
			i = end
		default:
			lit.WriteByte(src[i])
		}
	}
	flush()

	return p, nil
}

// MustParsePattern is ParsePattern for patterns known at compile time.
func MustParsePattern(src string) Pattern {
	p, err := ParsePattern(src)
	if err != nil {
		panic(err)
	}
	return p
}

func isFieldName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return s != ""
}

// Fields lists the field names referenced by the pattern, in order, with
// duplicates.
func (p Pattern) Fields() []string {
	var out []string
	for _, s := range p.Segments {
		if f, ok := s.(FieldRef); ok {
			out = append(out, f.Name)
		}
	}
	return out
}

// Render substitutes each field with lookup(name).
func (p Pattern) Render(lookup func(name string) string) string {
	var b strings.Builder
	for _, s := range p.Segments {
		switch s := s.(type) {
		case Literal:
			b.WriteString(s.Text)
		case FieldRef:
			b.WriteString(lookup(s.Name))
		}
	}
	return b.String()
}

// String reassembles the pattern source from its segments.
func (p Pattern) String() string {
	return p.Render(func(name string) string { return "{" + name + "}" })
}
