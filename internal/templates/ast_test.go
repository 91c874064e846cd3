package templates

import (
	"testing"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("CASE_{occurrence_number} @ {location_address}")
	require.NoError(t, err)

	assert.Equal(t, []Segment{
		Literal{Text: "CASE_"},
		FieldRef{Name: "occurrence_number"},
		Literal{Text: " @ "},
		FieldRef{Name: "location_address"},
	}, p.Segments)
	assert.Equal(t, []string{"occurrence_number", "location_address"}, p.Fields())
	assert.Equal(t, p.Source, p.String())
}

func TestParsePatternErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind SyntaxErrorKind
	}{
		{"unclosed", "{occurrence_number", SyntaxUnbalanced},
		{"stray close", "occurrence}", SyntaxUnbalanced},
		{"empty", "a{}b", SyntaxEmptyField},
		{"blank", "a{  }b", SyntaxEmptyField},
		{"nested", "{a{b}}", SyntaxNested},
		{"bad name", "{not-a-field}", SyntaxBadName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePattern(tt.src)
			require.Error(t, err)

			var se *SyntaxError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.kind, se.Kind)
			assert.NotEmpty(t, se.Suggestion())
		})
	}
}

func TestPatternRender(t *testing.T) {
	p := MustParsePattern("{a}-{b}-literal")
	out := p.Render(func(name string) string {
		return map[string]string{"a": "1"}[name]
	})
	assert.Equal(t, "1--literal", out)

	empty := MustParsePattern("")
	assert.Empty(t, empty.Segments)
	assert.Equal(t, "", empty.Render(func(string) string { return "x" }))
}

func TestMustParsePatternPanics(t *testing.T) {
	assert.Panics(t, func() { MustParsePattern("{") })
}
