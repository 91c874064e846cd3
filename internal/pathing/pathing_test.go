package pathing

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeComponent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "_"},
		{"plain", "Corner Store", "Corner Store"},
		{"separators", `a/b\c`, "a_b_c"},
		{"windows invalid", `what?<>:"|*`, "what_______"},
		{"control chars", "ab\x00\x1fc", "abc"},
		{"trim dots and spaces", "  ..name.. ", "name"},
		{"reserved", "CON", "_CON"},
		{"reserved lower with ext", "lpt1.txt", "_lpt1.txt"},
		{"not reserved", "CONSOLE", "CONSOLE"},
		{"only dots", "...", "_"},
		{"fullwidth normalized", "ＡＢＣ", "ABC"},
		{"fullwidth slash", "a／b", "a_b"},
		{"control between letter and accent", "e\x01\u0301", "\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeComponent(tt.in))
		})
	}
}

func TestSanitizeTruncatesPreservingExtension(t *testing.T) {
	long := strings.Repeat("x", 400) + ".mp4"
	got := SanitizeComponent(long)

	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasSuffix(got, ".mp4"))

	multibyte := strings.Repeat("é", 300)
	got = SanitizeComponent(multibyte)
	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasPrefix(got, "é"))
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{"", "CON", " a/b ", strings.Repeat("y", 300) + ".jpeg", "ｃｏｍ１", "x\ty", "e\x01\u0301", "A\x7f\u030a/x"}
	for _, in := range inputs {
		once := SanitizeComponent(in)
		assert.Equal(t, once, SanitizeComponent(once), "input %q", in)
	}
}

func TestValidateDestination(t *testing.T) {
	base := t.TempDir()

	got, err := ValidateDestination(filepath.Join(base, "2024-1", "loc"), base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "2024-1", "loc"), got)

	_, err = ValidateDestination(base, base)
	assert.NoError(t, err)

	_, err = ValidateDestination(filepath.Join(base, "..", "escape"), base)
	require.Error(t, err)
	assert.True(t, errors.IsSecurityError(err))

	_, err = ValidateDestination(filepath.Join(base, "a", "..", "..", "x"), base)
	assert.Error(t, err)

	// a sibling sharing the prefix is still outside
	_, err = ValidateDestination(base+"-other", base)
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	tm := time.Date(2025, time.August, 28, 16, 30, 0, 0, time.UTC)
	assert.Equal(t, "28AUG25_1630", FormatDate(tm, DateMilitary))
	assert.Equal(t, "2025-08-28_1630", FormatDate(tm, DateISO))

	early := time.Date(2025, time.August, 5, 9, 7, 0, 0, time.UTC)
	assert.Equal(t, "5AUG25_0907", FormatDate(early, DateMilitary))
	assert.Equal(t, "2025-08-05_0907", FormatDate(early, DateISO))

	f, err := ParseDateFormat("")
	require.NoError(t, err)
	assert.Equal(t, DateMilitary, f)
	_, err = ParseDateFormat("julian")
	assert.Error(t, err)
}

func TestDefaultLayout(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	start := time.Date(2025, 8, 28, 16, 30, 0, 0, time.UTC)
	end := time.Date(2025, 8, 28, 18, 15, 0, 0, time.UTC)
	early := time.Date(2025, 8, 5, 9, 7, 0, 0, time.UTC)

	tests := []struct {
		name string
		form forms.FormData
		want []string
	}{
		{
			name: "full",
			form: forms.FormData{OccurrenceNumber: "2024-001", BusinessName: "Shop", LocationAddress: "1 Main St", VideoStart: &start, VideoEnd: &end},
			want: []string{"2024-001", "Shop @ 1 Main St", "28AUG25_1630_to_28AUG25_1815_DVR_Time"},
		},
		{
			name: "start only",
			form: forms.FormData{OccurrenceNumber: "X1", BusinessName: "B", VideoStart: &early},
			want: []string{"X1", "B", "5AUG25_0907_to_5AUG25_0907_DVR_Time"},
		},
		{
			name: "address only, no times",
			form: forms.FormData{OccurrenceNumber: "2024-001", LocationAddress: "1 Main St"},
			want: []string{"2024-001", "1 Main St", "2025-09-01_080000"},
		},
		{
			name: "nothing",
			form: forms.FormData{},
			want: []string{NoOccurrence, NoLocation, "2025-09-01_080000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultLayout(&tt.form, now))
		})
	}

	rel := DefaultRelativePath(&forms.FormData{OccurrenceNumber: "a/b", BusinessName: "x"}, now)
	assert.Equal(t, filepath.Join("a_b", "x", "2025-09-01_080000"), rel)
}

func TestJoinComponents(t *testing.T) {
	assert.Equal(t, filepath.Join("a_b", "_"), JoinComponents("a/b", ""))
}
