package templates

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var fixedNow = time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func at(y int, m time.Month, d, h, min int) *time.Time {
	t := time.Date(y, m, d, h, min, 0, 0, time.UTC)
	return &t
}

func defaultBuilder(t *testing.T) *Builder {
	t.Helper()
	tpl, ok := SystemTemplate(DefaultTemplateID)
	require.True(t, ok)
	b, err := NewBuilder(DefaultTemplateID, tpl, WithClock(clock))
	require.NoError(t, err)
	return b
}

func TestDefaultForensicLevels(t *testing.T) {
	b := defaultBuilder(t)

	tests := []struct {
		name string
		form forms.FormData
		want []string
	}{
		{
			name: "all fields",
			form: forms.FormData{
				OccurrenceNumber: "2024-TEST",
				BusinessName:     "Test Business",
				LocationAddress:  "123 Test St",
				VideoStart:       at(2025, time.July, 30, 23, 12),
				VideoEnd:         at(2025, time.July, 30, 23, 45),
			},
			want: []string{"2024-TEST", "Test Business @ 123 Test St", "30JUL25_2312_to_30JUL25_2345_DVR_Time"},
		},
		{
			name: "business only",
			form: forms.FormData{OccurrenceNumber: "2024-TEST", BusinessName: "Test Business"},
			want: []string{"2024-TEST", "Test Business", "2025-09-01_080000"},
		},
		{
			name: "location only",
			form: forms.FormData{OccurrenceNumber: "2024-TEST", LocationAddress: "9 Side Rd"},
			want: []string{"2024-TEST", "9 Side Rd", "2025-09-01_080000"},
		},
		{
			name: "nothing",
			form: forms.FormData{},
			want: []string{"NO_OCCURRENCE", "NO_LOCATION", "2025-09-01_080000"},
		},
		{
			name: "unsafe characters are sanitized",
			form: forms.FormData{OccurrenceNumber: "2024/1", BusinessName: "A:B", LocationAddress: "C"},
			want: []string{"2024_1", "A_B @ C", "2025-09-01_080000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.BuildLevels(&tt.form).Unwrap()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildRelativePath(t *testing.T) {
	b := defaultBuilder(t)
	form := &forms.FormData{OccurrenceNumber: "X1", BusinessName: "Shop"}

	res := b.BuildRelativePath(form)
	require.True(t, res.Success())
	assert.Equal(t, filepath.Join("X1", "Shop", "2025-09-01_080000"), res.UnwrapOr(""))

	assert.False(t, b.BuildRelativePath(nil).Success())
}

func TestLevelOptions(t *testing.T) {
	tpl := &Template{
		Name: "opts",
		Structure: Structure{Levels: []Level{
			{Pattern: "{badge_number}", Prefix: "B-", Suffix: "-X"},
			{Pattern: "{video_start_datetime}", DateFormat: "iso"},
			{Pattern: "{technician_name}", Fallback: "{badge_number}"},
			{Pattern: "Y{year}"},
		}},
	}
	b, err := NewBuilder("opts", tpl, WithClock(clock))
	require.NoError(t, err)

	got, err := b.BuildLevels(&forms.FormData{VideoStart: at(2025, time.August, 28, 16, 30)}).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, []string{"B-UNKNOWN-X", "2025-08-28_1630", "UNKNOWN", "Y2025"}, got)
}

func TestNewBuilderRejectsBadTemplates(t *testing.T) {
	_, err := NewBuilder("x", nil)
	assert.Error(t, err)

	_, err = NewBuilder("x", &Template{Name: "x"})
	assert.Error(t, err)

	_, err = NewBuilder("x", &Template{Name: "x", Structure: Structure{Levels: []Level{{Pattern: "{oops"}}}})
	assert.Error(t, err)

	_, err = NewBuilder("x", &Template{Name: "x", Structure: Structure{Levels: []Level{{Pattern: "a", DateFormat: "julian"}}}})
	assert.Error(t, err)
}

func TestBuildArchiveName(t *testing.T) {
	full := &forms.FormData{
		OccurrenceNumber: "2024-TEST-001",
		BusinessName:     "Test Business",
		LocationAddress:  "123 Test Street",
	}

	b := defaultBuilder(t)
	assert.Equal(t, "2024-TEST-001 Test Business @ 123 Test Street Video Recovery.zip", b.BuildArchiveName(full))

	noBusiness := *full
	noBusiness.BusinessName = ""
	assert.Equal(t, "2024-TEST-001 @ 123 Test Street Video Recovery.zip", b.BuildArchiveName(&noBusiness))

	plain, err := NewBuilder("p", &Template{
		Name:      "p",
		Structure: Structure{Levels: []Level{{Pattern: "{occurrence_number}"}}},
	}, WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, "2024-TEST-001_Video_Recovery.zip", plain.BuildArchiveName(full))
	assert.Equal(t, "Archive_20250901_080000.zip", plain.BuildArchiveName(&forms.FormData{}))

	custom, err := NewBuilder("c", &Template{
		Name:          "c",
		Structure:     Structure{Levels: []Level{{Pattern: "{occurrence_number}"}}},
		ArchiveNaming: &ArchiveNaming{Pattern: "FILE_{occurrence_number}_{year}_Evidence"},
	}, WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, "FILE_2024-TEST-001_2025_Evidence.zip", custom.BuildArchiveName(full))
}

func TestTidyArchiveName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A  Shop @ 1 Main St", "A Shop @ 1 Main St"},
		{"A  @ 1 Main St", "A @ 1 Main St"},
		{"A Shop @  Video", "A Shop @ Video"},
		{"A\t@x", "A @ x"},
		{"a@b Recovery", "a@b Recovery"},
		{"  a   b  ", "a b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tidyArchiveName(tt.in), "input %q", tt.in)
	}
}

func TestBuildArchiveNameKeepsInlineAt(t *testing.T) {
	b := defaultBuilder(t)
	form := &forms.FormData{OccurrenceNumber: "2024-1", BusinessName: "a@b", LocationAddress: "1 Main St"}
	assert.Equal(t, "2024-1 a@b @ 1 Main St Video Recovery.zip", b.BuildArchiveName(form))
}

func TestDocumentsDir(t *testing.T) {
	root := filepath.Join("out")
	rel := filepath.Join("a", "b", "c")

	tests := []struct {
		name      string
		placement *Placement
		want      string
	}{
		{"default", nil, filepath.Join(root, "a", "b", "Documents")},
		{"occurrence", &Placement{Level: 0, Alias: "occurrence"}, filepath.Join(root, "a", "Documents")},
		{"datetime", &Placement{Level: 2, Alias: "datetime"}, filepath.Join(root, "a", "b", "c", "Documents")},
		{"clamped", PlacementLevel(9), filepath.Join(root, "a", "b", "c", "Documents")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentsDir(root, rel, tt.placement, ""))
		})
	}

	assert.Equal(t, filepath.Join(root, "a", "Docs"), DocumentsDir(root, "a", nil, "Docs"))
	assert.Equal(t, filepath.Join(root, "Documents"), DocumentsDir(root, "", nil, ""))

	b := defaultBuilder(t)
	assert.Equal(t, 1, b.Placement())
	assert.Equal(t, filepath.Join(root, "a", "b", "Documents"), b.DocumentsDir(root, rel))
	assert.Equal(t, filepath.Join(root, "a"), OccurrenceDir(root, rel))
}

func TestPlacementDecoding(t *testing.T) {
	var v struct {
		P *Placement `json:"p" yaml:"p"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"p": 2}`), &v))
	assert.Equal(t, 2, v.P.Level)
	assert.Empty(t, v.P.Alias)

	require.NoError(t, json.Unmarshal([]byte(`{"p": "location"}`), &v))
	assert.Equal(t, 1, v.P.Level)
	assert.Equal(t, "location", v.P.Alias)

	assert.Error(t, json.Unmarshal([]byte(`{"p": "basement"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"p": true}`), &v))

	require.NoError(t, yaml.Unmarshal([]byte("p: datetime\n"), &v))
	assert.Equal(t, 2, v.P.Level)
	require.NoError(t, yaml.Unmarshal([]byte("p: 0\n"), &v))
	assert.Equal(t, 0, v.P.Level)

	out, err := json.Marshal(Placement{Level: 1, Alias: "location"})
	require.NoError(t, err)
	assert.JSONEq(t, `"location"`, string(out))

	p, err := ParsePlacement("3")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Level)
	_, err = ParsePlacement("3x")
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	b := defaultBuilder(t)
	res, err := Preview(b, nil)
	require.NoError(t, err)

	assert.Equal(t, "Default Forensic Structure", res.TemplateName)
	assert.Equal(t, []string{"2024-TEST-001", "Sample Business @ 123 Test Street", "28AUG25_1630_to_28AUG25_1815_DVR_Time"}, res.PathParts)
	assert.Equal(t, filepath.Join("2024-TEST-001", "Sample Business @ 123 Test Street", "Documents"), res.DocumentsPath)
	assert.Equal(t, "2024-TEST-001 Sample Business @ 123 Test Street Video Recovery.zip", res.ArchiveName)
}

func TestFieldDocs(t *testing.T) {
	docs := FieldDocs()
	assert.Len(t, docs, 12)
	for _, d := range docs {
		assert.True(t, IsKnownField(d.Name))
		assert.NotEmpty(t, d.Description)
	}
	assert.True(t, IsDateField("extraction_end"))
	assert.False(t, IsDateField("current_datetime"))
	assert.False(t, IsKnownField("nope"))
}
