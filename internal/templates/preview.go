package templates

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/forms"
)

// SampleForm is the fixed case used to preview templates.
func SampleForm() *forms.FormData {
	start := time.Date(2025, time.August, 28, 16, 30, 0, 0, time.Local)
	end := time.Date(2025, time.August, 28, 18, 15, 0, 0, time.Local)
	return &forms.FormData{
		OccurrenceNumber: "2024-TEST-001",
		BusinessName:     "Sample Business",
		LocationAddress:  "123 Test Street",
		VideoStart:       &start,
		VideoEnd:         &end,
		TechnicianName:   "Test Technician",
		BadgeNumber:      "12345",
	}
}

// PreviewResult shows what a template produces for the sample case.
type PreviewResult struct {
	TemplateID    string   `json:"template_id" yaml:"template_id"`
	TemplateName  string   `json:"template_name" yaml:"template_name"`
	FolderPath    string   `json:"folder_path" yaml:"folder_path"`
	PathParts     []string `json:"path_parts" yaml:"path_parts"`
	ArchiveName   string   `json:"archive_name" yaml:"archive_name"`
	Placement     int      `json:"documents_placement" yaml:"documents_placement"`
	DocumentsPath string   `json:"documents_path" yaml:"documents_path"`
}

// Preview renders b against form, or against SampleForm when form is nil.
func Preview(b *Builder, form *forms.FormData) (*PreviewResult, error) {
	if form == nil {
		form = SampleForm()
	}
	parts, err := b.BuildLevels(form).Unwrap()
	if err != nil {
		return nil, err
	}
	rel := filepath.Join(parts...)
	docs := b.DocumentsDir("", rel)

	return &PreviewResult{
		TemplateID:    b.ID(),
		TemplateName:  b.Template().Name,
		FolderPath:    rel,
		PathParts:     parts,
		ArchiveName:   b.BuildArchiveName(form),
		Placement:     b.Placement(),
		DocumentsPath: strings.TrimPrefix(docs, string(filepath.Separator)),
	}, nil
}
