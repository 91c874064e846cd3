package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/conneroisu/casefiler/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
	}

	write("Errors", vr.Errors)
	write("Warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs validation and collects errors and
// warnings with suggestions.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{}

	if !strings.EqualFold(config.Hashing.Algorithm, "sha256") {
		result.addError("hashing.algorithm", config.Hashing.Algorithm,
			"unsupported hash algorithm", "use sha256")
	}
	if !config.Hashing.Enabled {
		result.addWarning("hashing.enabled", false,
			"copies will not be verified", "enable hashing for evidentiary copies")
	}

	if config.Archive.CompressionLevel < 0 || config.Archive.CompressionLevel > 9 {
		result.addError("archive.compression_level", config.Archive.CompressionLevel,
			"must be between 0 (store) and 9 (best)")
	}
	if config.Archive.AutoCreate && !config.Archive.AtRoot && !config.Archive.AtLocation && !config.Archive.AtDatetime {
		result.addWarning("archive.auto_create", true,
			"no archive level selected; defaulting to the occurrence root")
	}
	if config.Archive.Upload.Prefix != "" && config.Archive.Upload.Bucket == "" {
		result.addError("archive.upload.prefix", config.Archive.Upload.Prefix,
			"prefix set without a bucket", "set archive.upload.bucket")
	}
	if strings.HasPrefix(config.Archive.Upload.Bucket, "gs://") {
		result.addError("archive.upload.bucket", config.Archive.Upload.Bucket,
			"bucket must be a bare name", "drop the gs:// scheme")
	}

	docs := config.Reports.DocumentsDir
	if docs == "" || docs != filepath.Base(docs) || docs == "." || docs == ".." {
		result.addError("reports.documents_dir", docs,
			"must be a single folder name", "use Documents")
	}

	if config.Batch.AutosaveInterval <= 0 {
		result.addError("batch.autosave_interval", config.Batch.AutosaveInterval, "must be positive")
	}
	if config.Batch.ProcessingInterval <= 0 {
		result.addError("batch.processing_interval", config.Batch.ProcessingInterval, "must be positive")
	}
	if config.Batch.ProcessingInterval > config.Batch.AutosaveInterval {
		result.addWarning("batch.processing_interval", config.Batch.ProcessingInterval,
			"longer than the idle autosave interval")
	}

	if config.Progress.Addr != "" {
		if _, _, err := net.SplitHostPort(config.Progress.Addr); err != nil {
			result.addError("progress.addr", config.Progress.Addr,
				"must be host:port", "e.g. localhost:8090")
		}
	}

	if config.Media.FrameRate < 1 || config.Media.FrameRate > 240 {
		result.addError("media.frame_rate", config.Media.FrameRate,
			"must be between 1 and 240 frames per second", "use 30 for most DVR exports")
	}

	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		result.addError("logging.level", config.Logging.Level, err.Error(),
			"use debug, info, warn or error")
	}
	if config.Logging.Format != "text" && config.Logging.Format != "json" {
		result.addError("logging.format", config.Logging.Format, "must be text or json")
	}

	if config.Technician.Name == "" && (config.Reports.UploadLog || config.Reports.TimeOffset) {
		result.addWarning("technician.name", "",
			"reports will require a technician name on each case",
			"set technician.name or CASEFILER_TECHNICIAN_NAME")
	}

	return result
}

// validateConfig returns the first validation error, if any.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		return &result.Errors[0]
	}
	return nil
}
