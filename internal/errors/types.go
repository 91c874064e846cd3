// Package errors defines the structured error types shared by every casefiler
// component. Each error carries a category, a stable code, a message for logs,
// a message suitable for the technician, and a severity.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeFileOperation      ErrorType = "file_operation"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeTemplateValidation ErrorType = "template_validation"
	ErrorTypeReport             ErrorType = "report"
	ErrorTypeArchive            ErrorType = "archive"
	ErrorTypeBatch              ErrorType = "batch"
	ErrorTypeHashVerification   ErrorType = "hash_verification"
	ErrorTypeRecovery           ErrorType = "recovery"
	ErrorTypeSecurity           ErrorType = "security"
	ErrorTypeConfig             ErrorType = "config"
	ErrorTypeInternal           ErrorType = "internal"
)

// CaseError is a structured error type with context.
type CaseError struct {
	Type        ErrorType
	Code        string
	Message     string
	UserMessage string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Severity    Severity
	Recoverable bool
}

// Error implements the error interface.
func (e *CaseError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *CaseError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *CaseError) Is(target error) bool {
	var t *CaseError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// Friendly returns the message meant for the technician, falling back to the
// technical message.
func (e *CaseError) Friendly() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}

	return e.Message
}

// WithContext adds context information to the error.
func (e *CaseError) WithContext(key string, value interface{}) *CaseError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the file the error relates to.
func (e *CaseError) WithPath(path string) *CaseError {
	e.FilePath = path

	return e
}

// WithComponent adds component context.
func (e *CaseError) WithComponent(component string) *CaseError {
	e.Component = component

	return e
}

// WithUserMessage sets the technician-facing message.
func (e *CaseError) WithUserMessage(msg string) *CaseError {
	e.UserMessage = msg

	return e
}

// WithSeverity overrides the default severity.
func (e *CaseError) WithSeverity(s Severity) *CaseError {
	e.Severity = s

	return e
}

// Error creation functions

// NewFileOperationError creates an error for a failed copy, read or write.
func NewFileOperationError(code, message, path string, cause error) *CaseError {
	return &CaseError{
		Type:        ErrorTypeFileOperation,
		Code:        code,
		Message:     message,
		UserMessage: "File operation failed. Check that the file exists and that you have permission to access it.",
		Cause:       cause,
		FilePath:    path,
		Severity:    SeverityError,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *CaseError {
	return &CaseError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		UserMessage: "Please correct the highlighted fields and try again.",
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// NewTemplateValidationError creates an error for a rejected folder template.
func NewTemplateValidationError(templateID, message string) *CaseError {
	return &CaseError{
		Type:        ErrorTypeTemplateValidation,
		Code:        ErrCodeTemplateInvalid,
		Message:     message,
		UserMessage: "The folder template is invalid: " + message,
		Severity:    SeverityError,
		Recoverable: true,
		Context:     map[string]interface{}{"template_id": templateID},
	}
}

// NewReportError creates a report generation error.
func NewReportError(reportType, message string, cause error) *CaseError {
	return &CaseError{
		Type:        ErrorTypeReport,
		Code:        ErrCodeReportFailed,
		Message:     message,
		UserMessage: fmt.Sprintf("Failed to generate the %s report.", reportType),
		Cause:       cause,
		Severity:    SeverityError,
		Recoverable: true,
		Context:     map[string]interface{}{"report_type": reportType},
	}
}

// NewArchiveError creates an archive creation or upload error.
func NewArchiveError(message, archivePath string, cause error) *CaseError {
	return &CaseError{
		Type:        ErrorTypeArchive,
		Code:        ErrCodeArchiveFailed,
		Message:     message,
		UserMessage: "Archive creation failed. The organized files are still in place.",
		Cause:       cause,
		FilePath:    archivePath,
		Severity:    SeverityError,
		Recoverable: true,
	}
}

// NewBatchProcessingError creates an error summarising a batch run. Severity
// depends on how many jobs succeeded.
func NewBatchProcessingError(successful, failed int, cause error) *CaseError {
	severity := SeverityWarning
	userMessage := fmt.Sprintf("%d of %d jobs failed. Review the failed jobs and retry them.", failed, successful+failed)
	if successful == 0 && failed > 0 {
		severity = SeverityCritical
		userMessage = fmt.Sprintf("All %d jobs failed. Check the log for details.", failed)
	} else if failed > successful {
		severity = SeverityError
	}

	return &CaseError{
		Type:        ErrorTypeBatch,
		Code:        ErrCodeBatchFailed,
		Message:     fmt.Sprintf("batch finished with %d failed jobs", failed),
		UserMessage: userMessage,
		Cause:       cause,
		Severity:    severity,
		Recoverable: successful > 0,
		Context: map[string]interface{}{
			"successful": successful,
			"failed":     failed,
		},
	}
}

// NewHashVerificationError creates an error for a source/destination digest
// mismatch. Evidence integrity failures are never recoverable.
func NewHashVerificationError(path, expected, actual string) *CaseError {
	return &CaseError{
		Type:        ErrorTypeHashVerification,
		Code:        ErrCodeHashMismatch,
		Message:     fmt.Sprintf("hash mismatch: expected %s, got %s", expected, actual),
		UserMessage: "Integrity check failed: the copied file does not match the original.",
		FilePath:    path,
		Severity:    SeverityCritical,
		Recoverable: false,
		Context: map[string]interface{}{
			"expected": expected,
			"actual":   actual,
		},
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *CaseError {
	return &CaseError{
		Type:        ErrorTypeSecurity,
		Code:        code,
		Message:     message,
		UserMessage: "Security violation: the operation was blocked.",
		Severity:    SeverityCritical,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *CaseError {
	return &CaseError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewRecoveryError creates an autosave or restore error.
func NewRecoveryError(message string, cause error) *CaseError {
	return &CaseError{
		Type:        ErrorTypeRecovery,
		Code:        ErrCodeRecoveryFailed,
		Message:     message,
		UserMessage: "Could not save or restore the batch recovery state.",
		Cause:       cause,
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *CaseError {
	return &CaseError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ce *CaseError
	if errors.As(err, &ce) {
		return ce.Recoverable
	}

	return false
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	return HasErrorType(err, ErrorTypeSecurity)
}

// IsHashMismatch checks if an error reports an integrity failure.
func IsHashMismatch(err error) bool {
	return HasErrorType(err, ErrorTypeHashVerification)
}

// Common error codes.
const (
	ErrCodeInvalidPath       = "ERR_INVALID_PATH"
	ErrCodePathTraversal     = "ERR_PATH_TRAVERSAL"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeCopyFailed        = "ERR_COPY_FAILED"
	ErrCodeHashFailed        = "ERR_HASH_FAILED"
	ErrCodeHashMismatch      = "ERR_HASH_MISMATCH"
	ErrCodePermissionDenied  = "ERR_PERMISSION_DENIED"
	ErrCodeValidationFailed  = "ERR_VALIDATION_FAILED"
	ErrCodeTemplateInvalid   = "ERR_TEMPLATE_INVALID"
	ErrCodeTemplateNotFound  = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeTemplateConflict  = "ERR_TEMPLATE_CONFLICT"
	ErrCodeTemplateReadOnly  = "ERR_TEMPLATE_READ_ONLY"
	ErrCodeReportFailed      = "ERR_REPORT_FAILED"
	ErrCodeArchiveFailed     = "ERR_ARCHIVE_FAILED"
	ErrCodeBatchFailed       = "ERR_BATCH_FAILED"
	ErrCodeJobNotFound       = "ERR_JOB_NOT_FOUND"
	ErrCodeQueueCorrupt      = "ERR_QUEUE_CORRUPT"
	ErrCodeRecoveryFailed    = "ERR_RECOVERY_FAILED"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeInternalError     = "ERR_INTERNAL"
	ErrCodeFileCountMismatch = "ERR_FILE_COUNT_MISMATCH"
	ErrCodeDuplicateTarget   = "ERR_DUPLICATE_TARGET"
	ErrCodeNoTimestamp       = "ERR_NO_TIMESTAMP"
	ErrCodeInvalidTimecode   = "ERR_INVALID_TIMECODE"
)

// ValidationError interface for field-specific validation errors.
type ValidationError interface {
	error
	Field() string
	Value() interface{}
	Suggestions() []string
}

// FieldValidationError implements ValidationError for specific field errors.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
	HelpText     []string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("%s: %s", fve.FieldName, fve.ErrorMessage)
}

// Field returns the field name that failed validation.
func (fve *FieldValidationError) Field() string {
	return fve.FieldName
}

// Value returns the invalid value.
func (fve *FieldValidationError) Value() interface{} {
	return fve.FieldValue
}

// Suggestions returns helpful suggestions for fixing the error.
func (fve *FieldValidationError) Suggestions() []string {
	return fve.HelpText
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
		HelpText:     suggestions,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	if len(vec.Errors) == 0 {
		return "no validation errors"
	}
	if len(vec.Errors) == 1 {
		return vec.Errors[0].Error()
	}

	return fmt.Sprintf("validation failed with %d errors", len(vec.Errors))
}

// Add adds a validation error to the collection.
func (vec *ValidationErrorCollection) Add(err ValidationError) {
	vec.Errors = append(vec.Errors, err)
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) {
	vec.Add(NewFieldValidationError(field, value, message, suggestions...))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// Fields returns a field name to message map.
func (vec *ValidationErrorCollection) Fields() map[string]string {
	out := make(map[string]string, len(vec.Errors))
	for _, err := range vec.Errors {
		if _, seen := out[err.Field()]; !seen {
			out[err.Field()] = err.Error()
		}
	}

	return out
}

// ToCaseError converts the validation collection to a CaseError.
func (vec *ValidationErrorCollection) ToCaseError() *CaseError {
	if !vec.HasErrors() {
		return nil
	}

	var messages []string
	context := make(map[string]interface{})

	for _, err := range vec.Errors {
		messages = append(messages, err.Error())
		context[err.Field()] = map[string]interface{}{
			"value":       err.Value(),
			"suggestions": err.Suggestions(),
		}
	}

	return &CaseError{
		Type:        ErrorTypeValidation,
		Code:        ErrCodeValidationFailed,
		Message:     strings.Join(messages, "; "),
		UserMessage: "Please correct the highlighted fields and try again.",
		Context:     context,
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// Helper functions for common errors

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *CaseError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path)
}

// ErrPathTraversal creates a path traversal security error.
func ErrPathTraversal(path string) *CaseError {
	return NewSecurityError(ErrCodePathTraversal, "destination escapes base directory: "+path)
}

// ErrTemplateNotFound creates a template lookup error.
func ErrTemplateNotFound(id string) *CaseError {
	return NewValidationError(ErrCodeTemplateNotFound, "template not found: "+id)
}

// ErrJobNotFound creates a batch job lookup error.
func ErrJobNotFound(id string) *CaseError {
	return NewValidationError(ErrCodeJobNotFound, "job not found: "+id)
}
