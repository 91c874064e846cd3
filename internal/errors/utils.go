package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Wrap wraps an error with additional context, creating a CaseError if the
// input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *CaseError {
	if err == nil {
		return nil
	}

	var ce *CaseError
	if errors.As(err, &ce) {
		return &CaseError{
			Type:        errType,
			Code:        code,
			Message:     message,
			UserMessage: ce.UserMessage,
			Cause:       ce,
			Context:     ce.Context,
			Component:   ce.Component,
			FilePath:    ce.FilePath,
			Severity:    ce.Severity,
			Recoverable: ce.Recoverable,
		}
	}

	return &CaseError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Severity:    SeverityError,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeFileOperation,
	}
}

// WrapFile classifies an OS error from a file operation on path.
func WrapFile(err error, operation, path string) *CaseError {
	if err == nil {
		return nil
	}

	code := ErrCodeCopyFailed
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = ErrCodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		code = ErrCodePermissionDenied
	}

	ce := NewFileOperationError(code, operation+" failed", path, err)
	if code == ErrCodePermissionDenied {
		ce.UserMessage = "Permission denied. Check that you can read the source and write to the destination."
	}

	return ce
}

// FormatError formats an error for display to the technician.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var ce *CaseError
	if errors.As(err, &ce) {
		return ce.Friendly()
	}

	return err.Error()
}

// FormatErrorWithSuggestions formats an error with suggestions for
// ValidationError types.
func FormatErrorWithSuggestions(err error) string {
	if err == nil {
		return ""
	}

	var vec *ValidationErrorCollection
	if errors.As(err, &vec) {
		var b strings.Builder
		for _, ve := range vec.Errors {
			b.WriteString(formatValidation(ve))
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")
	}

	var ve ValidationError
	if errors.As(err, &ve) {
		return formatValidation(ve)
	}

	return FormatError(err)
}

func formatValidation(ve ValidationError) string {
	result := ve.Error()
	for _, suggestion := range ve.Suggestions() {
		result += fmt.Sprintf("\n  • %s", suggestion)
	}
	return result
}

// GetErrorContext extracts context information from a CaseError.
func GetErrorContext(err error) map[string]interface{} {
	var ce *CaseError
	if errors.As(err, &ce) {
		context := make(map[string]interface{})
		for k, v := range ce.Context {
			context[k] = v
		}
		if ce.Component != "" {
			context["component"] = ce.Component
		}
		if ce.FilePath != "" {
			context["file"] = ce.FilePath
		}
		context["type"] = string(ce.Type)
		context["code"] = ce.Code
		context["severity"] = ce.Severity.String()
		context["recoverable"] = ce.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// GetRootCause unwraps err until the innermost error.
func GetRootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// HasErrorCode reports whether any CaseError in the chain has code.
func HasErrorCode(err error, code string) bool {
	for err != nil {
		var ce *CaseError
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Code == code {
			return true
		}
		err = ce.Cause
	}
	return false
}

// HasErrorType reports whether any CaseError in the chain has errType.
func HasErrorType(err error, errType ErrorType) bool {
	for err != nil {
		var ce *CaseError
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Type == errType {
			return true
		}
		err = ce.Cause
	}
	return false
}

// SeverityOf returns the severity carried by err, or SeverityError for plain
// errors.
func SeverityOf(err error) Severity {
	var ce *CaseError
	if errors.As(err, &ce) {
		return ce.Severity
	}
	return SeverityError
}

// CombineErrors combines multiple errors into a single error with context.
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	if len(nonNil) == 1 {
		return nonNil[0]
	}

	messages := make([]string, 0, len(nonNil))
	for _, err := range nonNil {
		messages = append(messages, err.Error())
	}

	return &CaseError{
		Type:     ErrorTypeInternal,
		Code:     "ERR_MULTIPLE_ERRORS",
		Message:  fmt.Sprintf("%d errors occurred: %s", len(nonNil), strings.Join(messages, "; ")),
		Cause:    errors.Join(nonNil...),
		Severity: SeverityError,
		Context: map[string]interface{}{
			"error_count": len(nonNil),
		},
	}
}

// New, Is, As and Join forward to the standard library so callers importing
// this package need no second errors import.
func New(message string) error { return errors.New(message) }

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
