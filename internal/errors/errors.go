package errors

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Severity represents the severity of an error
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText lets severities appear by name in JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FileError records a failure tied to one file during a copy or hash pass.
type FileError struct {
	Path      string
	Operation string
	Err       error
	Timestamp time.Time
}

// Error implements the error interface
func (fe *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", fe.Operation, fe.Path, fe.Err)
}

// Unwrap returns the wrapped error
func (fe *FileError) Unwrap() error {
	return fe.Err
}

// ErrorCollector collects per-file errors and general errors from concurrent
// workers.
type ErrorCollector struct {
	fileErrors []FileError
	errors     []error
	mutex      sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		fileErrors: make([]FileError, 0),
		errors:     make([]error, 0),
	}
}

// AddFile records a failure for a single file
func (ec *ErrorCollector) AddFile(path, operation string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.fileErrors = append(ec.fileErrors, FileError{
		Path:      path,
		Operation: operation,
		Err:       err,
		Timestamp: time.Now(),
	})
}

// AddError adds a general error to the collector
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// FileErrors returns a copy of the per-file errors
func (ec *ErrorCollector) FileErrors() []FileError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]FileError, len(ec.fileErrors))
	copy(result, ec.fileErrors)
	return result
}

// GetAllErrors returns all collected errors (file and general)
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	allErrors := make([]error, 0, len(ec.fileErrors)+len(ec.errors))
	for i := range ec.fileErrors {
		allErrors = append(allErrors, &ec.fileErrors[i])
	}
	allErrors = append(allErrors, ec.errors...)

	return allErrors
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.fileErrors) > 0 || len(ec.errors) > 0
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.fileErrors = ec.fileErrors[:0]
	ec.errors = ec.errors[:0]
}

// Summary renders a short multi-line description of the collected failures.
func (ec *ErrorCollector) Summary() string {
	all := ec.GetAllErrors()
	if len(all) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d error(s):\n", len(all))
	for _, err := range all {
		fmt.Fprintf(&b, "  - %v\n", err)
	}

	return b.String()
}
