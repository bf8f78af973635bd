// Package errors defines the error taxonomy used across the GST
// reconciliation service.
//
// Every error surfaced to a caller carries a category, a specific code,
// optional key/value context (row number, column, GSTIN) and an optional
// suggestion. Categories map to CLI exit codes and HTTP status codes, so
// the same taxonomy serves both hosting surfaces.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryPortal         ErrorCategory = "portal"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileEmpty      ErrorCode = "file_empty"

	// Parse errors
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeInvalidGSTIN  ErrorCode = "invalid_gstin"
	CodeGrossMismatch ErrorCode = "gross_mismatch"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig    ErrorCode = "invalid_config"
	CodeInvalidPeriod    ErrorCode = "invalid_period"
	CodeInvalidTolerance ErrorCode = "invalid_tolerance"
	CodeMissingConfig    ErrorCode = "missing_config"

	// Reconciliation errors
	CodeMatchingFailed  ErrorCode = "matching_failed"
	CodeProcessingError ErrorCode = "processing_error"

	// Portal errors
	CodeFetchFailed        ErrorCode = "fetch_failed"
	CodeSessionExpired     ErrorCode = "session_expired"
	CodeServiceUnavailable ErrorCode = "service_unavailable"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconError is the base error type for all application errors
type ReconError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryPortal:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconError) WithContext(key string, value interface{}) *ReconError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconError) WithSuggestion(suggestion string) *ReconError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconError
func New(category ErrorCategory, code ErrorCode, message string) *ReconError {
	return &ReconError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconError {
	if err == nil {
		return nil
	}

	return &ReconError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileEmpty:
		message = fmt.Sprintf("file contains no data rows: %s", path)
		suggestion = "verify the export from your accounting package completed"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *ReconError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// MissingColumnError reports a required template column that is absent from
// the header row. The template contract is part of the compatibility surface,
// so this is always a hard error.
func MissingColumnError(source, column string, headers []string) *ReconError {
	return New(CategoryParse, CodeMissingColumn,
		fmt.Sprintf("missing required column '%s' in %s data", column, source)).
		WithSuggestion("download the books template and keep its header row unchanged").
		WithContext("source", source).
		WithContext("column", column).
		WithContext("headers", strings.Join(headers, ", "))
}

// RowError creates a row-addressable parse/validation error, e.g.
// "row 14: invalid date in column 'Date': '31-02-2024'".
func RowError(code ErrorCode, row int, column, value string, err error) *ReconError {
	var what string
	switch code {
	case CodeInvalidAmount:
		what = "invalid amount"
	case CodeInvalidDate:
		what = "invalid date"
	case CodeInvalidGSTIN:
		what = "invalid GSTIN"
	case CodeGrossMismatch:
		what = "gross amount does not equal taxable plus taxes"
	case CodeOutOfRange:
		what = "value out of range"
	default:
		what = "invalid data"
	}

	message := fmt.Sprintf("row %d: %s in column '%s': '%s'", row, what, column, value)

	var result *ReconError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithContext("row", row).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a validation-related error for a named field
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconError {
	var message, suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g. '1234.56')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use DD-MM-YYYY or YYYY-MM-DD"
	case CodeInvalidGSTIN:
		message = fmt.Sprintf("invalid GSTIN in field '%s': %v", field, value)
		suggestion = "a GSTIN is 15 characters: 2-digit state code, PAN, entity, 'Z', checksum"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *ReconError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error. These surface
// before any matching work begins.
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconError {
	var message, suggestion string

	switch code {
	case CodeInvalidTolerance:
		message = fmt.Sprintf("tolerance must be non-negative, got %v", value)
		suggestion = "use a tolerance of 0 or more rupees"
	case CodeInvalidPeriod:
		message = fmt.Sprintf("invalid reconciliation period for '%s': %v", setting, value)
		suggestion = "select a month (1-12) or quarter (1-4) consistent with the period type"
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *ReconError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError creates a reconciliation-related error
func ReconciliationError(code ErrorCode, operation string, err error) *ReconError {
	message := fmt.Sprintf("reconciliation failed during %s", operation)
	result := Wrap(err, CategoryReconciliation, code, message)
	if result == nil {
		result = New(CategoryReconciliation, code, message)
	}
	return result.WithContext("operation", operation)
}

// PortalError creates an error for failures talking to the GST portal
// data source.
func PortalError(code ErrorCode, endpoint string, err error) *ReconError {
	var message, suggestion string

	switch code {
	case CodeSessionExpired:
		message = "GST portal session has expired"
		suggestion = "re-authenticate with the portal and retry"
	case CodeServiceUnavailable:
		message = fmt.Sprintf("GST portal data source unavailable: %s", endpoint)
		suggestion = "the portal may be down for maintenance, retry later"
	default:
		message = fmt.Sprintf("failed to fetch portal data from %s", endpoint)
		suggestion = "check connectivity to the portal data source"
	}

	var result *ReconError
	if err != nil {
		result = Wrap(err, CategoryPortal, code, message)
	} else {
		result = New(CategoryPortal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("endpoint", endpoint)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconError {
	message := fmt.Sprintf("internal error during %s", operation)
	result := Wrap(err, CategoryInternal, code, message)
	if result == nil {
		result = New(CategoryInternal, code, message)
	}
	return result.WithContext("operation", operation)
}

// IsReconError checks if an error is a ReconError
func IsReconError(err error) bool {
	_, ok := err.(*ReconError)
	return ok
}

// AsReconError attempts to extract a ReconError from an error chain
func AsReconError(err error) (*ReconError, bool) {
	for err != nil {
		if reconErr, ok := err.(*ReconError); ok {
			return reconErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

// WrapIfNeeded wraps an error as a ReconError unless it already is one
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconError {
	if err == nil {
		return nil
	}
	if reconErr, ok := AsReconError(err); ok {
		return reconErr
	}
	return Wrap(err, category, code, message)
}
