package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryExtraction    ErrorCategory = "extraction"
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryDuplicate     ErrorCategory = "duplicate"
	CategoryPersistence   ErrorCategory = "persistence"
	CategoryNotification  ErrorCategory = "notification"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Extraction errors
	CodeUnreadableDocument ErrorCode = "unreadable_document"
	CodeEmptyDocument      ErrorCode = "empty_document"
	CodeExtractorTimeout   ErrorCode = "extractor_timeout"

	// Validation errors
	CodeMissingField    ErrorCode = "missing_field"
	CodeInvalidAmount   ErrorCode = "invalid_amount"
	CodeInvalidDate     ErrorCode = "invalid_date"
	CodeBelowThreshold  ErrorCode = "below_threshold"
	CodeInvalidFormat   ErrorCode = "invalid_format"
	CodeInvalidArgument ErrorCode = "invalid_argument"

	// Not found errors
	CodeCodeNotFound    ErrorCode = "code_not_found"
	CodeRecordNotFound  ErrorCode = "record_not_found"
	CodePaymentNotFound ErrorCode = "payment_not_found"
	CodeUserNotFound    ErrorCode = "user_not_found"

	// Duplicate errors
	CodeAlreadyProcessed ErrorCode = "already_processed"

	// Persistence errors
	CodeWriteFailed    ErrorCode = "write_failed"
	CodeReadFailed     ErrorCode = "read_failed"
	CodeStateConflict  ErrorCode = "state_conflict"
	CodeLockFailed     ErrorCode = "lock_failed"

	// Notification errors
	CodeEmailFailed   ErrorCode = "email_failed"
	CodeMessageFailed ErrorCode = "message_failed"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
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
func (e *ReconcilerError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryExtraction:
		return 2
	case CategoryValidation, CategoryNotFound, CategoryDuplicate:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryPersistence, CategoryInternal:
		return 5
	case CategoryNotification:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// ExtractionError reports an unreadable or corrupt source document. The batch
// for that document is aborted; other documents are unaffected.
func ExtractionError(code ErrorCode, document string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeUnreadableDocument:
		message = fmt.Sprintf("could not extract text from document %s", document)
		suggestion = "check that the upload is a readable PDF, image or text export"
	case CodeEmptyDocument:
		message = fmt.Sprintf("document %s contains no text", document)
		suggestion = "upload a clearer scan or the original statement export"
	case CodeExtractorTimeout:
		message = fmt.Sprintf("text extraction timed out for document %s", document)
		suggestion = "retry the upload later"
	default:
		message = fmt.Sprintf("extraction failed for document %s", document)
		suggestion = "check the document and try again"
	}

	return build(CategoryExtraction, code, message, err).
		WithSuggestion(suggestion).
		WithContext("document", document)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "use digits with an optional decimal comma or point (e.g. '150,00')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use DD/MM/YYYY, DD-MM-YYYY or YYYY-MM-DD"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeBelowThreshold:
		message = fmt.Sprintf("amount in field '%s' is below the minimum: %v", field, value)
		suggestion = "amounts under the source minimum are never reconciled automatically"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(CategoryValidation, code, message, err).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// NotFoundError creates an error for a missing entity
func NotFoundError(code ErrorCode, key string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeCodeNotFound:
		message = fmt.Sprintf("no billing record carries code %s", key)
		suggestion = "check the code written in the transfer memo and reconcile the row manually"
	case CodeRecordNotFound:
		message = fmt.Sprintf("billing record %s not found", key)
	case CodePaymentNotFound:
		message = fmt.Sprintf("payment %s not found", key)
	case CodeUserNotFound:
		message = fmt.Sprintf("user %s not found", key)
	default:
		message = fmt.Sprintf("%s not found", key)
	}

	result := build(CategoryNotFound, code, message, err).WithContext("key", key)
	if suggestion != "" {
		result.WithSuggestion(suggestion)
	}
	return result
}

// DuplicateError reports an already-processed bank reference. It is
// informational: callers classify it rather than fail on it.
func DuplicateError(recordCode, reference string) *ReconcilerError {
	return New(CategoryDuplicate, CodeAlreadyProcessed,
		fmt.Sprintf("reference %q already recorded for %s", reference, recordCode)).
		WithContext("code", recordCode).
		WithContext("reference", reference)
}

// PersistenceError creates a store-related error
func PersistenceError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeWriteFailed:
		message = fmt.Sprintf("store write failed during %s", operation)
		suggestion = "the row was not committed; rerun the batch once the store is healthy"
	case CodeReadFailed:
		message = fmt.Sprintf("store read failed during %s", operation)
		suggestion = "check database connectivity"
	case CodeStateConflict:
		message = fmt.Sprintf("billing record changed concurrently during %s", operation)
		suggestion = "rerun the batch; already committed rows are skipped as duplicates"
	case CodeLockFailed:
		message = fmt.Sprintf("could not acquire record lock during %s", operation)
		suggestion = "another worker is committing to the same record; retry shortly"
	default:
		message = fmt.Sprintf("persistence error during %s", operation)
		suggestion = "check the store and try again"
	}

	return build(CategoryPersistence, code, message, err).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// NotificationError creates a notification delivery error. These are logged
// and never propagated to the payment commit.
func NotificationError(code ErrorCode, recipient string, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeEmailFailed:
		message = fmt.Sprintf("email delivery to %s failed", recipient)
	case CodeMessageFailed:
		message = fmt.Sprintf("message delivery to %s failed", recipient)
	default:
		message = fmt.Sprintf("notification to %s failed", recipient)
	}

	return build(CategoryNotification, code, message, err).
		WithContext("recipient", recipient)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "set it in the config file or as RECONCILER_ environment variable"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	return build(CategoryInternal, code, fmt.Sprintf("unexpected error during %s", operation), err).
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code"`
	Errors     []*ReconcilerError    `json:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}
	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}
	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsCategory reports whether any ReconcilerError in err's chain has the category.
func IsCategory(err error, category ErrorCategory) bool {
	rerr, ok := AsReconcilerError(err)
	return ok && rerr.Category == category
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return Wrap(err, category, code, message)
}
