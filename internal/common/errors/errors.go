// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Lifecycle errors returned synchronously to the caller.
const (
	ErrCodeValidation           ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeInvalidToken         ErrorCode = "INVALID_TOKEN"
	ErrCodeAlreadyVerified      ErrorCode = "ALREADY_VERIFIED"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrCodeDuplicateSubmission  ErrorCode = "DUPLICATE_SUBMISSION"
	ErrCodeUnauthorizedReviewer ErrorCode = "UNAUTHORIZED_REVIEWER"
)

// Technical errors.
const (
	ErrCodeDispatchFailure ErrorCode = "DISPATCH_FAILURE"
	ErrCodeDatabase        ErrorCode = "DATABASE_ERROR"
	ErrCodeSearchFailed    ErrorCode = "SEARCH_FAILED"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// Coded is implemented by domain errors that map onto an ErrorCode.
type Coded interface {
	error
	ErrorCode() ErrorCode
}

// MetadataCarrier is implemented by domain errors that expose extra
// variables for the workflow (for example the current state after a
// rejected transition).
type MetadataCarrier interface {
	ErrorMetadata() map[string]interface{}
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError creates a non-retryable validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable lookup error.
func NewNotFoundError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "Endorsement not found",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseError creates a retryable storage error.
func NewDatabaseError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabase,
		Message:   "Database operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewSearchFailedError creates a retryable search backend error.
func NewSearchFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchFailed,
		Message:   "Search query failed",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewDispatchFailureError creates a retryable notification transport error.
func NewDispatchFailureError(kind string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchFailure,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("kind: %s, error: %s", kind, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// FromError normalizes any error into a StandardError. Coded domain errors
// keep their code and metadata; anything else becomes INTERNAL_ERROR.
func FromError(err error) *StandardError {
	if err == nil {
		return nil
	}

	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	var coded Coded
	if stderrors.As(err, &coded) {
		out := &StandardError{
			Code:      coded.ErrorCode(),
			Message:   err.Error(),
			Retryable: IsRetryableErrorCode(coded.ErrorCode()),
			Timestamp: time.Now().UTC(),
			Cause:     err,
		}
		var carrier MetadataCarrier
		if stderrors.As(err, &carrier) {
			out.Metadata = carrier.ErrorMetadata()
		}
		return out
	}

	return NewInternalError(err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes caught by
// boundary events in the endorsement process.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidation:           "VALIDATION_ERROR",
	ErrCodeNotFound:             "NOT_FOUND",
	ErrCodeInvalidToken:         "INVALID_TOKEN",
	ErrCodeAlreadyVerified:      "ALREADY_VERIFIED",
	ErrCodeInvalidTransition:    "INVALID_TRANSITION",
	ErrCodeDuplicateSubmission:  "DUPLICATE_SUBMISSION",
	ErrCodeUnauthorizedReviewer: "UNAUTHORIZED_REVIEWER",
	ErrCodeDispatchFailure:      "DISPATCH_FAILURE",
	ErrCodeDatabase:             "DATABASE_ERROR",
	ErrCodeSearchFailed:         "SEARCH_FAILED",
	ErrCodeInternal:             "INTERNAL_ERROR",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabase,
		ErrCodeDispatchFailure:
		return 3

	case ErrCodeSearchFailed:
		return 2

	default:
		return 0 // Lifecycle errors: returned to the caller, never retried
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TOKEN") || strings.Contains(codeStr, "VERIFIED"):
		return "VERIFICATION"
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "REVIEWER"):
		return "MODERATION"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "DISPATCH"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "DUPLICATE") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
