// internal/endorsement/errors.go
package endorsement

import (
	"fmt"
	"sort"
	"strings"

	apperrors "endorsement-workers/internal/common/errors"
)

// Error is a lifecycle error carrying its taxonomy code.
type Error struct {
	Code    apperrors.ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) ErrorCode() apperrors.ErrorCode { return e.Code }

var (
	ErrValidation           = &Error{Code: apperrors.ErrCodeValidation, Message: "validation failed"}
	ErrNotFound             = &Error{Code: apperrors.ErrCodeNotFound, Message: "endorsement not found"}
	ErrInvalidToken         = &Error{Code: apperrors.ErrCodeInvalidToken, Message: "verification token is invalid"}
	ErrAlreadyVerified      = &Error{Code: apperrors.ErrCodeAlreadyVerified, Message: "endorsement email already verified"}
	ErrInvalidTransition    = &Error{Code: apperrors.ErrCodeInvalidTransition, Message: "transition not allowed"}
	ErrDuplicateSubmission  = &Error{Code: apperrors.ErrCodeDuplicateSubmission, Message: "an endorsement already exists for this email"}
	ErrUnauthorizedReviewer = &Error{Code: apperrors.ErrCodeUnauthorizedReviewer, Message: "reviewer is not authorized"}

	// ErrTokenExpired is an InvalidToken whose only defect is its age.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrInvalidToken)
)

// TransitionError reports a guarded action that did not match the current
// persisted state. It carries that state so callers can resynchronize.
type TransitionError struct {
	Action   string
	Current  Status
	Featured bool
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s endorsement in status %s (featured=%t)", e.Action, e.Current, e.Featured)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
func (e *TransitionError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrCodeInvalidTransition }

func (e *TransitionError) ErrorMetadata() map[string]interface{} {
	return map[string]interface{}{
		"currentStatus":   string(e.Current),
		"currentFeatured": e.Featured,
	}
}

// ValidationError lists field problems found before any mutation.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
func (e *ValidationError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrCodeValidation }

func (e *ValidationError) ErrorMetadata() map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	return map[string]interface{}{"fieldErrors": fields}
}

// StaleError is returned by a Store when a mutation's guard no longer holds.
// Nothing was written; Current is the record as it is now.
type StaleError struct {
	Current *Endorsement
}

func (e *StaleError) Error() string {
	if e.Current == nil {
		return "endorsement state changed"
	}
	return fmt.Sprintf("endorsement %s state changed: status=%s verified=%t featured=%t",
		e.Current.ID, e.Current.Status, e.Current.Verified, e.Current.Featured)
}
