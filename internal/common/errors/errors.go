// Package errors provides standardized error handling for the validation and
// CRM sync pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation-session errors (synchronous, caller-visible).
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeDuplicateSession   ErrorCode = "DUPLICATE_SESSION"
	ErrCodeInvalidState       ErrorCode = "INVALID_STATE"
	ErrCodeInvalidResponse    ErrorCode = "INVALID_RESPONSE"
	ErrCodeIncompleteRequired ErrorCode = "INCOMPLETE_REQUIRED"
	ErrCodeInvalidArgument    ErrorCode = "INVALID_ARGUMENT"
	ErrCodeSessionExpired     ErrorCode = "SESSION_EXPIRED"

	// CRM provider errors (captured into sync records, not thrown across
	// the session boundary).
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeCRMAPI         ErrorCode = "CRM_API_ERROR"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"

	// Infrastructure errors.
	ErrCodeStorage       ErrorCode = "STORAGE_ERROR"
	ErrCodeInputParsing  ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeSerialization ErrorCode = "SERIALIZATION_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from any error, or "" for non-standard errors.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsCode reports whether err is a StandardError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// ==========================
// 2. Error Constructors
// ==========================

// NewNotFoundError creates a non-retryable missing-resource error.
func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateSessionError signals that a validation session already exists
// for the draft summary.
func NewDuplicateSessionError(draftSummaryID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateSession,
		Message:   "Validation session already exists for this draft summary",
		Details:   fmt.Sprintf("draftSummaryId: %s", draftSummaryID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidStateError signals an operation not permitted in the current status.
func NewInvalidStateError(operation, currentStatus string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidState,
		Message:   fmt.Sprintf("Operation %q not permitted in status %q", operation, currentStatus),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidResponseError signals a response payload that fails its question's
// type schema.
func NewInvalidResponseError(questionID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidResponse,
		Message:   "Response payload does not match the question schema",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"questionId": questionID},
		Timestamp: time.Now().UTC(),
	}
}

// NewIncompleteRequiredError lists the required questions still unanswered.
func NewIncompleteRequiredError(missing []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIncompleteRequired,
		Message:   "Required questions are still unanswered",
		Details:   fmt.Sprintf("missing: %s", strings.Join(missing, ", ")),
		Retryable: false,
		Metadata:  map[string]interface{}{"missingQuestionIds": missing},
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidArgumentError creates a non-retryable bad-input error.
func NewInvalidArgumentError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidArgument,
		Message:   "Invalid argument",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionExpiredError signals a session past its expiry window.
func NewSessionExpiredError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionExpired,
		Message:   "Validation session has expired",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthenticationError creates a non-retryable provider auth error.
// Retrying with bad credentials is futile.
func NewAuthenticationError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthentication,
		Message:   fmt.Sprintf("Authentication with %s failed", provider),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCRMAPIError creates a retryable provider API error. It is raised once the
// client's own bounded retries are exhausted; the sync record layer may still
// retry it explicitly.
func NewCRMAPIError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCRMAPI,
		Message:   fmt.Sprintf("CRM API call to %s failed", provider),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError is internal to the provider clients and drives backoff.
func NewRateLimitedError(provider string, retryAfter time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   fmt.Sprintf("Rate limited by %s", provider),
		Details:   fmt.Sprintf("retryAfter: %s", retryAfter),
		Retryable: true,
		Metadata:  map[string]interface{}{"retryAfterSeconds": retryAfter.Seconds()},
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageError creates a retryable persistence error.
func NewStorageError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorage,
		Message:   fmt.Sprintf("Storage operation %q failed", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSerializationError creates a non-retryable encode/decode error.
func NewSerializationError(field string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSerialization,
		Message:   fmt.Sprintf("Failed to serialize %s", field),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInputParsingError creates a non-retryable job-variable parsing error.
func NewInputParsingError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputParsing,
		Message:   "Failed to parse job variables",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
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

// ToErrorVariables returns a map suitable for setting job fail variables.
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

// GetRetryCount returns the recommended workflow retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorage, ErrCodeCRMAPI:
		return 3
	case ErrCodeRateLimited:
		return 2
	default:
		return 0 // Business and auth errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for the engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeNotFound, ErrCodeDuplicateSession, ErrCodeInvalidState,
		ErrCodeInvalidResponse, ErrCodeIncompleteRequired, ErrCodeSessionExpired:
		return "SESSION"
	case ErrCodeAuthentication, ErrCodeCRMAPI, ErrCodeRateLimited:
		return "CRM"
	case ErrCodeStorage:
		return "STORAGE"
	case ErrCodeInvalidArgument, ErrCodeInputParsing, ErrCodeSerialization:
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
