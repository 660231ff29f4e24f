// Package errors provides the standardized error taxonomy of the notification
// pipeline and its conversion to BPMN errors for the job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidEvent             ErrorCode = "INVALID_EVENT"
	ErrCodeAudienceResolutionFailed ErrorCode = "AUDIENCE_RESOLUTION_FAILED"
	ErrCodeRecordWriteFailed        ErrorCode = "RECORD_WRITE_FAILED"
	ErrCodeFanoutPartial            ErrorCode = "FANOUT_PARTIAL"
	ErrCodeEnqueueFailed            ErrorCode = "ENQUEUE_FAILED"
	ErrCodeDispatchFailed           ErrorCode = "DISPATCH_FAILED"
	ErrCodeProviderTimeout          ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeStoreUnavailable         ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeUnauthenticated          ErrorCode = "UNAUTHENTICATED"
	ErrCodeMissingDeliveryToken     ErrorCode = "MISSING_DELIVERY_TOKEN"
	ErrCodeSubscriptionFailed       ErrorCode = "TOPIC_SUBSCRIPTION_FAILED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches diagnostic context, typically event kind and subject ids.
func (e *StandardError) WithMetadata(fields map[string]interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	for k, v := range fields {
		e.Metadata[k] = v
	}
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

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

func NewInvalidEventError(details string) *StandardError {
	e := newError(ErrCodeInvalidEvent, "Event payload is invalid", nil, false)
	e.Details = details
	return e
}

func NewAudienceResolutionError(err error) *StandardError {
	return newError(ErrCodeAudienceResolutionFailed, "Audience could not be resolved", err, false)
}

func NewRecordWriteError(err error) *StandardError {
	return newError(ErrCodeRecordWriteFailed, "Canonical notification record write failed", err, true)
}

// NewFanoutPartialError reports how many recipient copies made it before a chunk failed.
func NewFanoutPartialError(written, intended int, err error) *StandardError {
	e := newError(ErrCodeFanoutPartial, fmt.Sprintf("Fan-out wrote %d of %d recipients", written, intended), err, false)
	return e.WithMetadata(map[string]interface{}{"written": written, "intended": intended})
}

func NewEnqueueError(target string, err error) *StandardError {
	e := newError(ErrCodeEnqueueFailed, "Dispatch request could not be enqueued", err, true)
	return e.WithMetadata(map[string]interface{}{"target": target})
}

func NewDispatchFailedError(err error) *StandardError {
	return newError(ErrCodeDispatchFailed, "Push provider rejected the message", err, false)
}

func NewProviderTimeoutError(err error) *StandardError {
	return newError(ErrCodeProviderTimeout, "Push provider call timed out", err, false)
}

func NewStoreUnavailableError(err error) *StandardError {
	return newError(ErrCodeStoreUnavailable, "Document store unavailable", err, true)
}

func NewUnauthenticatedError(details string) *StandardError {
	e := newError(ErrCodeUnauthenticated, "Caller is not authenticated", nil, false)
	e.Details = details
	return e
}

func NewMissingDeliveryTokenError() *StandardError {
	e := newError(ErrCodeMissingDeliveryToken, "Delivery token is required", nil, false)
	e.Details = "no device token supplied"
	return e
}

func NewSubscriptionFailedError(topic string, err error) *StandardError {
	e := newError(ErrCodeSubscriptionFailed, fmt.Sprintf("Subscription to topic %s failed", topic), err, true)
	return e.WithMetadata(map[string]interface{}{"topic": topic})
}

// AsStandard returns err as a StandardError, wrapping unknown errors as INTERNAL_ERROR.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// HasCode reports whether err (or anything it wraps) is a StandardError with code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetRetryCount is the number of job retries granted to a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreUnavailable,
		ErrCodeRecordWriteFailed,
		ErrCodeEnqueueFailed,
		ErrCodeSubscriptionFailed:
		return 3
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
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
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for dashboards.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "EVENT") || strings.Contains(codeStr, "AUDIENCE"):
		return "RESOLUTION"
	case strings.Contains(codeStr, "FANOUT") || strings.Contains(codeStr, "RECORD"):
		return "FANOUT"
	case strings.Contains(codeStr, "DISPATCH") || strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "ENQUEUE"):
		return "DISPATCH"
	case strings.Contains(codeStr, "AUTH") || strings.Contains(codeStr, "TOKEN"):
		return "AUTH"
	case strings.Contains(codeStr, "SUBSCRIPTION"):
		return "SUBSCRIPTION"
	case strings.Contains(codeStr, "STORE"):
		return "STORE"
	default:
		return "OTHER"
	}
}
