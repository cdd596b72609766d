package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies the outcome of a task. Every kind except
// KindOKIdempotent results in failed=true.
type FailureKind string

const (
	KindOKIdempotent       FailureKind = "ok_idempotent"
	KindValidation         FailureKind = "validation"
	KindTransport          FailureKind = "transport"
	KindHTTPClient         FailureKind = "http_client"
	KindHTTPServer         FailureKind = "http_server"
	KindControllerSide     FailureKind = "controller_side"
	KindTimeout            FailureKind = "timeout"
	KindImmutableViolation FailureKind = "immutable_violation"
	KindPartial            FailureKind = "partial"
	KindAmbiguous          FailureKind = "ambiguous"
	KindUnsupported        FailureKind = "unsupported"
	// KindInternal is reserved for defects in this runtime (bad descriptor, nil client)
	KindInternal FailureKind = "internal"
)

// IsFailure reports whether the kind maps to failed=true
func (k FailureKind) IsFailure() bool {
	return k != KindOKIdempotent && k != ""
}

// TaskError is the single error type that travels from the reconcilers and
// the read path to the dispatcher. Payload carries the last controller
// response verbatim for controller_side and partial failures.
type TaskError struct {
	Kind           FailureKind
	Message        string
	ControllerCode string
	Payload        interface{}
	Err            error
}

func (e *TaskError) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a TaskError with a formatted message
func NewTaskError(kind FailureKind, format string, args ...interface{}) *TaskError {
	return &TaskError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapTaskError creates a TaskError around an underlying cause
func WrapTaskError(kind FailureKind, err error, format string, args ...interface{}) *TaskError {
	return &TaskError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewControllerSideError records a controller-reported failure with its payload
func NewControllerSideError(message, code string, payload interface{}) *TaskError {
	return &TaskError{Kind: KindControllerSide, Message: message, ControllerCode: code, Payload: payload}
}

// NewPartialError is returned when a replace deleted the old resource but the
// create that should follow failed. Both controller messages are kept.
func NewPartialError(deleteMsg string, createErr error) *TaskError {
	te := &TaskError{
		Kind:    KindPartial,
		Message: fmt.Sprintf("replace incomplete: delete succeeded (%s) but create failed: %s", deleteMsg, MessageOf(createErr)),
		Err:     createErr,
	}
	var inner *TaskError
	if errors.As(createErr, &inner) {
		te.ControllerCode = inner.ControllerCode
		te.Payload = inner.Payload
	}
	if apiErr, ok := IsAPIError(createErr); ok {
		if te.ControllerCode == "" {
			te.ControllerCode = apiErr.ErrorCode
		}
		if te.Payload == nil {
			te.Payload = apiErr.Payload
		}
	}
	return te
}

// AsTaskError unwraps err into a *TaskError
func AsTaskError(err error) (*TaskError, bool) {
	var te *TaskError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindOf resolves any error produced by this runtime to a failure kind.
func KindOf(err error) FailureKind {
	if err == nil {
		return KindOKIdempotent
	}
	if te, ok := AsTaskError(err); ok {
		return te.Kind
	}
	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		return KindValidation
	}
	if apiErr, ok := IsAPIError(err); ok {
		switch {
		case apiErr.IsControllerFailure():
			return KindControllerSide
		case apiErr.IsServerError():
			return KindHTTPServer
		case apiErr.IsClientError():
			return KindHTTPClient
		}
		if apiErr.StatusCode == 0 && apiErr.Err != nil && !errors.Is(apiErr.Err, context.Canceled) {
			// No response was received
			return KindTransport
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || IsNetworkError(err) {
		return KindTransport
	}
	return KindInternal
}

// MessageOf returns the most specific human-readable message for err
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if te, ok := AsTaskError(err); ok && te.Message != "" {
		return te.Message
	}
	if apiErr, ok := IsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(err.Error())
}

// ControllerCodeOf returns the controller-supplied error code, if any
func ControllerCodeOf(err error) string {
	if te, ok := AsTaskError(err); ok && te.ControllerCode != "" {
		return te.ControllerCode
	}
	if apiErr, ok := IsAPIError(err); ok {
		return apiErr.ErrorCode
	}
	return ""
}
