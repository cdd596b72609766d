// Package classifier maps raw controller responses to outcomes.
package classifier

import (
	"fmt"
	"strings"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

// Status is the classification of one controller response
type Status string

const (
	StatusOKIdempotent Status = "OK_IDEMPOTENT"
	StatusChanged      Status = "CHANGED"
	StatusPending      Status = "PENDING"
	StatusFailed       Status = "FAILED"
)

// Handle identifies asynchronous controller work. Exactly one of the
// execution pair or the task pair is set.
type Handle struct {
	ExecutionID string `json:"executionId,omitempty"`
	StatusURL   string `json:"executionStatusUrl,omitempty"`
	TaskID      string `json:"taskId,omitempty"`
	TaskURL     string `json:"url,omitempty"`
}

// ID returns the execution or task id
func (h *Handle) ID() string {
	if h.ExecutionID != "" {
		return h.ExecutionID
	}
	return h.TaskID
}

// IsExecution reports whether the handle is an execution id rather than a task id
func (h *Handle) IsExecution() bool {
	return h.ExecutionID != ""
}

func (h *Handle) String() string {
	if h.IsExecution() {
		return fmt.Sprintf("execution %s", h.ExecutionID)
	}
	return fmt.Sprintf("task %s", h.TaskID)
}

// Outcome is the result of Classify
type Outcome struct {
	Status Status
	// Kind is set for StatusFailed
	Kind    apperrors.FailureKind
	Message string
	// Code is the controller error code, when present
	Code   string
	Handle *Handle
}

// Err converts a failed outcome into a task error carrying payload
func (o Outcome) Err(payload interface{}) error {
	if o.Status != StatusFailed {
		return nil
	}
	return &apperrors.TaskError{Kind: o.Kind, Message: o.Message, ControllerCode: o.Code, Payload: payload}
}

// Classify maps a decoded response body to an outcome for an operation of
// the given kind (get, post, put, delete).
func Classify(body interface{}, opKind string) Outcome {
	m, _ := body.(map[string]interface{})

	if m != nil && IsFailed(m) {
		return Outcome{
			Status:  StatusFailed,
			Kind:    apperrors.KindControllerSide,
			Message: FailureMessage(m),
			Code:    ErrorCode(m),
		}
	}
	if h := ExtractHandle(body); h != nil {
		return Outcome{Status: StatusPending, Handle: h}
	}
	if opKind == descriptor.OpGet {
		return Outcome{Status: StatusOKIdempotent}
	}
	return Outcome{Status: StatusChanged}
}

// envelopes returns m and, when present, its "response" mapping. Controllers
// put status fields and handles at either level.
func envelopes(m map[string]interface{}) []map[string]interface{} {
	levels := []map[string]interface{}{m}
	if inner, ok := m["response"].(map[string]interface{}); ok {
		levels = append(levels, inner)
	}
	return levels
}

// IsFailed reports whether the body carries status "failed"
func IsFailed(m map[string]interface{}) bool {
	for _, level := range envelopes(m) {
		if s, ok := level["status"].(string); ok && s == "failed" {
			return true
		}
	}
	return false
}

// FailureMessage extracts the controller message from bapiError,
// failureReason or message, in that order.
func FailureMessage(m map[string]interface{}) string {
	if msg := Message(m); msg != "" {
		return msg
	}
	return "controller reported status failed"
}

// Message returns the first controller message found in m, or ""
func Message(m map[string]interface{}) string {
	for _, key := range []string{"bapiError", "failureReason", "message", "detail"} {
		for _, level := range envelopes(m) {
			if msg := stringish(level[key]); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// ErrorCode extracts the controller-supplied error code, if any
func ErrorCode(m map[string]interface{}) string {
	for _, key := range []string{"errorCode", "code"} {
		for _, level := range envelopes(m) {
			if code := stringish(level[key]); code != "" {
				return code
			}
		}
	}
	return ""
}

// ExtractHandle returns the execution handle of a body, or nil. A handle is
// an executionId, or a taskId together with a url.
func ExtractHandle(body interface{}) *Handle {
	m, ok := body.(map[string]interface{})
	if !ok {
		return nil
	}
	for _, level := range envelopes(m) {
		if id := stringish(level["executionId"]); id != "" {
			return &Handle{ExecutionID: id, StatusURL: stringish(level["executionStatusUrl"])}
		}
		taskID, url := stringish(level["taskId"]), stringish(level["url"])
		if taskID != "" && url != "" {
			return &Handle{TaskID: taskID, TaskURL: url}
		}
	}
	return nil
}

func stringish(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	case map[string]interface{}:
		// bapiError is sometimes a mapping with its own message
		for _, key := range []string{"message", "detail", "errorMessage"} {
			if s := stringish(val[key]); s != "" {
				return s
			}
		}
		return ""
	case float64, int, int64, bool:
		return fmt.Sprint(val)
	}
	return ""
}

// Items extracts the record list of a read response at a dot path. "."
// selects the body itself; a single mapping becomes a one-element list.
func Items(body interface{}, path string) []interface{} {
	current := body
	if path != "" && path != "." {
		for _, part := range strings.Split(path, ".") {
			m, ok := current.(map[string]interface{})
			if !ok {
				return nil
			}
			current = m[part]
		}
	}
	switch v := current.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		if len(v) == 0 {
			return nil
		}
		return []interface{}{v}
	}
	return nil
}
