package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

// -----------------------------------------------------------------------------
// Stack Trace Capture
// -----------------------------------------------------------------------------

// skipStackTraceCheckers is a list of functions that check if an error should skip stack trace capture.
// Each checker returns true if the error is an expected operational error.
var skipStackTraceCheckers = []func(error) bool{
	func(err error) bool { return errors.Is(err, context.Canceled) },
	func(err error) bool { return errors.Is(err, context.DeadlineExceeded) },
	func(err error) bool { return errors.Is(err, io.EOF) },

	apperrors.IsNetworkError,

	// Controller HTTP errors and body-level failures
	func(err error) bool {
		_, ok := apperrors.IsAPIError(err)
		return ok
	},

	// Classified task outcomes are expected unless they are runtime defects
	func(err error) bool {
		te, ok := apperrors.AsTaskError(err)
		return ok && te.Kind != apperrors.KindInternal
	},

	func(err error) bool {
		var verrs *apperrors.ValidationErrors
		return errors.As(err, &verrs)
	},
}

// shouldCaptureStackTrace determines if a stack trace should be captured for the given error.
// Returns false for expected operational errors and true for unexpected errors that
// indicate bugs or require investigation.
func shouldCaptureStackTrace(err error) bool {
	if err == nil {
		return false
	}
	for _, check := range skipStackTraceCheckers {
		if check(err) {
			return false
		}
	}
	return true
}

// WithStackTraceField returns a context with the stack trace set.
// If frames is nil or empty, returns the context unchanged.
func WithStackTraceField(ctx context.Context, frames []string) context.Context {
	if len(frames) == 0 {
		return ctx
	}
	return WithLogField(ctx, StackTraceKey, frames)
}

// CaptureStackTrace captures the current call stack and returns it as a slice of strings.
// Each string contains the file path, line number, and function name.
// The skip parameter specifies how many stack frames to skip:
//   - skip=0 starts from the caller of CaptureStackTrace
//   - skip=1 skips one additional level, etc.
func CaptureStackTrace(skip int) []string {
	const maxFrames = 32
	pcs := make([]uintptr, maxFrames)
	// +2 to skip runtime.Callers and CaptureStackTrace itself
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var stack []string
	for {
		frame, more := frames.Next()
		stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return stack
}
