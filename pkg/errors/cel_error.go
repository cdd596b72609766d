package errors

import (
	"errors"
	"fmt"
)

// CELErrorType identifies the stage at which a constraint expression failed
type CELErrorType string

const (
	CELErrorTypeParse   CELErrorType = "parse"
	CELErrorTypeProgram CELErrorType = "program"
	CELErrorTypeEval    CELErrorType = "evaluation"
	CELErrorTypeResult  CELErrorType = "result"
)

// CELError is returned when a descriptor constraint expression cannot be
// compiled or evaluated. It is a descriptor defect, not a user input error.
type CELError struct {
	Type       CELErrorType
	Expression string
	Err        error
}

func (e *CELError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("constraint expression %q: %s failed", e.Expression, e.Type)
	}
	return fmt.Sprintf("constraint expression %q: %s failed: %v", e.Expression, e.Type, e.Err)
}

func (e *CELError) Unwrap() error {
	return e.Err
}

// NewCELParseError creates an error for an expression that does not compile
func NewCELParseError(expression string, err error) *CELError {
	return &CELError{Type: CELErrorTypeParse, Expression: expression, Err: err}
}

// NewCELProgramError creates an error for an expression that cannot be planned
func NewCELProgramError(expression string, err error) *CELError {
	return &CELError{Type: CELErrorTypeProgram, Expression: expression, Err: err}
}

// NewCELEvalError creates an error for a runtime evaluation failure
func NewCELEvalError(expression string, err error) *CELError {
	return &CELError{Type: CELErrorTypeEval, Expression: expression, Err: err}
}

// NewCELResultError creates an error for an expression that does not yield a bool
func NewCELResultError(expression string, got string) *CELError {
	return &CELError{
		Type:       CELErrorTypeResult,
		Expression: expression,
		Err:        fmt.Errorf("expected bool result, got %s", got),
	}
}

// IsCELError unwraps err into a *CELError
func IsCELError(err error) (*CELError, bool) {
	var celErr *CELError
	if errors.As(err, &celErr) {
		return celErr, true
	}
	return nil, false
}
