package errors

import (
	"fmt"
	"strings"
)

// ValidationError is a single input problem located by its argument path
// (for example "ssidDetails[2].vlanId").
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError
}

func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Sprintf("validation failed with %d error(s):\n  - %s", len(ve.Errors), strings.Join(msgs, "\n  - "))
}

// Summary renders the errors on a single line, suitable for a result msg
func (ve *ValidationErrors) Summary() string {
	var msgs []string
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (ve *ValidationErrors) Add(path, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Path: path, Message: message})
}

func (ve *ValidationErrors) Addf(path, format string, args ...interface{}) {
	ve.Add(path, fmt.Sprintf(format, args...))
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// OrNil returns ve as an error when it holds at least one entry
func (ve *ValidationErrors) OrNil() error {
	if ve == nil || !ve.HasErrors() {
		return nil
	}
	return ve
}
