package config_loader

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

var (
	structValidatorOnce sync.Once
	structValidator     *validator.Validate
)

func getStructValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New()
		// Report task file key names instead of Go field names
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return strings.ToLower(field.Name[:1]) + field.Name[1:]
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// ValidateConnection checks the connection config. All problems are
// reported together as *errors.ValidationErrors.
func ValidateConnection(cfg *ConnectionConfig) error {
	if cfg == nil {
		return fmt.Errorf("connection config is nil")
	}
	err := getStructValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid connection config: %w", err)
	}
	errs := &apperrors.ValidationErrors{}
	for _, fe := range fieldErrs {
		errs.Add(fe.Field(), describeFieldError(fe))
	}
	return errs
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when no token is set"
	case "required_with":
		return "is required together with username"
	case "min":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s, got %v", fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("must not be less than %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
