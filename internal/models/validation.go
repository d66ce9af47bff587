package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator. Field errors are reported under
// their JSON names.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return strings.ToLower(f.Name)
			}
			return name
		})
	})
	return validate
}

// Validate checks v's validate tags and reports the first failure as a
// ValidationError.
func Validate(v interface{}) error {
	return validationError("", Validator().Struct(v))
}

// ValidateField checks a single value against tag, reporting failures under
// field.
func ValidateField(field string, value interface{}, tag string) error {
	return validationError(field, Validator().Var(value, tag))
}

// ValidatePassword requires password to be at least minLength characters.
func ValidatePassword(password string, minLength int) error {
	return ValidateField("password", password, fmt.Sprintf("required,min=%d", minLength))
}

func validationError(field string, err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}

	fe := fieldErrs[0]
	if field == "" {
		field = fe.Field()
	}

	if format, ok := fieldErrorFormatters[fe.Tag()]; ok {
		return format(field, fe.Param())
	}
	return &ValidationError{Field: field, Reason: fmt.Sprintf("failed %s check", fe.Tag()), Err: ErrRequiredField}
}

// fieldErrorFormatters maps validator tags onto user-facing reasons and
// sentinels.
var fieldErrorFormatters = map[string]func(field, param string) *ValidationError{
	"required": func(field, _ string) *ValidationError {
		return &ValidationError{Field: field, Reason: MsgRequiredField, Err: ErrRequiredField}
	},
	"email": func(field, _ string) *ValidationError {
		return &ValidationError{Field: field, Reason: MsgInvalidEmail, Err: ErrInvalidEmail}
	},
	"min": func(field, param string) *ValidationError {
		return &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("Password must be at least %s characters.", param),
			Err:    ErrPasswordTooShort,
		}
	},
}
