package rpc

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return field.Name
		default:
			return name
		}
	})
	return v
}

// Validator is implemented by inputs with rules struct tags cannot express. It runs only
// after the tags pass.
type Validator interface {
	Validate() error
}

// ValidateInput checks struct tags on input and returns a BAD_REQUEST error keyed by JSON
// field name, or nil when the input is acceptable. Non-struct inputs skip tag checks.
func ValidateInput(input any) *Error {
	err := validate.Struct(input)
	var invalidValidation *validator.InvalidValidationError
	if err == nil || errors.As(err, &invalidValidation) {
		return validateHook(input)
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Validation(map[string][]string{"input": {err.Error()}})
	}
	fieldErrors := make(map[string][]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		name := fieldError.Field()
		fieldErrors[name] = append(fieldErrors[name], formatFieldError(fieldError))
	}
	return Validation(fieldErrors)
}

func validateHook(input any) *Error {
	hook, ok := input.(Validator)
	if !ok {
		return nil
	}
	err := hook.Validate()
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return Validation(map[string][]string{"input": {err.Error()}})
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", e.Param())
		}
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(e.Param(), " ", ", "))
	default:
		return "is invalid"
	}
}
