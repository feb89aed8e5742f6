package serrors

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationErrors maps a struct field name to a human readable message.
type ValidationErrors map[string]string

var ErrValidation = NewError("VALIDATION_FAILED", "validation failed", "Errors.ValidationFailed")

// ProcessValidatorErrors turns validator failures into per-field messages.
func ProcessValidatorErrors(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = validationMessage(fe)
	}
	return out
}

// FromValidator converts the result of validator.Struct. It returns nil when
// err is nil and an empty map for non-validation errors.
func FromValidator(err error) ValidationErrors {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return ProcessValidatorErrors(verrs)
	}
	return ValidationErrors{"": err.Error()}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	default:
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
}
