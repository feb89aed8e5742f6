package serrors

import (
	"errors"
	"fmt"
)

// BaseError is a coded error. Two BaseErrors match under errors.Is when
// their codes are equal, so wrapped copies with extra detail still compare
// equal to the package-level sentinel.
type BaseError struct {
	Code      string
	Message   string
	LocaleKey string
	cause     error
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.cause)
}

func (e *BaseError) Unwrap() error {
	return e.cause
}

func (e *BaseError) Is(target error) bool {
	var t *BaseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *BaseError) Wrap(cause error) *BaseError {
	return &BaseError{
		Code:      e.Code,
		Message:   e.Message,
		LocaleKey: e.LocaleKey,
		cause:     cause,
	}
}

// Withf returns a copy of e whose message has the formatted detail appended.
func (e *BaseError) Withf(format string, args ...any) *BaseError {
	return &BaseError{
		Code:      e.Code,
		Message:   e.Message + ": " + fmt.Sprintf(format, args...),
		LocaleKey: e.LocaleKey,
		cause:     e.cause,
	}
}

// CodeOf returns the code of the first BaseError in err's chain.
func CodeOf(err error) (string, bool) {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code, true
	}
	return "", false
}
