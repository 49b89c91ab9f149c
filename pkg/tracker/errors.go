package tracker

import (
	"errors"
	"fmt"
)

// Code classifies a tracker error for API mapping.
type Code string

// Error codes.
const (
	// CodeNotFound indicates a referenced entity does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeNameConflict indicates a sibling with the same name exists.
	CodeNameConflict Code = "NAME_CONFLICT"

	// CodeValidation indicates rejected input.
	CodeValidation Code = "VALIDATION"

	// CodeInvalidState indicates a precondition on entity state failed,
	// such as promoting across branches.
	CodeInvalidState Code = "INVALID_STATE"

	// CodeImageRejected indicates an uploaded image failed type or size
	// checks.
	CodeImageRejected Code = "IMAGE_REJECTED"

	// CodeStoreFailure indicates an underlying persistence failure.
	CodeStoreFailure Code = "STORE_FAILURE"
)

// Error is a classified tracker error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrCode returns the code carried by err, or CodeStoreFailure when the
// error is not a classified tracker error.
func ErrCode(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}

	return CodeStoreFailure
}

func notFoundErr(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictErr(format string, args ...any) *Error {
	return &Error{Code: CodeNameConflict, Message: fmt.Sprintf(format, args...)}
}

func validationErr(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func invalidStateErr(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

func imageErr(format string, args ...any) *Error {
	return &Error{Code: CodeImageRejected, Message: fmt.Sprintf(format, args...)}
}

func storeErr(msg string, err error) *Error {
	return &Error{Code: CodeStoreFailure, Message: msg, Err: err}
}
