package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error classes raised by the billing engine. Fatal classes (validation,
// not found) abort a batch; the rest are recorded per usage record.
var (
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrConfiguration    = new(ErrCodeConfiguration, "configuration error")
	ErrAllocation       = new(ErrCodeAllocation, "allocation error")
	ErrDuplicate        = new(ErrCodeDuplicate, "billing record already exists")
	ErrPersistence      = new(ErrCodePersistence, "persistence error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrExternal         = new(ErrCodeExternal, "external service error")
)

const (
	ErrCodeValidation       = "validation_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeConfiguration    = "configuration_error"
	ErrCodeAllocation       = "allocation_error"
	ErrCodeDuplicate        = "duplicate"
	ErrCodePersistence      = "persistence_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodeExternal         = "external_error"
)

// InternalError represents a classified engine error.
type InternalError struct {
	Code    string
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is matches on the error code so wrapped copies compare equal.
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsAllocation(err error) bool {
	return errors.Is(err, ErrAllocation)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

func IsExternal(err error) bool {
	return errors.Is(err, ErrExternal)
}

// IsFatal reports whether err must abort a whole batch rather than a
// single usage record.
func IsFatal(err error) bool {
	return IsValidation(err) || IsNotFound(err)
}

// Code returns the machine readable class of err, or "unknown".
func Code(err error) string {
	for _, ref := range []*InternalError{
		ErrValidation,
		ErrNotFound,
		ErrConfiguration,
		ErrAllocation,
		ErrDuplicate,
		ErrPersistence,
		ErrInvalidOperation,
		ErrExternal,
	} {
		if errors.Is(err, ref) {
			return ref.Code
		}
	}
	return "unknown"
}
