// Package errors provides classified error handling for wis2node components.
// Errors are classified so the dispatch path can tell expected per-message
// conditions apart from data faults and environment faults.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorExpected represents conditions that are part of normal operation,
	// such as a file no registered plugin claims. Logged at debug, swallowed.
	ErrorExpected ErrorClass = iota
	// ErrorInvalid represents per-message data faults: malformed input,
	// missing mapping, invalid filename pattern. Logged, message dropped.
	ErrorInvalid
	// ErrorTransient represents temporary environment errors that may be retried
	ErrorTransient
	// ErrorFatal represents unrecoverable errors that must surface to the operator
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorExpected:
		return "expected"
	case ErrorInvalid:
		return "invalid"
	case ErrorTransient:
		return "transient"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Dispatch and worker errors
	ErrNotHandled    = errors.New("no plugin handled the file")
	ErrNoMapping     = errors.New("no data mapping registered for topic")
	ErrInvalidData   = errors.New("invalid data format")
	ErrInvalidKey    = errors.New("invalid object key")
	ErrWorkerPanic   = errors.New("worker panic")
	ErrUnknownPlugin = errors.New("unknown plugin identifier")

	// Broker and connection errors
	ErrNoConnection   = errors.New("no broker connection available")
	ErrConnectionLost = errors.New("broker connection lost")
	ErrSubscribeFail  = errors.New("subscription failed")

	// Mapping-source and catalog errors
	ErrSourceUnavailable = errors.New("mapping source unavailable")
	ErrCatalogStatus     = errors.New("unexpected catalog response status")

	// Storage errors
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrObjectNotFound     = errors.New("object not found")
	ErrStorageUnavailable = errors.New("object storage unavailable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsExpected reports whether an error is an expected per-message condition
// that should be swallowed at debug severity.
func IsExpected(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorExpected
	}

	return errors.Is(err, ErrNotHandled) || errors.Is(err, ErrNoMapping)
}

// IsInvalid reports whether an error is a per-message data fault.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrUnknownPlugin) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsTransient reports whether an error is a temporary environment fault
// that may be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "unavailable", "temporary"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal reports whether an error must surface to the process boundary.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrMissingConfig) || errors.Is(err, ErrWorkerPanic)
}

// Classify returns the error class for an error. Unknown errors classify
// as fatal: an unexpected fault inside a worker may indicate a defect
// rather than a bad message and must not be silently absorbed.
func Classify(err error) ErrorClass {
	switch {
	case IsExpected(err):
		return ErrorExpected
	case IsInvalid(err):
		return ErrorInvalid
	case IsTransient(err):
		return ErrorTransient
	default:
		return ErrorFatal
	}
}

// newClassified creates a new classified error.
// Internal helper - use the Wrap* functions instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapExpected wraps an error as an expected condition with context
func WrapExpected(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorExpected, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as a data fault with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}
