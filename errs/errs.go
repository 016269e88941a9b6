// Package errs defines the error taxonomy shared by the suspension and
// synchronization components.
//
// Two categories exist, mirroring the ECMAScript error classes the runtime
// raises at this layer:
//
//   - [TypeError]: wrong receiver or shape (an operation on a non-generator,
//     an atomic operation on a non-shared or non-integer view, a reentrant
//     call on an executing frame, a non-function callback).
//   - [RangeError]: out-of-range index, negative or otherwise invalid count
//     or timeout.
//
// Synchronous components (generators, atomics) return these directly at the
// call site. Asynchronous components (promises, async generators) never
// return them synchronously for semantic errors; they settle the returned
// promise as rejected instead.
package errs

import "fmt"

// TypeError represents a type error, similar to JavaScript's TypeError.
// This is used when a value is not of the expected type or shape.
type TypeError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if e.Message == "" {
		return "type error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TypeError) Unwrap() error {
	return e.Cause
}

// NewTypeError constructs a TypeError with a formatted message.
func NewTypeError(format string, args ...any) *TypeError {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}

// RangeError represents a range error, similar to JavaScript's RangeError.
// This is used when a value is not within the expected range.
type RangeError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	if e.Message == "" {
		return "range error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *RangeError) Unwrap() error {
	return e.Cause
}

// NewRangeError constructs a RangeError with a formatted message.
func NewRangeError(format string, args ...any) *RangeError {
	return &RangeError{Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an error with a message and optional cause chain.
//
// The result satisfies errors.Is(result, cause) == true.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

// PanicError wraps a recovered panic value so it can travel through the
// error channels of the asynchronous components (a rejected promise, a
// thrown generator completion) without losing the original value.
type PanicError struct {
	// Value is the value the panicking code passed to panic.
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
