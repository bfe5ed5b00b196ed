// Package errors augments the standard errors
// provided by fmt (https://golang.org/src/fmt/errors.go)
// with a Wrap() method to wrap errors without resorting
// to fmt.Errorf("%w", err).
package errors

import (
	stderr "errors"
	"fmt"

	"go.uber.org/zap"
)

var _ error = New("")

// New Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Wrap method.
//
// Errors created with New are meant to be used as sentinels: wrapping
// methods never mutate the receiver, they return a derived error which
// still matches the sentinel with Is.
type Error struct {
	msg      string
	err      error
	sentinel *Error
}

// Error message, followed by the message of the wrapped cause, if any
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err, sentinel: e.root()}
}

// WrapMessage decorates the error message with some formatted details
func (e *Error) WrapMessage(format string, args ...interface{}) *Error {
	return &Error{msg: e.msg + ": " + fmt.Sprintf(format, args...), err: e.err, sentinel: e.root()}
}

// WrapWithLog wraps a nested error and logs it as an error
func (e *Error) WrapWithLog(l *zap.Logger, err error, fields ...zap.Field) *Error {
	if l != nil {
		l.Error(e.msg, append(fields, zap.Error(err))...)
	}
	return e.Wrap(err)
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	if e == target {
		return true
	}
	return e.sentinel != nil && e.sentinel == target
}

func (e *Error) root() *Error {
	if e.sentinel != nil {
		return e.sentinel
	}
	return e
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.As)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
