// Package errors provides the tagged error type returned from every layer of
// the gateway, implementing the error kind taxonomy used to shape GraphQL
// "errors" entries.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error code constants. These are the taxonomy tags named in the error
// handling design: every LatticeError carries exactly one of these.
const (
	EInternal       = "internal error"
	EConfig         = "config error"
	ERemote         = "remote failure"
	ESchemaMismatch = "schema mismatch"
	EEval           = "eval error"
	EAuth           = "auth error"
	ECancelled      = "cancelled"
	EInvalid        = "invalid"
	ENotFound       = "not found"
)

// InternalErrorMessage is substituted for the real message of an EInternal
// error before it leaves the process, unless internal error exposure is
// turned on for the deployment.
const InternalErrorMessage = "An internal error has occurred."

// LatticeError is the error implementation used throughout the gateway.
type LatticeError struct {
	err     error
	code    string
	message string
}

// New returns a new LatticeError with the given code and formatted message.
// If one of the variadic arguments is a trace.Span, it is recorded onto and
// excluded from the format arguments.
func New(code string, format string, a ...any) *LatticeError {
	span, a := findSpan(a)
	resultErr := &LatticeError{code: code, message: fmt.Sprintf(format, a...)}
	if span != nil {
		span.RecordError(resultErr)
		span.SetStatus(codes.Error, resultErr.message)
	}
	return resultErr
}

// Wrap returns a new LatticeError that wraps an existing error.
func Wrap(err error, code string, format string, a ...any) *LatticeError {
	span, a := findSpan(a)
	msg := fmt.Sprintf(format, a...)
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
	}
	return &LatticeError{code: code, message: msg, err: err}
}

func findSpan(a []any) (trace.Span, []any) {
	var found trace.Span
	var rest []any
	for _, arg := range a {
		if found == nil {
			if span, ok := arg.(trace.Span); ok {
				found = span
				continue
			}
		}
		rest = append(rest, arg)
	}
	return found, rest
}

// Error implements the error interface.
func (e *LatticeError) Error() string {
	switch {
	case e.message != "" && e.err != nil:
		var b strings.Builder
		b.WriteString(e.message)
		b.WriteString(": ")
		b.WriteString(e.err.Error())
		return b.String()
	case e.message != "":
		return e.message
	case e.err != nil:
		return e.err.Error()
	default:
		return fmt.Sprintf("<%s>", e.code)
	}
}

// Unwrap allows errors.Is / errors.As to traverse into the wrapped cause.
func (e *LatticeError) Unwrap() error { return e.err }

// Code returns the error's own taxonomy tag, ignoring wrapped causes.
func (e *LatticeError) Code() string { return e.code }

// ErrorCode returns the code of the root LatticeError in err's chain, or
// EInternal if err is not (or does not wrap) a LatticeError.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	e, ok := unwrapLatticeError(err)
	if !ok {
		return EInternal
	}
	if e == nil {
		return ""
	}
	if e.code != "" {
		return e.code
	}
	if e.err != nil {
		return ErrorCode(e.err)
	}
	return EInternal
}

// ErrorMessage returns the user-facing message for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	e, ok := unwrapLatticeError(err)
	if !ok {
		return InternalErrorMessage
	}
	if e == nil {
		return ""
	}
	if e.message != "" {
		return e.Error()
	}
	if e.err != nil {
		return ErrorMessage(e.err)
	}
	return InternalErrorMessage
}

// IsContextCanceledError reports whether err is or wraps context.Canceled or
// context.DeadlineExceeded.
func IsContextCanceledError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func unwrapLatticeError(err error) (*LatticeError, bool) {
	for {
		if err == nil {
			return nil, false
		}
		if le, ok := err.(*LatticeError); ok {
			return le, true
		}
		err = errors.Unwrap(err)
	}
}
