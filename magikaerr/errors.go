// Package magikaerr defines the error domain used throughout the magika
// module.
package magikaerr

import (
	"errors"
	"os"
	"strings"
)

// Error is the magika error domain type.
//
// Errors coming from magika components should be able to be inspected as
// ([errors.As]) an *Error at some point in the error chain.
//
// Components should create an Error at the system boundary (e.g. reading a
// file, calling into the model runtime) and intermediate layers should not
// wrap in another Error except to add additional [ErrorKind] information. Use
// [fmt.Errorf] with a "%w" verb in preference to creating a containing Error.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string

	// IO further classifies an ErrIO error. Zero value (IOOther) for every
	// other Kind.
	IO IOKind
}

// Assert this implements all the cool features.
var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrIO, ErrShortRead, ErrRuntime, ErrConfig, ErrInvariant:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against.
//
// If an error is unsure which kind to use, ErrRuntime should be used.
type ErrorKind string

// Defined error kinds.
var (
	// ErrIO is an underlying read/stat/open failure.
	ErrIO = ErrorKind("io")
	// ErrShortRead means a requested region was not fully available.
	ErrShortRead = ErrorKind("short read")
	// ErrRuntime is a model runtime failure or output-shape mismatch.
	ErrRuntime = ErrorKind("runtime")
	// ErrConfig means the catalog or config violates invariants at load
	// time. Fatal, raised during session construction.
	ErrConfig = ErrorKind("config")
	// ErrInvariant means an internal check failed. Always a bug.
	ErrInvariant = ErrorKind("invariant")
)

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}

// IOKind further classifies an [ErrIO] error, mirroring the contract of
// common [os] package sentinel errors.
type IOKind int

// Defined IO kinds.
const (
	IOOther IOKind = iota
	IONotFound
	IOPermissionDenied
)

// classifyIO maps a wrapped OS error to an IOKind, falling back to IOOther.
func classifyIO(err error) IOKind {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return IONotFound
	case errors.Is(err, os.ErrPermission):
		return IOPermissionDenied
	default:
		return IOOther
	}
}

// NewIOError builds an ErrIO [Error] for op wrapping err, classifying it by
// [IOKind] when err matches a recognized [os] sentinel.
func NewIOError(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrIO, IO: classifyIO(err), Inner: err}
}
