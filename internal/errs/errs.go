// Package errs defines the error kinds shared by the design generators and
// the tool wrappers. Every failure is returned as an *Error whose Kind can be
// matched with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDescription marks inconsistent session or contrast data.
	ErrMalformedDescription = errors.New("malformed description")
	// ErrUnknownContrastKind marks a contrast that is neither T nor F.
	ErrUnknownContrastKind = errors.New("unknown contrast kind")
	// ErrMissingRegistrationReference marks registration without a usable reference image.
	ErrMissingRegistrationReference = errors.New("missing registration reference")
	// ErrIO marks a failure to open, read or write a file.
	ErrIO = errors.New("i/o failure")
	// ErrUnexpectedOutputs marks a tool run whose output files do not match the expected count.
	ErrUnexpectedOutputs = errors.New("unexpected outputs")
	// ErrCommandFailed marks a tool that exited with a non-zero status.
	ErrCommandFailed = errors.New("command failed")
)

// Error carries a kind, the operation that failed and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if e.Op != "" {
		s = "[" + e.Op + "] " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Malformedf builds an ErrMalformedDescription error.
func Malformedf(op, format string, args ...any) error {
	return &Error{Kind: ErrMalformedDescription, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps a file system failure on path.
func IO(op, path string, err error) error {
	return &Error{Kind: ErrIO, Op: op, Msg: path, Err: err}
}

// New builds an error of the given kind.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind error, op string, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}
