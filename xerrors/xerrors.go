// Package xerrors defines the error-kind taxonomy used across musica's
// components: DecodeError, ResampleError, EmptyFingerprintError,
// CatalogError, TransportError, and TimeoutError. Each kind wraps an
// underlying cause with github.com/mdobak/go-xerrors, which attaches a
// stack trace at the point the error was created — useful once these
// errors reach a log line, since the kind alone doesn't say where in
// the pipeline things went wrong.
package xerrors

import (
	"errors"
	"fmt"

	xerr "github.com/mdobak/go-xerrors"
)

// Kind classifies an error the way spec §7 does, so callers (chiefly
// the streaming recognizer) can decide fatal-vs-skip without string
// matching.
type Kind int

const (
	Decode Kind = iota
	Resample
	EmptyFingerprint
	Catalog
	Transport
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Decode:
		return "DecodeError"
	case Resample:
		return "ResampleError"
	case EmptyFingerprint:
		return "EmptyFingerprintError"
	case Catalog:
		return "CatalogError"
	case Transport:
		return "TransportError"
	case Timeout:
		return "TimeoutError"
	default:
		return "UnknownError"
	}
}

// Error is a kinded error carrying a stack trace from its creation site.
type Error struct {
	kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.kind.String()
	}
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf reports the Kind of err, if it (or something it wraps) is one
// of ours.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

func new(kind Kind, cause error) error {
	return xerr.WithStackTrace(&Error{kind: kind, cause: cause})
}

func New(kind Kind, format string, args ...any) error {
	var cause error
	if format != "" {
		cause = fmt.Errorf(format, args...)
	}
	return new(kind, cause)
}

func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return new(kind, cause)
}

func NewDecodeError(format string, args ...any) error           { return New(Decode, format, args...) }
func NewResampleError(format string, args ...any) error         { return New(Resample, format, args...) }
func NewEmptyFingerprintError(format string, args ...any) error { return New(EmptyFingerprint, format, args...) }
func NewCatalogError(format string, args ...any) error          { return New(Catalog, format, args...) }
func NewTransportError(format string, args ...any) error        { return New(Transport, format, args...) }
func NewTimeoutError(format string, args ...any) error          { return New(Timeout, format, args...) }
