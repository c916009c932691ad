// Package errors defines the failure taxonomy shared by every component.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can map it to a response without
// inspecting wrapped causes.
type Kind string

const (
	KindInvalidParameter  Kind = "invalid_parameter"
	KindNotFound          Kind = "not_found"
	KindDecode            Kind = "decode"
	KindEncode            Kind = "encode"
	KindResourceExhausted Kind = "resource_exhausted"
	KindStorage           Kind = "storage"
	KindInternal          Kind = "internal"
)

// Error is the structured error type used throughout the module.
type Error struct {
	Kind      Kind
	Op        string // operation name, e.g. "descriptor.parse"
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a non-retryable Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a non-retryable Error from a format string.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Transient creates a retryable storage-kind Error.  Transient failures are
// never negative-cached.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err, Retryable: true}
}

// Wrap wraps err with a kind and operation; nil in, nil out.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(kind, op, err)
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorruptData       = errors.New("corrupt image data")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrEmptyInput        = errors.New("empty input")
	ErrSourceTooLarge    = errors.New("source exceeds maximum size")
	ErrTooManyPixels     = errors.New("target exceeds maximum pixel count")
	ErrQueueFull         = errors.New("worker queue full")
	ErrNotFound          = errors.New("not found")
	ErrClosed            = errors.New("service is shutting down")
)
