// Package oaserr defines the error algebra shared by the collection core.
// Every failure surfaced at the public boundary is an *Error carrying one of
// the kinds below; callers match on the kind with errors.Is against the
// exported kind sentinels.
package oaserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind uint8

const (
	// KindDimensionMismatch: input vector length differs from the collection dimension.
	KindDimensionMismatch Kind = iota
	// KindInvalidVector: empty vector or non-finite components.
	KindInvalidVector
	// KindNotFound: unknown or tombstoned vector ID.
	KindNotFound
	// KindInvalidConfig: rejected configuration parameter.
	KindInvalidConfig
	// KindNonEmptyCollection: dimension change attempted on a non-empty collection.
	KindNonEmptyCollection
	// KindUnsupported: requested operation shape is not implemented.
	KindUnsupported
	// KindCorruptStream: magic, version, checksum or invariant failure during deserialize.
	KindCorruptStream
	// KindIo: underlying reader or writer failure.
	KindIo
)

func (k Kind) String() string {
	switch k {
	case KindDimensionMismatch:
		return "dimension mismatch"
	case KindInvalidVector:
		return "invalid vector"
	case KindNotFound:
		return "not found"
	case KindInvalidConfig:
		return "invalid config"
	case KindNonEmptyCollection:
		return "non-empty collection"
	case KindUnsupported:
		return "unsupported"
	case KindCorruptStream:
		return "corrupt stream"
	case KindIo:
		return "io"
	}
	return "unknown"
}

// Error is a classified collection error.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New creates an error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind, so errors.Is(err, oaserr.NotFound)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is matching.
var (
	DimensionMismatch  = &Error{Kind: KindDimensionMismatch, Message: "input vector dimension does not match the collection"}
	InvalidVector      = &Error{Kind: KindInvalidVector, Message: "invalid vector"}
	NotFound           = &Error{Kind: KindNotFound, Message: "the vector record is not found"}
	InvalidConfig      = &Error{Kind: KindInvalidConfig, Message: "invalid configuration"}
	NonEmptyCollection = &Error{Kind: KindNonEmptyCollection, Message: "collection must be empty"}
	Unsupported        = &Error{Kind: KindUnsupported, Message: "unsupported operation"}
	CorruptStream      = &Error{Kind: KindCorruptStream, Message: "corrupt stream"}
	Io                 = &Error{Kind: KindIo, Message: "io failure"}
)

// InvalidDimension builds the standard dimension mismatch error.
func InvalidDimension(found, expected int) *Error {
	return New(KindDimensionMismatch, "invalid vector dimension: expected %d, found %d", expected, found)
}

// RecordNotFound builds the standard missing record error.
func RecordNotFound(id uint32) *Error {
	return New(KindNotFound, "vector record %d is not found", id)
}

// Corrupt builds a CorruptStream error.
func Corrupt(format string, args ...any) *Error {
	return New(KindCorruptStream, format, args...)
}

// WrapIo wraps a reader/writer failure, preserving the cause for errors.Is.
func WrapIo(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIo, Message: err.Error(), cause: err}
}
