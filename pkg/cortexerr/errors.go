// Package cortexerr defines the error-kind taxonomy shared by every layer
// of the device adapter subsystem (transport, protocol, adapter session,
// harness client). A single tagged error type lets callers branch on
// errors.Is/errors.As without depending on any one layer's package.
package cortexerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. Kinds are never retried or
// swallowed inside the core; they are propagated to the caller who
// decides policy (abort the kernel, continue, fail the benchmark).
type Kind int

const (
	KindUnknown Kind = iota

	// Transport errors
	KindTimeout
	KindConnReset
	KindIO
	KindConnect
	KindConfig

	// Protocol errors
	KindMagicNotFound
	KindVersionMismatch
	KindOversize
	KindCRCMismatch
	KindBufferTooSmall
	KindInvalidFrame

	// Chunking errors
	KindChunkSequence
	KindChunkTotalMismatch
	KindChunkOverflow
	KindChunkOverlap
	KindChunkGap
	KindChunkDuplicate

	// Session errors
	KindSessionMismatch
	KindUnexpectedFrame
	KindAckMismatch

	// Kernel/load errors
	KindUnknownKernel
	KindMissingSymbol
	KindInitFailure
	KindCalibrationTooLarge

	// Lifecycle errors
	KindPrematureExit
	KindTeardownGrace
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindTimeout:             "timeout",
	KindConnReset:           "connection reset",
	KindIO:                  "i/o failure",
	KindConnect:             "connect/accept failure",
	KindConfig:              "configuration error",
	KindMagicNotFound:       "magic not found",
	KindVersionMismatch:     "protocol version mismatch",
	KindOversize:            "oversize payload",
	KindCRCMismatch:         "crc mismatch",
	KindBufferTooSmall:      "buffer too small",
	KindInvalidFrame:        "invalid frame",
	KindChunkSequence:       "chunk sequence mismatch",
	KindChunkTotalMismatch:  "chunk total_bytes mismatch",
	KindChunkOverflow:       "chunk offset/length overflow",
	KindChunkOverlap:        "chunk overlap",
	KindChunkGap:            "chunk gap at completion",
	KindChunkDuplicate:      "duplicate chunk",
	KindSessionMismatch:     "session id mismatch",
	KindUnexpectedFrame:     "unexpected frame type",
	KindAckMismatch:         "ack acknowledges wrong kind",
	KindUnknownKernel:       "unknown kernel",
	KindMissingSymbol:       "missing kernel symbol",
	KindInitFailure:         "kernel init failure",
	KindCalibrationTooLarge: "calibration state too large",
	KindPrematureExit:       "adapter exited prematurely",
	KindTeardownGrace:       "teardown grace period exceeded",
}

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the error type returned by every layer of the core.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Kind, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New creates an Error with no underlying cause.
func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context}
}

// Wrap creates an Error that carries cause as its Unwrap target.
func Wrap(kind Kind, context string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Cause: cause}
}

// Is reports whether err is (or wraps) a *Error of the given kind. It is
// a convenience over errors.Is for callers that only have a Kind value.
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
