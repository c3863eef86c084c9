// Package processor defines the capability the worker pool invokes to do
// the actual chunk-level extraction work, and the error taxonomy that feeds
// retry-versus-dead-letter decisions.
package processor

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a chunk processing failure. The retry package maps
// kinds to retryability; the mapping is configuration, not hardwired.
type ErrorKind string

const (
	// KindSchemaValidation means the upstream response did not match the
	// expected output schema. Retrying with identical input often fails
	// identically, so the default policy treats this as non-retryable.
	KindSchemaValidation ErrorKind = "schema_validation"

	// KindUpstreamUnavailable means the upstream service rejected or
	// dropped the call (connection refused, 5xx, rate limited).
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"

	// KindTimeout means the call exceeded its per-dispatch deadline.
	KindTimeout ErrorKind = "timeout"

	// KindOther is the catch-all for unclassified failures.
	KindOther ErrorKind = "other"
)

// Error is a classified processing failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Errorf builds a classified Error from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("processor: %s: %s", e.Kind, e.Message)
}

// KindOf extracts the ErrorKind from err. Deadline expiry maps to
// KindTimeout; anything unclassified maps to KindOther.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}

// Processor performs the extraction work for one chunk attempt.
//
// ref identifies the chunk content; it is owned by the collaborator that
// produced the chunks and is never copied into the queue. The returned
// string is an opaque handle to the extraction output. Failures should be
// returned as (or wrapped around) *Error so the retry policy can classify
// them; unclassified errors are treated as KindOther.
type Processor interface {
	Process(ctx context.Context, ref string, attempt int) (string, error)
}

// Func adapts a plain function to the Processor interface.
type Func func(ctx context.Context, ref string, attempt int) (string, error)

// Process calls f.
func (f Func) Process(ctx context.Context, ref string, attempt int) (string, error) {
	return f(ctx, ref, attempt)
}
