package providers

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// FailureKind classifies an adapter fetch failure for the aggregator.
type FailureKind int

const (
	// FailureTransient covers HTTP 5xx, 429 and network errors. Retried
	// with backoff inside the cycle; after budget exhaustion the provider's
	// entries age into staleness.
	FailureTransient FailureKind = iota
	// FailureAuth covers 401/403. Non-retryable; the adapter is quarantined
	// until its credentials change.
	FailureAuth
	// FailureParse covers unexpected response shapes. The adapter emits
	// zero points for the cycle; not retried within the cycle.
	FailureParse
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth"
	case FailureParse:
		return "parse"
	default:
		return "transient"
	}
}

// FetchError wraps an adapter failure with its classification.
type FetchError struct {
	Kind  FailureKind
	cause error
}

func (e *FetchError) Error() string {
	return "adapter fetch (" + e.Kind.String() + "): " + e.cause.Error()
}

func (e *FetchError) Unwrap() error { return e.cause }

func wrapCause(err error, msg string) error {
	if err == nil {
		return errors.New(msg)
	}
	return errors.Wrap(err, msg)
}

// Transient marks err as retryable within the cycle.
func Transient(err error, msg string) error {
	return &FetchError{Kind: FailureTransient, cause: wrapCause(err, msg)}
}

// Transientf creates a retryable failure.
func Transientf(format string, args ...interface{}) error {
	return &FetchError{Kind: FailureTransient, cause: errors.Errorf(format, args...)}
}

// AuthFailed marks err as an authentication failure.
func AuthFailed(err error, msg string) error {
	return &FetchError{Kind: FailureAuth, cause: wrapCause(err, msg)}
}

// AuthFailedf creates an authentication failure.
func AuthFailedf(format string, args ...interface{}) error {
	return &FetchError{Kind: FailureAuth, cause: errors.Errorf(format, args...)}
}

// ParseError marks err as a schema failure.
func ParseError(err error, msg string) error {
	return &FetchError{Kind: FailureParse, cause: wrapCause(err, msg)}
}

// KindOf classifies an error chain. Unclassified errors count as transient.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if stderrors.As(err, &fe) {
		return fe.Kind
	}
	return FailureTransient
}
