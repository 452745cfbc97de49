package txretry

import (
	"fmt"
	"time"
)

// Kind labels the failure taxonomy used for retry decisions. The string
// values double as metrics label values.
type Kind string

const (
	KindSerialization Kind = "serialization"
	KindConnection    Kind = "connection_loss"
	KindConstraint    Kind = "constraint_violation"
	KindTimeout       Kind = "timeout"
	KindUnknown       Kind = "unknown"
)

// ClassifiedError wraps a storage-layer failure with its classification.
// Storage adapters may return a *ClassifiedError directly to pre-empt the
// executor's classifier.
type ClassifiedError struct {
	Kind      Kind
	Retryable bool
	Cause     error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// NewClassifiedError builds a classified error. Unknown kinds should be
// marked non-retryable: the executor never retries what it does not
// positively recognize as transient.
func NewClassifiedError(kind Kind, retryable bool, cause error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Retryable: retryable, Cause: cause}
}

// ExhaustedError is returned when every attempt in the budget failed with a
// retryable error. It wraps the last attempt's classified error.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts in %s: %v",
		e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// FatalError wraps a non-retryable failure with the attempt metadata the
// caller needs to alert or fall back.
type FatalError struct {
	Attempt int
	Elapsed time.Duration
	Cause   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("attempt %d failed permanently after %s: %v",
		e.Attempt, e.Elapsed.Round(time.Millisecond), e.Cause)
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// CancelledError is returned when the caller's context ends the run, either
// between attempts or during a backoff sleep. It wraps the context error so
// errors.Is(err, context.Canceled) keeps working.
type CancelledError struct {
	Attempts int
	Cause    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}
