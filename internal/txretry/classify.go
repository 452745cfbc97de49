package txretry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Classifier maps a storage-layer failure to a ClassifiedError. The
// classification is the correctness-critical decision: retrying an error that
// is not provably transient risks double-applying side effects, so anything
// unrecognized must come back non-retryable.
type Classifier interface {
	Classify(err error) *ClassifiedError
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) *ClassifiedError

func (f ClassifierFunc) Classify(err error) *ClassifiedError {
	return f(err)
}

// DefaultClassifier recognizes context cancellation, common transient network
// errors, and the retry hints distributed SQL engines embed in conflict
// messages. Everything else is Unknown and not retried.
type DefaultClassifier struct{}

func (DefaultClassifier) Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	// A storage adapter may have classified already.
	var cls *ClassifiedError
	if errors.As(err, &cls) {
		return cls
	}

	// The caller asked to stop; never treat as retryable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewClassifiedError(KindTimeout, false, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return NewClassifiedError(KindConnection, true, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewClassifiedError(KindConnection, true, err)
	}

	// CockroachDB prefixes client-retryable conflicts with "restart
	// transaction"; keep matching even when the SQLSTATE was lost in
	// wrapping.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "restart transaction") || strings.Contains(msg, "retry transaction") {
		return NewClassifiedError(KindSerialization, true, err)
	}

	return NewClassifiedError(KindUnknown, false, err)
}
