// Package txretry executes units of database work under the client-side
// retry loop that serializable, optimistic-concurrency stores require.
// A unit of work runs inside a fresh transaction each attempt; conflicts
// detected at commit time are absorbed and the work is replayed, up to a
// bounded budget, with exponential backoff between attempts.
//
// The executor only retries errors its classifier positively recognizes as
// transient. Constraint violations, cancellation, and anything unknown are
// surfaced immediately: replaying a unit of work whose failure is not
// understood risks double-applying side effects.
package txretry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Budget bounds one Run call. Zero-value fields fall back to defaults.
type Budget struct {
	MaxAttempts int
	MaxElapsed  time.Duration // 0 = no elapsed cap
	Backoff     BackoffPolicy // nil = DefaultBackoff
}

// DefaultBudget paces transaction restarts the way CockroachDB's own client
// does: a handful of attempts, 50ms doubling to 2s between them.
var DefaultBudget = Budget{
	MaxAttempts: 5,
	Backoff:     DefaultBackoff,
}

// UnitOfWork is the caller's operation, executed once per attempt inside the
// scope's transaction. It must tolerate re-execution: every attempt sees a
// fresh transaction, and only the committed attempt's effects survive. Side
// effects outside the transaction must be deferred until Run returns.
type UnitOfWork func(ctx context.Context, scope TransactionScope) error

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier replaces the error classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) { e.classifier = c }
}

// WithObserver registers a callback invoked once per attempt with its record.
// The callback runs on the Run goroutine and must be cheap.
func WithObserver(fn func(AttemptRecord)) Option {
	return func(e *Executor) { e.observer = fn }
}

// Executor drives the begin → work → commit loop. It holds no mutable state
// across calls, so a single instance is safe for concurrent Run calls over
// independent transactions.
type Executor struct {
	factory    ScopeFactory
	budget     Budget
	classifier Classifier
	observer   func(AttemptRecord)
}

// New builds an executor around a scope factory and a default budget.
func New(factory ScopeFactory, budget Budget, opts ...Option) *Executor {
	e := &Executor{
		factory:    factory,
		budget:     budget,
		classifier: DefaultClassifier{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes work under the executor's default budget.
func (e *Executor) Run(ctx context.Context, work UnitOfWork) error {
	return e.RunBudget(ctx, e.budget, work)
}

// RunBudget executes work with a per-call budget. It returns nil once a
// single attempt commits; otherwise a *FatalError, *ExhaustedError, or
// *CancelledError describing the final attempt.
func (e *Executor) RunBudget(ctx context.Context, budget Budget, work UnitOfWork) error {
	if budget.MaxAttempts < 1 {
		budget.MaxAttempts = 1
	}
	backoff := budget.Backoff
	if backoff == nil {
		backoff = DefaultBackoff
	}

	scope, err := e.factory.NewScope(ctx)
	if err != nil {
		return fmt.Errorf("open transaction scope: %w", err)
	}

	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	// open is true when a successful Restart carried the transaction over
	// to the next attempt, so Begin must be skipped.
	open := false
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			e.rollback(ctx, scope)
			runsTotal.WithLabelValues("cancelled").Inc()
			return &CancelledError{Attempts: attempt - 1, Cause: ctx.Err()}
		}

		rec := AttemptRecord{Attempt: attempt, StartedAt: time.Now()}
		err := e.attempt(ctx, scope, work, open)
		open = false
		if err == nil {
			rec.Outcome = OutcomeCommitted
			e.observe(rec)
			attemptsTotal.WithLabelValues(string(OutcomeCommitted)).Inc()
			runsTotal.WithLabelValues("committed").Inc()
			return nil
		}

		cls := e.classifier.Classify(err)
		if cls == nil {
			cls = NewClassifiedError(KindUnknown, false, err)
		}
		rec.Err = cls

		// Cancellation is never swallowed as a retryable condition, no
		// matter how the storage layer dressed it up.
		if ctx.Err() != nil {
			rec.Outcome = OutcomeFatal
			e.observe(rec)
			attemptsTotal.WithLabelValues(string(OutcomeFatal)).Inc()
			e.rollback(ctx, scope)
			runsTotal.WithLabelValues("cancelled").Inc()
			return &CancelledError{Attempts: attempt, Cause: ctx.Err()}
		}

		if !cls.Retryable {
			rec.Outcome = OutcomeFatal
			e.observe(rec)
			attemptsTotal.WithLabelValues(string(OutcomeFatal)).Inc()
			e.rollback(ctx, scope)
			runsTotal.WithLabelValues("fatal").Inc()
			return &FatalError{Attempt: attempt, Elapsed: time.Since(start), Cause: cls}
		}

		rec.Outcome = OutcomeRetryable
		e.observe(rec)
		attemptsTotal.WithLabelValues(string(OutcomeRetryable)).Inc()

		elapsed := time.Since(start)
		if attempt >= budget.MaxAttempts ||
			(budget.MaxElapsed > 0 && elapsed >= budget.MaxElapsed) {
			e.rollback(ctx, scope)
			runsTotal.WithLabelValues("exhausted").Inc()
			return &ExhaustedError{Attempts: attempt, Elapsed: elapsed, Last: cls}
		}

		retriesTotal.WithLabelValues(string(cls.Kind)).Inc()

		// Prefer the checkpoint restart; fall back to a full rollback so
		// the next attempt begins from scratch.
		if r, ok := scope.(Restartable); ok {
			if rerr := r.Restart(ctx); rerr == nil {
				open = true
			} else {
				slog.Debug("scope restart failed, falling back to rollback", "error", rerr)
				e.rollback(ctx, scope)
			}
		} else {
			e.rollback(ctx, scope)
		}

		delay := backoff.Delay(attempt)
		backoffSeconds.Observe(delay.Seconds())
		slog.Debug("retrying transaction",
			"attempt", attempt, "kind", cls.Kind, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.rollback(ctx, scope)
			runsTotal.WithLabelValues("cancelled").Inc()
			return &CancelledError{Attempts: attempt, Cause: ctx.Err()}
		case <-timer.C:
		}
	}
}

// attempt runs one begin → work → commit cycle. When open is true the
// transaction survived the previous attempt via Restart and Begin is skipped.
func (e *Executor) attempt(ctx context.Context, scope TransactionScope, work UnitOfWork, open bool) error {
	if !open {
		if err := scope.Begin(ctx); err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
	}
	if err := work(ctx, scope); err != nil {
		return err
	}
	if err := scope.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rollback abandons whatever transaction may be open. It runs detached from
// the caller's cancellation so a cancelled run still releases its session.
func (e *Executor) rollback(ctx context.Context, scope TransactionScope) {
	if err := scope.Rollback(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("transaction rollback failed", "error", err)
	}
}

func (e *Executor) observe(rec AttemptRecord) {
	if e.observer != nil {
		e.observer(rec)
	}
}

// Run executes a unit of work that produces a value. Only the committed
// attempt's value is returned; failed attempts' values are discarded along
// with their transactions.
func Run[T any](ctx context.Context, e *Executor, work func(ctx context.Context, scope TransactionScope) (T, error)) (T, error) {
	var out T
	err := e.Run(ctx, func(ctx context.Context, scope TransactionScope) error {
		v, err := work(ctx, scope)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
