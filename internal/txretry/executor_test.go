package txretry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeScope is a scriptable TransactionScope. Commit returns the scripted
// errors in order, then succeeds.
type fakeScope struct {
	mu         sync.Mutex
	begins     int
	commits    int
	rollbacks  int
	commitErrs []error
}

func (s *fakeScope) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	return nil
}

func (s *fakeScope) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	if s.commits <= len(s.commitErrs) {
		return s.commitErrs[s.commits-1]
	}
	return nil
}

func (s *fakeScope) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks++
	return nil
}

// restartableScope adds the checkpoint fast path.
type restartableScope struct {
	fakeScope
	restarts   int
	restartErr error
}

func (s *restartableScope) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restartErr != nil {
		return s.restartErr
	}
	s.restarts++
	return nil
}

func factoryOf(scope TransactionScope) ScopeFactory {
	return ScopeFactoryFunc(func(ctx context.Context) (TransactionScope, error) {
		return scope, nil
	})
}

// recordingBackoff returns a fixed delay and records the attempt numbers it
// was asked about.
type recordingBackoff struct {
	mu    sync.Mutex
	delay time.Duration
	calls []int
}

func (b *recordingBackoff) Delay(attempt int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, attempt)
	return b.delay
}

// recorder collects attempt records via the executor observer.
type recorder struct {
	mu      sync.Mutex
	records []AttemptRecord
}

func (r *recorder) observe(rec AttemptRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func noopWork(ctx context.Context, scope TransactionScope) error { return nil }

// errConflict carries the message CockroachDB prepends to client-retryable
// conflicts, so the default classifier marks it serialization/retryable.
var errConflict = errors.New("restart transaction: read within uncertainty interval")

// =============================================================================
// Run behavior
// =============================================================================

func TestRunFirstAttemptSuccess(t *testing.T) {
	scope := &fakeScope{}
	backoff := &recordingBackoff{delay: time.Millisecond}
	rec := &recorder{}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 5, Backoff: backoff},
		WithObserver(rec.observe))

	if err := exec.Run(context.Background(), noopWork); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if scope.begins != 1 || scope.commits != 1 || scope.rollbacks != 0 {
		t.Errorf("scope calls = begin %d, commit %d, rollback %d; want 1, 1, 0",
			scope.begins, scope.commits, scope.rollbacks)
	}
	if len(backoff.calls) != 0 {
		t.Errorf("expected no backoff delays, got %v", backoff.calls)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != OutcomeCommitted {
		t.Errorf("expected one committed attempt record, got %+v", rec.records)
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	// Conflicts on attempts 1 and 2, success on attempt 3.
	scope := &fakeScope{commitErrs: []error{errConflict, errConflict}}
	backoff := &recordingBackoff{delay: time.Millisecond}
	rec := &recorder{}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 3, Backoff: backoff},
		WithObserver(rec.observe))

	if err := exec.Run(context.Background(), noopWork); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if scope.commits != 3 {
		t.Errorf("expected 3 commit attempts, got %d", scope.commits)
	}
	if scope.begins != 3 {
		t.Errorf("expected 3 begins without restart support, got %d", scope.begins)
	}
	if len(rec.records) != 3 {
		t.Fatalf("expected 3 attempt records, got %d", len(rec.records))
	}
	for i, r := range rec.records {
		if r.Attempt != i+1 {
			t.Errorf("record %d has attempt number %d, want %d", i, r.Attempt, i+1)
		}
	}
	if rec.records[0].Outcome != OutcomeRetryable ||
		rec.records[1].Outcome != OutcomeRetryable ||
		rec.records[2].Outcome != OutcomeCommitted {
		t.Errorf("unexpected outcomes: %+v", rec.records)
	}
	if len(backoff.calls) != 2 || backoff.calls[0] != 1 || backoff.calls[1] != 2 {
		t.Errorf("backoff calls = %v, want [1 2]", backoff.calls)
	}
}

func TestRunExhaustsBudget(t *testing.T) {
	scope := &fakeScope{commitErrs: []error{errConflict, errConflict, errConflict, errConflict}}
	backoff := &recordingBackoff{delay: time.Millisecond}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 3, Backoff: backoff})

	err := exec.Run(context.Background(), noopWork)
	if err == nil {
		t.Fatal("expected error after exhausting budget")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("exhausted.Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, errConflict) {
		t.Error("expected the last conflict to be wrapped")
	}
	if scope.commits != 3 {
		t.Errorf("expected exactly 3 commit attempts, got %d", scope.commits)
	}
	if len(backoff.calls) != 2 {
		t.Errorf("expected 2 backoff delays, got %v", backoff.calls)
	}
}

func TestRunMaxElapsedStopsRetrying(t *testing.T) {
	scope := &fakeScope{commitErrs: []error{errConflict, errConflict, errConflict}}
	exec := New(factoryOf(scope), Budget{
		MaxAttempts: 100,
		MaxElapsed:  time.Nanosecond,
		Backoff:     &recordingBackoff{delay: time.Millisecond},
	})

	err := exec.Run(context.Background(), noopWork)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 1 {
		t.Errorf("exhausted.Attempts = %d, want 1", exhausted.Attempts)
	}
}

func TestRunFatalStopsImmediately(t *testing.T) {
	scope := &fakeScope{}
	backoff := &recordingBackoff{delay: time.Millisecond}
	rec := &recorder{}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 5, Backoff: backoff},
		WithObserver(rec.observe))

	errDup := NewClassifiedError(KindConstraint, false, errors.New("duplicate key value"))
	err := exec.Run(context.Background(), func(ctx context.Context, scope TransactionScope) error {
		return errDup
	})

	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *FatalError, got %T: %v", err, err)
	}
	if fatal.Attempt != 1 {
		t.Errorf("fatal.Attempt = %d, want 1", fatal.Attempt)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != OutcomeFatal {
		t.Errorf("expected one fatal attempt record, got %+v", rec.records)
	}
	if len(backoff.calls) != 0 {
		t.Errorf("expected no backoff delays, got %v", backoff.calls)
	}
	if scope.rollbacks == 0 {
		t.Error("expected the scope to be rolled back")
	}
	if scope.commits != 0 {
		t.Errorf("expected no commit after failed work, got %d", scope.commits)
	}
}

func TestRunUnknownErrorNotRetried(t *testing.T) {
	scope := &fakeScope{commitErrs: []error{errors.New("splines unreticulated")}}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 5})

	err := exec.Run(context.Background(), noopWork)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *FatalError for unknown error, got %T: %v", err, err)
	}
	var cls *ClassifiedError
	if !errors.As(err, &cls) || cls.Kind != KindUnknown {
		t.Errorf("expected unknown classification, got %v", err)
	}
	if scope.commits != 1 {
		t.Errorf("expected a single attempt, got %d commits", scope.commits)
	}
}

func TestRunCancelDuringBackoff(t *testing.T) {
	scope := &fakeScope{commitErrs: []error{errConflict}}
	backoff := &recordingBackoff{delay: 10 * time.Second}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 5, Backoff: backoff})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := exec.Run(ctx, noopWork)
	if time.Since(start) > 5*time.Second {
		t.Fatal("Run did not abort the backoff sleep on cancellation")
	}

	var cancelled *CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("expected *CancelledError, got %T: %v", err, err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected errors.Is(err, context.Canceled)")
	}
	if cancelled.Attempts != 1 {
		t.Errorf("cancelled.Attempts = %d, want 1", cancelled.Attempts)
	}
	if scope.begins != 1 {
		t.Errorf("expected no attempt after cancellation, got %d begins", scope.begins)
	}
}

func TestRunPreCancelledContext(t *testing.T) {
	scope := &fakeScope{}
	exec := New(factoryOf(scope), DefaultBudget)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Run(ctx, noopWork)
	var cancelled *CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("expected *CancelledError, got %T: %v", err, err)
	}
	if scope.begins != 0 {
		t.Errorf("expected no attempt on a dead context, got %d begins", scope.begins)
	}
}

func TestRunCancellationNeverRetried(t *testing.T) {
	// The work observes cancellation mid-flight and reports it; the
	// executor must surface it instead of scheduling a retry.
	scope := &fakeScope{}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 5, Backoff: &recordingBackoff{}})

	ctx, cancel := context.WithCancel(context.Background())
	err := exec.Run(ctx, func(ctx context.Context, scope TransactionScope) error {
		cancel()
		return ctx.Err()
	})

	var cancelled *CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("expected *CancelledError, got %T: %v", err, err)
	}
	if scope.begins != 1 {
		t.Errorf("expected exactly one attempt, got %d begins", scope.begins)
	}
}

// =============================================================================
// Restart fast path
// =============================================================================

func TestRunRestartFastPath(t *testing.T) {
	scope := &restartableScope{fakeScope: fakeScope{commitErrs: []error{errConflict, errConflict}}}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 5, Backoff: &recordingBackoff{delay: time.Millisecond}})

	if err := exec.Run(context.Background(), noopWork); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if scope.begins != 1 {
		t.Errorf("expected a single begin with restart support, got %d", scope.begins)
	}
	if scope.restarts != 2 {
		t.Errorf("expected 2 restarts, got %d", scope.restarts)
	}
	if scope.rollbacks != 0 {
		t.Errorf("expected no rollbacks on the fast path, got %d", scope.rollbacks)
	}
}

func TestRunRestartFailureFallsBackToRollback(t *testing.T) {
	scope := &restartableScope{
		fakeScope:  fakeScope{commitErrs: []error{errConflict}},
		restartErr: errors.New("savepoint lost"),
	}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 5, Backoff: &recordingBackoff{delay: time.Millisecond}})

	if err := exec.Run(context.Background(), noopWork); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if scope.begins != 2 {
		t.Errorf("expected a fresh begin after failed restart, got %d begins", scope.begins)
	}
	if scope.rollbacks == 0 {
		t.Error("expected a rollback after failed restart")
	}
}

// =============================================================================
// Value-returning runs and shared executors
// =============================================================================

func TestRunValueReturnsCommittedValue(t *testing.T) {
	scope := &fakeScope{commitErrs: []error{errConflict}}
	exec := New(factoryOf(scope), Budget{MaxAttempts: 3, Backoff: &recordingBackoff{delay: time.Millisecond}})

	attempts := 0
	got, err := Run(context.Background(), exec, func(ctx context.Context, scope TransactionScope) (int, error) {
		attempts++
		return attempts * 10, nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// The committed attempt is the second one.
	if got != 20 {
		t.Errorf("Run returned %d, want 20", got)
	}
}

func TestRunValueZeroOnFailure(t *testing.T) {
	scope := &fakeScope{}
	exec := New(factoryOf(scope), DefaultBudget)

	got, err := Run(context.Background(), exec, func(ctx context.Context, scope TransactionScope) (string, error) {
		return "partial", errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != "" {
		t.Errorf("expected zero value on failure, got %q", got)
	}
}

func TestRunConcurrentCallers(t *testing.T) {
	exec := New(ScopeFactoryFunc(func(ctx context.Context) (TransactionScope, error) {
		return &fakeScope{commitErrs: []error{errConflict}}, nil
	}), Budget{MaxAttempts: 3, Backoff: &recordingBackoff{delay: time.Microsecond}})

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = exec.Run(context.Background(), noopWork)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("concurrent run %d failed: %v", i, err)
		}
	}
}
