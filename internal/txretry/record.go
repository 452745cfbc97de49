package txretry

import "time"

// AttemptOutcome is the terminal state of a single attempt.
type AttemptOutcome string

const (
	OutcomeCommitted AttemptOutcome = "committed"
	OutcomeRetryable AttemptOutcome = "retryable"
	OutcomeFatal     AttemptOutcome = "fatal"
)

// AttemptRecord describes one execution of the unit of work. Records exist
// only for the duration of a Run call; attempt numbers start at 1 and are
// gap-free within a run.
type AttemptRecord struct {
	Attempt   int
	StartedAt time.Time
	Outcome   AttemptOutcome
	Err       *ClassifiedError
}
