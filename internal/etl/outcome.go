package etl

import (
	"fmt"
	"time"
)

// Decision tells the run loop what to do after a batch step.
type Decision int

const (
	// DecisionContinue proceeds to the next batch.
	DecisionContinue Decision = iota
	// DecisionAbort stops the run; the reason is reported.
	DecisionAbort
	// DecisionRetryAfter waits once for the delay, then abandons the run.
	DecisionRetryAfter
)

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionAbort:
		return "abort"
	case DecisionRetryAfter:
		return "retry_after"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Outcome is the result of one batch step.
type Outcome struct {
	Decision Decision
	Cursor   string        // position reached, for Continue
	Reason   error         // cause, for AbortRun and RetryAfter
	Delay    time.Duration // provider suggested wait, for RetryAfter
}

// Continue proceeds with the run from cursor.
func Continue(cursor string) Outcome {
	return Outcome{Decision: DecisionContinue, Cursor: cursor}
}

// AbortRun stops the run because of reason.
func AbortRun(reason error) Outcome {
	return Outcome{Decision: DecisionAbort, Reason: reason}
}

// RetryAfter waits for delay once and then abandons the run.
func RetryAfter(delay time.Duration, reason error) Outcome {
	return Outcome{Decision: DecisionRetryAfter, Delay: delay, Reason: reason}
}
