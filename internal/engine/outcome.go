package engine

import "github.com/stewardhq/steward/internal/domain"

// OutcomeKind discriminates the engine result
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeSuspended OutcomeKind = "suspended"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the result of one engine invocation. Suspension is an
// ordinary return value, not an error: the loop hit a gated boundary and
// persisted a checkpoint before reporting it.
type Outcome struct {
	Kind      OutcomeKind
	Summary   string            // completed: the model's final answer
	Interrupt *domain.Interrupt // suspended
	Err       error             // failed
}

// Completed builds a completed outcome
func Completed(summary string) Outcome {
	return Outcome{Kind: OutcomeCompleted, Summary: summary}
}

// Suspended builds a suspended outcome carrying the interrupt
func Suspended(interrupt *domain.Interrupt) Outcome {
	return Outcome{Kind: OutcomeSuspended, Interrupt: interrupt}
}

// Failed builds a failed outcome
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}
