package domain

// RunStatus represents the execution state of a pipeline run
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// OutcomeStatus represents the verdict for a single stage
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome is the explicit verdict for one stage invocation.
// Silence is never success: a log with no recognized marker produces a
// failure with Indeterminate set, so an operator knows the verifier could
// not decide rather than the stage having passed.
type Outcome struct {
	Status OutcomeStatus
	Reason string

	// Indeterminate is set when no decisive marker was found, or when the
	// process exit status and the log markers disagree.
	Indeterminate bool
}

// Success returns a success outcome
func Success(reason string) Outcome {
	return Outcome{Status: OutcomeSuccess, Reason: reason}
}

// Failure returns a failure outcome with the recognized reason
func Failure(reason string) Outcome {
	return Outcome{Status: OutcomeFailure, Reason: reason}
}

// Indeterminate returns a failure outcome flagged as indeterminate
func Indeterminate(reason string) Outcome {
	return Outcome{Status: OutcomeFailure, Reason: reason, Indeterminate: true}
}

// Skipped returns a skipped outcome (precondition excluded the stage)
func Skipped(reason string) Outcome {
	return Outcome{Status: OutcomeSkipped, Reason: reason}
}

// OK reports whether the pipeline may proceed past this outcome
func (o Outcome) OK() bool {
	return o.Status == OutcomeSuccess || o.Status == OutcomeSkipped
}
