// Package pipeline decomposes a multi-part instruction into typed
// steps and executes them in order against a conversation.
package pipeline

import (
	"fmt"
	"time"

	"github.com/robochat-dev/robochat/pkg/parser"
	"github.com/robochat-dev/robochat/pkg/task"
)

// StepState is the lifecycle of one step. Transitions are monotonic:
// pending → executing → completed or failed. A step never moves
// backwards and never leaves a terminal state.
type StepState string

const (
	StepPending   StepState = "pending"
	StepExecuting StepState = "executing"
	StepCompleted StepState = "completed"
	StepFailed    StepState = "failed"
)

// Step is one unit of work in a plan. Index is 1-based and contiguous
// within the plan.
type Step struct {
	Index  int       `json:"index"`
	Prompt string    `json:"prompt"`
	Task   task.Type `json:"task"`
	State  StepState `json:"state"`
	// Answer and Parsed are set when the step completes.
	Answer string        `json:"answer,omitempty"`
	Parsed parser.Result `json:"parsed,omitempty"`
	// Err is set when the step fails.
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Plan is an ordered list of steps derived from one instruction.
type Plan struct {
	ID    string `json:"id"`
	Goal  string `json:"goal"`
	Steps []Step `json:"steps"`
}

// Outcome classifies a finished run.
type Outcome string

const (
	// OutcomeCompleted means every step completed.
	OutcomeCompleted Outcome = "completed"
	// OutcomePartial means a step failed and later steps never ran.
	OutcomePartial Outcome = "partial"
	// OutcomeCancelled means the context was cancelled; untouched
	// steps remain pending.
	OutcomeCancelled Outcome = "cancelled"
)

// Result is the terminal view of a run. Steps holds the full plan with
// final states, so partial progress survives failures.
type Result struct {
	PlanID  string  `json:"planId"`
	Goal    string  `json:"goal"`
	Outcome Outcome `json:"outcome"`
	Steps   []Step  `json:"steps"`
	// FailedStep is the 1-based index of the failed step, zero when
	// no step failed.
	FailedStep int `json:"failedStep,omitempty"`
}

// PartialError reports a run halted by a step failure. The result with
// every completed step is still returned alongside it. FailedStep is
// the step's 1-based index.
type PartialError struct {
	FailedStep int
	Err        error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("pipeline halted at step %d: %v", e.FailedStep, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }
