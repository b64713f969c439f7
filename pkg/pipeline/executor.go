package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robochat-dev/robochat/pkg/chat"
	"github.com/robochat-dev/robochat/pkg/observability"
	"github.com/robochat-dev/robochat/pkg/task"
)

// PrevPlaceholder in a step prompt is replaced with the previous
// step's cleaned answer.
const PrevPlaceholder = "{prev}"

// Asker runs one question. *chat.Conversation satisfies it.
type Asker interface {
	Ask(ctx context.Context, text string, t task.Type) (*chat.Answer, error)
}

// RewriteFunc makes a step prompt self-contained given the previous
// step's cleaned answer. index is the step's 1-based position in the
// plan.
type RewriteFunc func(prompt string, index int, prevAnswer string) string

// Executor runs plans one step at a time, in index order. A failed
// step halts the run; steps after it never execute.
type Executor struct {
	asker       Asker
	stepTimeout time.Duration
	progress    func(Step)
	rewrite     RewriteFunc

	mu    sync.RWMutex
	steps []Step
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithStepTimeout bounds each individual step.
func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.stepTimeout = d }
}

// WithProgress registers a callback invoked with a snapshot of each
// step as it changes state. The callback runs on the executing
// goroutine and must not block.
func WithProgress(fn func(Step)) ExecutorOption {
	return func(e *Executor) { e.progress = fn }
}

// WithRewrite replaces the default prompt rewriting rule.
func WithRewrite(fn RewriteFunc) ExecutorOption {
	return func(e *Executor) { e.rewrite = fn }
}

// NewExecutor builds an Executor over the given asker.
func NewExecutor(asker Asker, opts ...ExecutorOption) *Executor {
	e := &Executor{asker: asker, rewrite: RewritePrompt}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns a snapshot of the current run's steps. Safe to call
// from other goroutines while Execute runs.
func (e *Executor) Status() []Step {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Step, len(e.steps))
	copy(out, e.steps)
	return out
}

// Execute runs the plan. The returned Result is never nil: on partial
// failure it carries every completed step alongside a *PartialError,
// and on cancellation the context error is returned with untouched
// steps left pending.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.execute")
	defer span.End()

	e.mu.Lock()
	e.steps = make([]Step, len(plan.Steps))
	copy(e.steps, plan.Steps)
	e.mu.Unlock()

	result := &Result{
		PlanID:  plan.ID,
		Goal:    plan.Goal,
		Outcome: OutcomeCompleted,
	}

	prevAnswer := ""
	var runErr error
	for i := range plan.Steps {
		stepNum := e.snapshot(i).Index
		if ctx.Err() != nil {
			result.Outcome = OutcomeCancelled
			runErr = fmt.Errorf("pipeline cancelled before step %d: %w", stepNum, ctx.Err())
			break
		}

		e.setState(i, func(s *Step) {
			s.State = StepExecuting
			s.StartedAt = time.Now().UTC()
		})

		prompt := e.rewrite(e.snapshot(i).Prompt, stepNum, prevAnswer)

		stepCtx := ctx
		if e.stepTimeout > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
			defer cancel()
		}

		ans, err := e.asker.Ask(stepCtx, prompt, e.snapshot(i).Task)
		if err != nil {
			e.setState(i, func(s *Step) {
				s.State = StepFailed
				s.Err = err.Error()
				s.FinishedAt = time.Now().UTC()
			})
			observability.RecordPipelineStep(e.snapshot(i).Task.String(), string(StepFailed))
			if ctx.Err() != nil {
				result.Outcome = OutcomeCancelled
				runErr = fmt.Errorf("pipeline cancelled at step %d: %w", stepNum, ctx.Err())
			} else {
				result.Outcome = OutcomePartial
				result.FailedStep = stepNum
				runErr = &PartialError{FailedStep: stepNum, Err: err}
			}
			break
		}

		e.setState(i, func(s *Step) {
			s.State = StepCompleted
			s.Answer = ans.Text
			s.Parsed = ans.Parsed
			s.FinishedAt = time.Now().UTC()
		})
		observability.RecordPipelineStep(e.snapshot(i).Task.String(), string(StepCompleted))
		prevAnswer = CleanAnswer(ans.Text)
	}

	result.Steps = e.Status()
	observability.RecordPipelineRun(string(result.Outcome))
	return result, runErr
}

// RewritePrompt is the default RewriteFunc. An explicit placeholder
// is substituted; otherwise the previous answer is appended as context
// so later steps see what earlier ones decided.
func RewritePrompt(prompt string, index int, prevAnswer string) string {
	if strings.Contains(prompt, PrevPlaceholder) {
		return strings.ReplaceAll(prompt, PrevPlaceholder, prevAnswer)
	}
	if index <= 1 || prevAnswer == "" {
		return prompt
	}
	return fmt.Sprintf("%s\n\nContext from previous step: %s", prompt, prevAnswer)
}

func (e *Executor) setState(i int, mutate func(*Step)) {
	e.mu.Lock()
	mutate(&e.steps[i])
	snap := e.steps[i]
	e.mu.Unlock()
	if e.progress != nil {
		e.progress(snap)
	}
}

func (e *Executor) snapshot(i int) Step {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.steps[i]
}
