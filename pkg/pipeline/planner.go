package pipeline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/robochat-dev/robochat/pkg/task"
)

// Conjunctions that separate sequential sub-instructions, tried
// longest first so " and then " is not half-consumed by " and ".
var separators = []string{
	" and then ", ", then ", " then ", "; ", ", and ", " and ", ". ",
}

// Boilerplate the model tends to put in front of an actionable
// instruction when an answer is carried into the next step.
var answerPrefixes = []string{
	"the next step is to ",
	"the next step is ",
	"you should ",
	"you need to ",
	"first, ",
	"next, ",
}

// NewPlan decomposes goal into ordered steps, one per sub-instruction,
// each classified independently. A goal that does not decompose yields
// a single step, so a plan is never empty.
func NewPlan(goal string) *Plan {
	clauses := split(goal)
	plan := &Plan{
		ID:   uuid.NewString(),
		Goal: goal,
	}
	for i, clause := range clauses {
		plan.Steps = append(plan.Steps, Step{
			Index:  i + 1,
			Prompt: clause,
			Task:   task.Classify(clause),
			State:  StepPending,
		})
	}
	return plan
}

// split breaks goal into clauses at the first separator that produces
// more than one non-empty part. Separators are applied one at a time;
// each resulting clause is split again until no separator applies.
func split(goal string) []string {
	trimmed := strings.TrimSpace(goal)
	if trimmed == "" {
		return []string{goal}
	}
	for _, sep := range separators {
		lower := strings.ToLower(trimmed)
		if !strings.Contains(lower, sep) {
			continue
		}
		var clauses []string
		rest := trimmed
		for {
			idx := strings.Index(strings.ToLower(rest), sep)
			if idx < 0 {
				break
			}
			clauses = append(clauses, rest[:idx])
			rest = rest[idx+len(sep):]
		}
		clauses = append(clauses, rest)

		var out []string
		for _, c := range clauses {
			c = strings.TrimSpace(strings.TrimRight(c, ".,;"))
			if c == "" {
				continue
			}
			out = append(out, split(c)...)
		}
		if len(out) > 1 {
			return out
		}
		if len(out) == 1 {
			return out
		}
	}
	return []string{trimmed}
}

// CleanAnswer strips leading boilerplate and list markers from a model
// answer so it can be embedded in the next step's prompt.
func CleanAnswer(answer string) string {
	s := strings.TrimSpace(answer)
	for {
		lower := strings.ToLower(s)
		stripped := false
		for _, prefix := range answerPrefixes {
			if strings.HasPrefix(lower, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	for _, marker := range []string{"1. ", "- ", "* "} {
		if strings.HasPrefix(s, marker) {
			s = strings.TrimSpace(s[len(marker):])
		}
	}
	return s
}
