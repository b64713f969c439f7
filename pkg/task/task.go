// Package task defines the vision-language task taxonomy and the
// keyword classifier that routes free-form instructions to a task type.
package task

import (
	"fmt"
	"strings"
)

// Type identifies how an instruction should be prompted and how the
// model answer should be interpreted.
type Type string

const (
	// General is plain conversational question answering.
	General Type = "general"
	// Grounding asks for bounding boxes of a described region.
	Grounding Type = "grounding"
	// Affordance asks where an object can be grasped or manipulated.
	Affordance Type = "affordance"
	// Trajectory asks for an ordered sequence of waypoints.
	Trajectory Type = "trajectory"
	// Pointing asks for one or more 2D points.
	Pointing Type = "pointing"
	// Auto defers to the classifier at ask time. It is an input
	// selector only and never appears on a stored turn.
	Auto Type = "auto"
)

// Types lists every concrete task type, in classifier priority order.
var Types = []Type{Grounding, Affordance, Trajectory, Pointing, General}

// Valid reports whether t is a concrete task type.
func (t Type) Valid() bool {
	switch t {
	case General, Grounding, Affordance, Trajectory, Pointing:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// Parse converts a user-supplied string into a Type. Auto is accepted.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t == Auto || t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Cue phrases are matched against the lowercased instruction. The first
// matching bucket wins; buckets are checked in the order of Types, so a
// grounding cue always beats an affordance cue and so on. Matching is
// substring-based on whole phrases, which keeps the classifier total and
// deterministic.
var cues = map[Type][]string{
	Grounding: {
		"where is", "where are", "locate", "bounding box", "bbox",
		"find the", "detect", "which region", "outline",
	},
	Affordance: {
		"grab", "grasp", "pick up", "hold the", "handle",
		"affordance", "manipulate", "how do i open", "lift",
	},
	Trajectory: {
		"trajectory", "path", "route", "waypoint", "navigate",
		"move it", "move the", "move to", "plan a", "reach the",
		"to the",
	},
	Pointing: {
		"point", "touch", "tap", "press", "click", "poke",
		"where should i", "indicate",
	},
}

// Classify maps an instruction to a concrete task type. It is pure and
// total: every input yields exactly one type, and the same input always
// yields the same type. Unmatched instructions fall through to General.
func Classify(text string) Type {
	lower := strings.ToLower(text)
	for _, t := range Types {
		for _, cue := range cues[t] {
			if strings.Contains(lower, cue) {
				return t
			}
		}
	}
	return General
}

// Resolve turns Auto into a classified type and passes concrete types
// through unchanged. Invalid types also resolve through the classifier
// so callers never receive a type the rest of the system cannot handle.
func Resolve(t Type, text string) Type {
	if t.Valid() {
		return t
	}
	return Classify(text)
}

// Instruction templates mirror the prompts the model family was trained
// on. The instruction embeds the user query so each prompt is
// self-contained.
var instructions = map[Type]string{
	Grounding:  "%s. Please provide the bounding box coordinates of the region this describes.",
	Affordance: "%s. Please predict a possible affordance area of the object.",
	Trajectory: "%s. Please predict up to 10 key trajectory points to complete the task.",
	Pointing:   "%s. Please point out the target by its 2D coordinates.",
}

// Instruction renders the backend prompt for a query under task type t.
// General queries pass through untouched.
func Instruction(t Type, query string) string {
	tmpl, ok := instructions[t]
	if !ok {
		return query
	}
	return fmt.Sprintf(tmpl, strings.TrimRight(strings.TrimSpace(query), "."))
}
