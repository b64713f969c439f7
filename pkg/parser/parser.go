// Package parser extracts structured geometry from raw model answers.
// Vision-language models emit coordinates in loosely formatted text, so
// every function here is tolerant: malformed input degrades to an empty
// structure, never an error.
package parser

import (
	"regexp"
	"strconv"

	"github.com/robochat-dev/robochat/pkg/task"
)

// Box is an axis-aligned bounding box in image pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Point is a 2D image coordinate. Trajectory waypoints reuse it.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result holds everything recovered from one answer. Raw is always the
// unmodified input; Boxes and Points are populated according to the
// task type the answer was produced for.
type Result struct {
	Raw    string  `json:"raw"`
	Boxes  []Box   `json:"boxes,omitempty"`
	Points []Point `json:"points,omitempty"`
}

// Empty reports whether no geometry was recovered.
func (r Result) Empty() bool { return len(r.Boxes) == 0 && len(r.Points) == 0 }

var (
	groupRe  = regexp.MustCompile(`[\[(]([^\[\]()]*)[\])]`)
	numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// Parse interprets raw under the given task type. Grounding answers
// yield boxes, pointing and trajectory answers yield points, everything
// else keeps only the raw text. Parse never fails and is idempotent:
// feeding it the same input twice produces identical results.
func Parse(raw string, t task.Type) Result {
	res := Result{Raw: raw}
	switch t {
	case task.Grounding:
		res.Boxes = Boxes(raw)
	case task.Pointing, task.Trajectory:
		res.Points = Points(raw)
	}
	return res
}

// Boxes recovers bounding boxes from raw. Any bracketed group carrying
// exactly four numbers is a box; when no group qualifies, a flat run of
// 4k numbers in the whole text is chunked into k boxes.
func Boxes(raw string) []Box {
	var boxes []Box
	for _, group := range groups(raw) {
		if len(group) == 4 {
			boxes = append(boxes, boxFrom(group))
		}
	}
	if boxes != nil {
		return boxes
	}
	all := numbers(raw)
	if len(all) == 0 || len(all)%4 != 0 {
		return nil
	}
	for i := 0; i+4 <= len(all); i += 4 {
		boxes = append(boxes, boxFrom(all[i:i+4]))
	}
	return boxes
}

// Points recovers 2D points from raw. Bracketed pairs are taken first;
// a group with an even count of four or more numbers is split into
// consecutive pairs, which handles flattened waypoint lists like
// [x1, y1, x2, y2, x3, y3].
func Points(raw string) []Point {
	var pts []Point
	for _, group := range groups(raw) {
		switch {
		case len(group) == 2:
			pts = append(pts, Point{X: group[0], Y: group[1]})
		case len(group) >= 4 && len(group)%2 == 0:
			for i := 0; i+2 <= len(group); i += 2 {
				pts = append(pts, Point{X: group[i], Y: group[i+1]})
			}
		}
	}
	if pts != nil {
		return pts
	}
	all := numbers(raw)
	if len(all) < 2 || len(all)%2 != 0 {
		return nil
	}
	for i := 0; i+2 <= len(all); i += 2 {
		pts = append(pts, Point{X: all[i], Y: all[i+1]})
	}
	return pts
}

func boxFrom(n []float64) Box {
	b := Box{X1: n[0], Y1: n[1], X2: n[2], Y2: n[3]}
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// groups returns the numbers inside each innermost bracketed or
// parenthesized span, in order of appearance. Spans without numbers are
// dropped.
func groups(raw string) [][]float64 {
	var out [][]float64
	for _, m := range groupRe.FindAllStringSubmatch(raw, -1) {
		if n := numbers(m[1]); len(n) > 0 {
			out = append(out, n)
		}
	}
	return out
}

func numbers(s string) []float64 {
	var out []float64
	for _, m := range numberRe.FindAllString(s, -1) {
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}
