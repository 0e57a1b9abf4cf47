// Package workzone scores a work-zone state detector against ground truth.
//
// Ground truth and predictions are both sets of labelled, inclusive frame
// intervals. The package expands them into dense per-frame label sequences
// and derives frame, transition, event, overlap, timing and advisory
// metrics for a single video, then folds per-video bundles into summary
// statistics.
//
// Every function here is pure: inputs are never mutated and no I/O or
// logging happens, so videos can be scored concurrently without
// coordination.
package workzone

import (
	"sort"
)

// Canonical work-zone states.
const (
	StateOutside     = "outside"
	StateApproaching = "approaching"
	StateInside      = "inside"
	StateExiting     = "exiting"
)

// CanonicalStates lists the states that drive the standard metrics, in
// reporting order.
var CanonicalStates = []string{StateOutside, StateApproaching, StateInside, StateExiting}

// Interval is an inclusive [Start, End] frame range.
type Interval struct {
	Start int
	End   int
}

// NewInterval returns the interval covering a and b, swapping them if they
// arrive reversed.
func NewInterval(a, b int) Interval {
	if a > b {
		a, b = b, a
	}
	return Interval{Start: a, End: b}
}

// Len returns the number of frames covered by the interval.
func (iv Interval) Len() int {
	return iv.End - iv.Start + 1
}

// OverlapLen returns the number of frames shared by a and b, or 0 when
// they are disjoint.
func OverlapLen(a, b Interval) int {
	start := max(a.Start, b.Start)
	end := min(a.End, b.End)
	return max(0, end-start+1)
}

// StateIntervals maps a state name to the intervals during which it holds.
// State names are free-form; CanonicalStates drive the standard metrics.
type StateIntervals map[string][]Interval

// Normalize returns a copy with every interval start <= end and each
// state's list sorted ascending by start (then end).
func (s StateIntervals) Normalize() StateIntervals {
	out := make(StateIntervals, len(s))
	for state, intervals := range s {
		cleaned := make([]Interval, 0, len(intervals))
		for _, iv := range intervals {
			cleaned = append(cleaned, NewInterval(iv.Start, iv.End))
		}
		sort.Slice(cleaned, func(i, j int) bool {
			if cleaned[i].Start != cleaned[j].Start {
				return cleaned[i].Start < cleaned[j].Start
			}
			return cleaned[i].End < cleaned[j].End
		})
		out[state] = cleaned
	}
	return out
}

// MaxFrame returns the largest interval end across all states, or 0 when
// there are no intervals.
func (s StateIntervals) MaxFrame() int {
	maxEnd := 0
	for _, intervals := range s {
		for _, iv := range intervals {
			if iv.End > maxEnd {
				maxEnd = iv.End
			}
		}
	}
	return maxEnd
}

// FirstFrame returns the smallest start among the intervals of state.
func (s StateIntervals) FirstFrame(state string) (int, bool) {
	intervals := s[state]
	if len(intervals) == 0 {
		return 0, false
	}
	first := intervals[0].Start
	for _, iv := range intervals[1:] {
		if iv.Start < first {
			first = iv.Start
		}
	}
	return first, true
}

// IsEmpty reports whether no state carries a single interval.
func (s StateIntervals) IsEmpty() bool {
	for _, intervals := range s {
		if len(intervals) > 0 {
			return false
		}
	}
	return true
}

// TotalFrames is the length of the shared frame timeline for a GT and
// prediction pair. It is never less than 1.
func TotalFrames(gt, pred StateIntervals) int {
	total := max(gt.MaxFrame(), pred.MaxFrame()) + 1
	if total < 1 {
		return 1
	}
	return total
}
