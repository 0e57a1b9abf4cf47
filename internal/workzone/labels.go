package workzone

// expansionOrder is the order in which states are painted onto the label
// sequence. Later states overwrite earlier ones, so on overlapping
// intervals the effective precedence is outside > approaching > exiting >
// inside. Overlap across states is legal input and is resolved only by
// this order, never by interval start time.
var expansionOrder = []string{StateInside, StateExiting, StateApproaching, StateOutside}

// ExpandLabels turns sparse per-state intervals into a dense sequence of
// totalFrames labels. Uncovered frames are labelled outside and intervals
// are clamped to [0, totalFrames-1]. Non-canonical states are ignored.
func ExpandLabels(states StateIntervals, totalFrames int) []string {
	if totalFrames < 1 {
		totalFrames = 1
	}
	labels := make([]string, totalFrames)
	for i := range labels {
		labels[i] = StateOutside
	}
	for _, state := range expansionOrder {
		for _, iv := range states[state] {
			start := max(0, iv.Start)
			end := min(totalFrames-1, iv.End)
			for i := start; i <= end; i++ {
				labels[i] = state
			}
		}
	}
	return labels
}

// IntervalsFromLabels compresses a label sequence back into contiguous
// per-state intervals.
func IntervalsFromLabels(labels []string) StateIntervals {
	out := StateIntervals{}
	if len(labels) == 0 {
		return out
	}
	start := 0
	current := labels[0]
	for i := 1; i < len(labels); i++ {
		if labels[i] != current {
			out[current] = append(out[current], Interval{Start: start, End: i - 1})
			start = i
			current = labels[i]
		}
	}
	out[current] = append(out[current], Interval{Start: start, End: len(labels) - 1})
	return out
}

// ActiveRuns returns the maximal runs of frames whose label differs from
// outside, i.e. the intervals during which an advisory would be shown.
func ActiveRuns(labels []string, outside string) []Interval {
	var runs []Interval
	start := -1
	for i, label := range labels {
		switch {
		case label != outside && start < 0:
			start = i
		case label == outside && start >= 0:
			runs = append(runs, Interval{Start: start, End: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, Interval{Start: start, End: len(labels) - 1})
	}
	return runs
}

// firstNotEqual returns the first frame whose label differs from label.
func firstNotEqual(labels []string, label string) (int, bool) {
	for i, l := range labels {
		if l != label {
			return i, true
		}
	}
	return 0, false
}
