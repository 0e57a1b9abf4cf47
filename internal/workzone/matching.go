package workzone

// Transition is a label change between two consecutive frames. Frame is
// the index of the first frame carrying To.
type Transition struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Frame int    `json:"frame"`
}

// ExtractTransitions returns every label change in order. The first frame
// never produces a transition.
func ExtractTransitions(labels []string) []Transition {
	var out []Transition
	if len(labels) == 0 {
		return out
	}
	prev := labels[0]
	for i := 1; i < len(labels); i++ {
		if labels[i] != prev {
			out = append(out, Transition{From: prev, To: labels[i], Frame: i})
			prev = labels[i]
		}
	}
	return out
}

// MatchResult counts greedy matches between a GT set and a predicted set.
// Matched never exceeds min(GTCount, PredCount).
type MatchResult struct {
	Matched   int
	GTCount   int
	PredCount int
}

// Recall is Matched/GTCount, undefined without GT items.
func (m MatchResult) Recall() *float64 {
	return ratio(m.Matched, m.GTCount)
}

// Precision is Matched/PredCount, undefined without predicted items.
func (m MatchResult) Precision() *float64 {
	return ratio(m.Matched, m.PredCount)
}

// Accuracy is Matched/max(GTCount, PredCount), undefined when both are 0.
func (m MatchResult) Accuracy() *float64 {
	return ratio(m.Matched, max(m.GTCount, m.PredCount))
}

// MatchTransitions greedily pairs GT transitions with predicted ones. For
// each GT transition in order, the first unused predicted transition with
// the same (From, To) pair and |frame delta| <= tolerance is consumed.
// The assignment is not globally optimal; the iteration order is part of
// the metric definition.
func MatchTransitions(gt, pred []Transition, tolerance int) MatchResult {
	used := make([]bool, len(pred))
	matched := 0
	for _, g := range gt {
		for i, p := range pred {
			if used[i] {
				continue
			}
			if p.From == g.From && p.To == g.To && abs(p.Frame-g.Frame) <= tolerance {
				used[i] = true
				matched++
				break
			}
		}
	}
	return MatchResult{Matched: matched, GTCount: len(gt), PredCount: len(pred)}
}

// MatchEvents greedily pairs GT intervals with predicted intervals: each GT
// interval consumes the first unused predicted interval overlapping it by
// at least minOverlap frames.
func MatchEvents(gt, pred []Interval, minOverlap int) MatchResult {
	used := make([]bool, len(pred))
	matched := 0
	for _, g := range gt {
		for i, p := range pred {
			if used[i] {
				continue
			}
			if OverlapLen(g, p) >= minOverlap {
				used[i] = true
				matched++
				break
			}
		}
	}
	return MatchResult{Matched: matched, GTCount: len(gt), PredCount: len(pred)}
}

// FirstMatchedStart returns the start of the first predicted interval that
// overlaps any GT interval by at least minOverlap frames, scanning GT
// intervals in order and predictions in order for each.
func FirstMatchedStart(gt, pred []Interval, minOverlap int) (int, bool) {
	for _, g := range gt {
		for _, p := range pred {
			if OverlapLen(g, p) >= minOverlap {
				return p.Start, true
			}
		}
	}
	return 0, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
