package workzone

// ClassScores holds frame-level overlap and one-vs-rest classification
// scores over a fixed set of states.
type ClassScores struct {
	IoU            map[string]*float64
	MeanIoU        *float64
	MacroPrecision *float64
	MacroRecall    *float64
	MacroF1        *float64
}

// ScoreClasses compares two aligned label sequences. For every state it
// computes IoU and one-vs-rest precision, recall and F1. Macro averages
// only include states whose value is defined.
func ScoreClasses(gt, pred []string, states []string) ClassScores {
	n := min(len(gt), len(pred))
	scores := ClassScores{IoU: make(map[string]*float64, len(states))}

	var ious, precisions, recalls, f1s []*float64
	for _, state := range states {
		var tp, fp, fn int
		for i := 0; i < n; i++ {
			g := gt[i] == state
			p := pred[i] == state
			switch {
			case g && p:
				tp++
			case p:
				fp++
			case g:
				fn++
			}
		}

		iou := ratio(tp, tp+fp+fn)
		scores.IoU[state] = iou
		ious = append(ious, iou)

		precision := ratio(tp, tp+fp)
		recall := ratio(tp, tp+fn)
		precisions = append(precisions, precision)
		recalls = append(recalls, recall)
		f1s = append(f1s, harmonic(precision, recall))
	}

	scores.MeanIoU = MeanDefined(ious)
	scores.MacroPrecision = MeanDefined(precisions)
	scores.MacroRecall = MeanDefined(recalls)
	scores.MacroF1 = MeanDefined(f1s)
	return scores
}

// harmonic is the F1 of p and r, undefined unless both are defined and
// their sum is positive.
func harmonic(p, r *float64) *float64 {
	if p == nil || r == nil || *p+*r <= 0 {
		return nil
	}
	return ptr(2 * *p * *r / (*p + *r))
}
