package workzone

// Metrics is the per-video metric bundle. Pointer fields are undefined
// (JSON null) when their denominator is zero or a required input is
// missing.
type Metrics struct {
	TotalFrames   int     `json:"total_frames"`
	FrameAccuracy float64 `json:"frame_accuracy"`

	TransitionsMatched  int      `json:"transitions_matched"`
	GTTransitions       int      `json:"gt_transitions"`
	PredTransitions     int      `json:"pred_transitions"`
	TransitionRecall    *float64 `json:"transition_recall"`
	TransitionPrecision *float64 `json:"transition_precision"`
	TransitionAccuracy  *float64 `json:"transition_accuracy"`

	EventRecall            *float64 `json:"event_recall"`
	EventPrecision         *float64 `json:"event_precision"`
	AdvisoryEventRecall    *float64 `json:"advisory_event_recall"`
	AdvisoryEventPrecision *float64 `json:"advisory_event_precision"`

	TimeInErrorFrames int      `json:"time_in_error_frames"`
	TimeInErrorSec    *float64 `json:"time_in_error_sec"`

	EntryTimingMAEFrames *float64 `json:"entry_timing_mae_frames"`
	EntryTimingMAESec    *float64 `json:"entry_timing_mae_sec"`

	AdvisoryStartErrorFrames *float64 `json:"advisory_start_error_frames"`
	AdvisoryStartErrorSec    *float64 `json:"advisory_start_error_sec"`
	AdvisoryTimingMAEFrames  *float64 `json:"advisory_timing_mae_frames"`
	AdvisoryTimingMAESec     *float64 `json:"advisory_timing_mae_sec"`

	FalseActivationRate       float64  `json:"false_activation_rate"`
	FalseAdvisoryRate         float64  `json:"false_advisory_rate"`
	FalseActivationsPerMinute *float64 `json:"false_activations_per_minute"`
	FalseAdvisoriesPerMinute  *float64 `json:"false_advisories_per_minute"`
	FalsePositivesPerMinute   *float64 `json:"false_positives_per_minute"`

	MeanActivationPersistenceFrames float64  `json:"mean_activation_persistence_frames"`
	MeanActivationPersistenceSec    *float64 `json:"mean_activation_persistence_sec"`

	AdvisoryCoverageRatio            *float64 `json:"advisory_coverage_ratio"`
	SimulatedSpeedViolationReduction *float64 `json:"simulated_speed_violation_reduction"`
	LateAdvisoryRate                 *float64 `json:"late_advisory_rate"`
	LeadTimeSec                      *float64 `json:"lead_time_sec"`

	IoUOutside     *float64 `json:"iou_outside"`
	IoUApproaching *float64 `json:"iou_approaching"`
	IoUInside      *float64 `json:"iou_inside"`
	IoUExiting     *float64 `json:"iou_exiting"`
	MeanIoU        *float64 `json:"mean_iou"`
	MacroPrecision *float64 `json:"macro_precision"`
	MacroRecall    *float64 `json:"macro_recall"`
	MacroF1        *float64 `json:"macro_f1"`
}

// ComputeStateMetrics scores one video. fps may be nil; a non-positive
// fps is treated as absent and leaves every time-domain metric undefined.
func ComputeStateMetrics(gt, pred StateIntervals, fps *float64, opts Options) Metrics {
	total := TotalFrames(gt, pred)
	gtLabels := ExpandLabels(gt, total)
	predLabels := ExpandLabels(pred, total)

	var rate float64
	hasFPS := fps != nil && *fps > 0
	if hasFPS {
		rate = *fps
	}
	seconds := func(frames *float64) *float64 {
		if !hasFPS {
			return nil
		}
		return scale(frames, 1/rate)
	}

	m := Metrics{TotalFrames: total}

	// Frame agreement.
	agree := 0
	for i := range gtLabels {
		if gtLabels[i] == predLabels[i] {
			agree++
		}
	}
	m.FrameAccuracy = float64(agree) / float64(total)
	m.TimeInErrorFrames = total - agree
	m.TimeInErrorSec = seconds(ptr(float64(m.TimeInErrorFrames)))

	// Transitions.
	tr := MatchTransitions(ExtractTransitions(gtLabels), ExtractTransitions(predLabels), opts.TransitionToleranceFrames)
	m.TransitionsMatched = tr.Matched
	m.GTTransitions = tr.GTCount
	m.PredTransitions = tr.PredCount
	m.TransitionRecall = tr.Recall()
	m.TransitionPrecision = tr.Precision()
	m.TransitionAccuracy = tr.Accuracy()

	// Entry-state events and advisory-active events.
	ev := MatchEvents(gt[opts.EntryState], pred[opts.EntryState], opts.MinEventOverlapFrames)
	m.EventRecall = ev.Recall()
	m.EventPrecision = ev.Precision()
	adv := MatchEvents(ActiveRuns(gtLabels, opts.OutsideState), ActiveRuns(predLabels, opts.OutsideState), opts.MinEventOverlapFrames)
	m.AdvisoryEventRecall = adv.Recall()
	m.AdvisoryEventPrecision = adv.Precision()

	// Entry timing uses the raw intervals, not the expanded labels.
	gtEntry, gtEntryOK := gt.FirstFrame(opts.EntryState)
	predEntry, predEntryOK := pred.FirstFrame(opts.EntryState)
	if gtEntryOK && predEntryOK {
		m.EntryTimingMAEFrames = ptr(float64(abs(predEntry - gtEntry)))
		m.EntryTimingMAESec = seconds(m.EntryTimingMAEFrames)
	}

	// Advisory onset.
	gtAdvisory, gtAdvisoryOK := firstNotEqual(gtLabels, opts.OutsideState)
	predAdvisory, predAdvisoryOK := firstNotEqual(predLabels, opts.OutsideState)
	if gtAdvisoryOK && predAdvisoryOK {
		delta := predAdvisory - gtAdvisory
		m.AdvisoryStartErrorFrames = ptr(float64(delta))
		m.AdvisoryStartErrorSec = seconds(m.AdvisoryStartErrorFrames)
		m.AdvisoryTimingMAEFrames = ptr(float64(abs(delta)))
		m.AdvisoryTimingMAESec = seconds(m.AdvisoryTimingMAEFrames)
	}

	// False activations, coverage and persistence.
	counts := countAdvisoryFrames(gtLabels, predLabels, opts.OutsideState)
	if r := ratio(counts.falseFrames, counts.gtOutside); r != nil {
		m.FalseActivationRate = *r
	}
	m.FalseAdvisoryRate = m.FalseActivationRate
	if hasFPS {
		minutes := float64(total) / rate / 60
		m.FalseActivationsPerMinute = ptr(float64(counts.falseRuns) / minutes)
		m.FalseAdvisoriesPerMinute = m.FalseActivationsPerMinute
		m.FalsePositivesPerMinute = m.FalseActivationsPerMinute
	}

	runs := ActiveRuns(predLabels, opts.OutsideState)
	if len(runs) > 0 {
		sum := 0
		for _, r := range runs {
			sum += r.Len()
		}
		m.MeanActivationPersistenceFrames = float64(sum) / float64(len(runs))
	}
	m.MeanActivationPersistenceSec = seconds(ptr(m.MeanActivationPersistenceFrames))

	m.AdvisoryCoverageRatio = ratio(counts.covered, counts.gtActive)
	m.SimulatedSpeedViolationReduction = scale(m.AdvisoryCoverageRatio, opts.clampedGain())

	if gtAdvisoryOK && predAdvisoryOK && counts.gtActive > 0 {
		late := float64(max(0, predAdvisory-gtAdvisory)) / float64(counts.gtActive)
		m.LateAdvisoryRate = ptr(min(1, late))
	}
	if hasFPS && gtEntryOK && predAdvisoryOK {
		m.LeadTimeSec = ptr(float64(gtEntry-predAdvisory) / rate)
	}

	// Per-state overlap and macro classification scores.
	cls := ScoreClasses(gtLabels, predLabels, CanonicalStates)
	m.IoUOutside = cls.IoU[StateOutside]
	m.IoUApproaching = cls.IoU[StateApproaching]
	m.IoUInside = cls.IoU[StateInside]
	m.IoUExiting = cls.IoU[StateExiting]
	m.MeanIoU = cls.MeanIoU
	m.MacroPrecision = cls.MacroPrecision
	m.MacroRecall = cls.MacroRecall
	m.MacroF1 = cls.MacroF1

	return m
}

type advisoryCounts struct {
	gtOutside   int // frames where GT is outside
	falseFrames int // GT outside, prediction active
	falseRuns   int // contiguous runs of falseFrames
	gtActive    int // frames where GT is not outside
	covered     int // GT active and prediction active
}

func countAdvisoryFrames(gt, pred []string, outside string) advisoryCounts {
	var c advisoryCounts
	inFalse := false
	for i := range gt {
		gtActive := gt[i] != outside
		predActive := pred[i] != outside
		isFalse := !gtActive && predActive
		if gtActive {
			c.gtActive++
			if predActive {
				c.covered++
			}
		} else {
			c.gtOutside++
		}
		if isFalse {
			c.falseFrames++
			if !inFalse {
				c.falseRuns++
			}
		}
		inFalse = isFalse
	}
	return c
}
