package workzone

import (
	"encoding/json"
)

// Field is one named numeric value of a per-video bundle. Spread fields
// also get a population standard deviation in the summary.
type Field struct {
	Name   string
	Value  *float64
	Spread bool
}

// FieldSource is anything that can be folded into a Summary.
type FieldSource interface {
	Fields() []Field
}

// Fields lists the numeric metrics that are aggregated across videos.
func (m Metrics) Fields() []Field {
	return []Field{
		{Name: "total_frames", Value: ptr(float64(m.TotalFrames))},
		{Name: "frame_accuracy", Value: ptr(m.FrameAccuracy)},
		{Name: "transitions_matched", Value: ptr(float64(m.TransitionsMatched))},
		{Name: "gt_transitions", Value: ptr(float64(m.GTTransitions))},
		{Name: "pred_transitions", Value: ptr(float64(m.PredTransitions))},
		{Name: "transition_recall", Value: m.TransitionRecall},
		{Name: "transition_precision", Value: m.TransitionPrecision},
		{Name: "transition_accuracy", Value: m.TransitionAccuracy},
		{Name: "event_recall", Value: m.EventRecall},
		{Name: "event_precision", Value: m.EventPrecision},
		{Name: "advisory_event_recall", Value: m.AdvisoryEventRecall},
		{Name: "advisory_event_precision", Value: m.AdvisoryEventPrecision},
		{Name: "time_in_error_frames", Value: ptr(float64(m.TimeInErrorFrames))},
		{Name: "time_in_error_sec", Value: m.TimeInErrorSec},
		{Name: "entry_timing_mae_frames", Value: m.EntryTimingMAEFrames},
		{Name: "entry_timing_mae_sec", Value: m.EntryTimingMAESec},
		{Name: "advisory_timing_mae_frames", Value: m.AdvisoryTimingMAEFrames},
		{Name: "advisory_timing_mae_sec", Value: m.AdvisoryTimingMAESec},
		{Name: "advisory_start_error_frames", Value: m.AdvisoryStartErrorFrames, Spread: true},
		{Name: "advisory_start_error_sec", Value: m.AdvisoryStartErrorSec, Spread: true},
		{Name: "false_activation_rate", Value: ptr(m.FalseActivationRate)},
		{Name: "false_advisory_rate", Value: ptr(m.FalseAdvisoryRate)},
		{Name: "mean_activation_persistence_frames", Value: ptr(m.MeanActivationPersistenceFrames)},
		{Name: "mean_activation_persistence_sec", Value: m.MeanActivationPersistenceSec},
		{Name: "false_activations_per_minute", Value: m.FalseActivationsPerMinute},
		{Name: "false_advisories_per_minute", Value: m.FalseAdvisoriesPerMinute},
		{Name: "false_positives_per_minute", Value: m.FalsePositivesPerMinute},
		{Name: "simulated_speed_violation_reduction", Value: m.SimulatedSpeedViolationReduction},
		{Name: "lead_time_sec", Value: m.LeadTimeSec, Spread: true},
		{Name: "late_advisory_rate", Value: m.LateAdvisoryRate},
		{Name: "advisory_coverage_ratio", Value: m.AdvisoryCoverageRatio},
		{Name: "iou_outside", Value: m.IoUOutside},
		{Name: "iou_approaching", Value: m.IoUApproaching},
		{Name: "iou_inside", Value: m.IoUInside},
		{Name: "iou_exiting", Value: m.IoUExiting},
		{Name: "mean_iou", Value: m.MeanIoU},
		{Name: "macro_precision", Value: m.MacroPrecision},
		{Name: "macro_recall", Value: m.MacroRecall},
		{Name: "macro_f1", Value: m.MacroF1},
	}
}

// Summary holds cross-video statistics keyed "<field>_mean" and
// "<field>_std". Undefined statistics are nil.
type Summary struct {
	Stats           map[string]*float64
	VideosEvaluated int
	VideosTotal     int
}

// MarshalJSON flattens the summary into a single object.
func (s Summary) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Stats)+2)
	for k, v := range s.Stats {
		out[k] = v
	}
	out["videos_evaluated"] = s.VideosEvaluated
	out["videos_total"] = s.VideosTotal
	return json.Marshal(out)
}

// Mean returns the "<field>_mean" statistic.
func (s Summary) Mean(field string) *float64 {
	return s.Stats[field+"_mean"]
}

// Std returns the "<field>_std" statistic.
func (s Summary) Std(field string) *float64 {
	return s.Stats[field+"_std"]
}

// Summarise folds successfully scored videos into summary statistics.
// total counts every video in the batch, including those that failed
// evaluation and are therefore absent from scored. Every field named by
// template gets a statistic even when no video was scored, so an all-error
// batch still reports each key as undefined. template may be nil. Mean and
// standard deviation are commutative, so the order of scored does not
// matter.
func Summarise(template FieldSource, scored []FieldSource, total int) Summary {
	samples := make(map[string][]*float64)
	spread := make(map[string]bool)
	var order []string
	add := func(f Field) {
		if _, seen := samples[f.Name]; !seen {
			order = append(order, f.Name)
			samples[f.Name] = nil
		}
		spread[f.Name] = spread[f.Name] || f.Spread
	}
	if template != nil {
		for _, f := range template.Fields() {
			add(f)
		}
	}
	for _, src := range scored {
		for _, f := range src.Fields() {
			add(f)
			samples[f.Name] = append(samples[f.Name], f.Value)
		}
	}

	stats := make(map[string]*float64, 2*len(order))
	for _, name := range order {
		stats[name+"_mean"] = MeanDefined(samples[name])
		if spread[name] {
			stats[name+"_std"] = PopStdDevDefined(samples[name])
		}
	}
	return Summary{Stats: stats, VideosEvaluated: len(scored), VideosTotal: total}
}
