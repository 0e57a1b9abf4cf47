// Package report evaluates a batch of videos and assembles the JSON
// report: one metric bundle or error per video plus cross-video summary
// statistics.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/workzone.report/internal/ingest"
	"github.com/banshee-data/workzone.report/internal/workzone"
)

// Reason codes for videos that cannot be scored.
const (
	ReasonEmptyGroundTruth      = "empty_ground_truth"
	ReasonIncompleteGroundTruth = "incomplete_ground_truth"
	ReasonMissingPredictions    = "missing predictions or states"
)

// StartStats compares where a state first begins in GT and prediction.
// Fields are nil when the inputs they depend on are absent.
type StartStats struct {
	State string
	// GT and Pred are the smallest interval start of State.
	GT   *int
	Pred *int
	// PredMatched is the start of the first predicted interval that
	// overlaps a GT interval of State.
	PredMatched *int
}

// Delta is Pred - GT.
func (s StartStats) Delta() *int {
	return diff(s.Pred, s.GT)
}

// MatchedDelta is PredMatched - GT.
func (s StartStats) MatchedDelta() *int {
	return diff(s.PredMatched, s.GT)
}

func (s StartStats) fields() []workzone.Field {
	return []workzone.Field{
		{Name: "gt_" + s.State + "_start_frame", Value: toFloat(s.GT), Spread: true},
		{Name: "pred_" + s.State + "_start_frame", Value: toFloat(s.Pred), Spread: true},
		{Name: "pred_minus_gt_" + s.State + "_start_frame", Value: toFloat(s.Delta()), Spread: true},
		{Name: "pred_" + s.State + "_start_matched_frame", Value: toFloat(s.PredMatched), Spread: true},
		{Name: "pred_minus_gt_" + s.State + "_start_matched_frame", Value: toFloat(s.MatchedDelta()), Spread: true},
	}
}

// ComputeStartStats derives StartStats for state from the raw intervals.
func ComputeStartStats(gt, pred workzone.StateIntervals, state string, minOverlap int) StartStats {
	s := StartStats{State: state}
	if f, ok := gt.FirstFrame(state); ok {
		s.GT = &f
	}
	if f, ok := pred.FirstFrame(state); ok {
		s.Pred = &f
	}
	if f, ok := workzone.FirstMatchedStart(gt[state], pred[state], minOverlap); ok {
		s.PredMatched = &f
	}
	return s
}

// VideoResult is the outcome of one video: either an error reason or a
// metric bundle.
type VideoResult struct {
	Video   string
	Error   string
	Metrics workzone.Metrics
	FPS     *float64
	Starts  []StartStats
}

// OK reports whether the video was scored.
func (v VideoResult) OK() bool {
	return v.Error == ""
}

// Fields lists the aggregated values: the metric bundle, the frame rate
// and the start-frame statistics.
func (v VideoResult) Fields() []workzone.Field {
	fields := append(v.Metrics.Fields(), workzone.Field{Name: "fps_estimate", Value: v.FPS})
	for _, s := range v.Starts {
		fields = append(fields, s.fields()...)
	}
	return fields
}

// MarshalJSON encodes {"error": reason} for unscored videos and a flat
// metric object otherwise.
func (v VideoResult) MarshalJSON() ([]byte, error) {
	if !v.OK() {
		return json.Marshal(map[string]string{"error": v.Error})
	}

	base, err := json.Marshal(v.Metrics)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, fmt.Errorf("failed to flatten metrics for %s: %w", v.Video, err)
	}
	out["fps_estimate"] = v.FPS
	for _, s := range v.Starts {
		out["gt_"+s.State+"_start_frame"] = s.GT
		out["pred_"+s.State+"_start_frame"] = s.Pred
		out["pred_minus_gt_"+s.State+"_start_frame"] = s.Delta()
		out["pred_"+s.State+"_start_matched_frame"] = s.PredMatched
		out["pred_minus_gt_"+s.State+"_start_matched_frame"] = s.MatchedDelta()
	}
	return json.Marshal(out)
}

// checkEvaluable returns the reason a video cannot be scored, or "".
func checkEvaluable(gt ingest.GroundTruth, pred ingest.Predictions, hasPred bool, required []string) string {
	if gt.States.IsEmpty() {
		return ReasonEmptyGroundTruth
	}
	for _, state := range required {
		if len(gt.States[state]) == 0 {
			return ReasonIncompleteGroundTruth
		}
	}
	if !hasPred || pred.States == nil {
		return ReasonMissingPredictions
	}
	return ""
}

// scoreVideo evaluates one video. It never fails; unscorable videos carry
// a reason code instead.
func scoreVideo(video string, gt ingest.GroundTruth, pred ingest.Predictions, hasPred bool, opts Options) VideoResult {
	if reason := checkEvaluable(gt, pred, hasPred, opts.RequiredStates); reason != "" {
		return VideoResult{Video: video, Error: reason}
	}

	res := VideoResult{
		Video:   video,
		Metrics: workzone.ComputeStateMetrics(gt.States, pred.States, pred.FPS, opts.Scoring),
		FPS:     pred.FPS,
	}
	for _, state := range startStates(opts.Scoring.EntryState) {
		res.Starts = append(res.Starts, ComputeStartStats(gt.States, pred.States, state, opts.Scoring.MinEventOverlapFrames))
	}
	return res
}

// summaryTemplate is an unscored result carrying every aggregated field
// name, so the summary lists each statistic even when no video is scored.
func summaryTemplate(opts Options) VideoResult {
	var t VideoResult
	for _, state := range startStates(opts.Scoring.EntryState) {
		t.Starts = append(t.Starts, StartStats{State: state})
	}
	return t
}

// startStates is the entry state followed by approaching, without
// duplicates.
func startStates(entry string) []string {
	if entry == workzone.StateApproaching {
		return []string{entry}
	}
	return []string{entry, workzone.StateApproaching}
}

func diff(a, b *int) *int {
	if a == nil || b == nil {
		return nil
	}
	d := *a - *b
	return &d
}

func toFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
