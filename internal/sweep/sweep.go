package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/banshee-data/workzone.report/internal/ingest"
	"github.com/banshee-data/workzone.report/internal/monitoring"
	"github.com/banshee-data/workzone.report/internal/report"
	"github.com/banshee-data/workzone.report/internal/workzone"
)

// DefaultTolerances are the transition tolerances swept when none are given.
var DefaultTolerances = []int{0, 5, 10, 15, 30, 60}

// DefaultChartFields are the summary means plotted against tolerance.
var DefaultChartFields = []string{"transition_recall", "transition_precision", "transition_accuracy"}

// Point is the batch summary at one tolerance.
type Point struct {
	ToleranceFrames int
	Summary         workzone.Summary
}

// Result holds one Point per tolerance in ascending order.
type Result struct {
	Points []Point
}

// MarshalJSON encodes {"<tolerance>": summary, ...}.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]workzone.Summary, len(r.Points))
	for _, p := range r.Points {
		out[strconv.Itoa(p.ToleranceFrames)] = p.Summary
	}
	return json.Marshal(out)
}

// Series returns the mean of field at each tolerance. Undefined means are
// nil.
func (r *Result) Series(field string) []*float64 {
	out := make([]*float64, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.Summary.Mean(field)
	}
	return out
}

// Tolerances returns the swept tolerances in order.
func (r *Result) Tolerances() []int {
	out := make([]int, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.ToleranceFrames
	}
	return out
}

// Run evaluates the batch once per tolerance. Duplicate tolerances are
// evaluated once. All other options are taken from base.
func Run(ctx context.Context, gt map[string]ingest.GroundTruth, preds map[string]ingest.Predictions, base report.Options, tolerances []int) (*Result, error) {
	if len(tolerances) == 0 {
		tolerances = DefaultTolerances
	}
	res := &Result{}
	for _, tol := range uniqueSorted(tolerances) {
		opts := base
		opts.Scoring.TransitionToleranceFrames = tol
		r, err := report.Evaluate(ctx, gt, preds, opts)
		if err != nil {
			return nil, fmt.Errorf("tolerance %d: %w", tol, err)
		}
		monitoring.Debugf("tolerance %d: %d/%d videos evaluated", tol, r.Summary.VideosEvaluated, r.Summary.VideosTotal)
		res.Points = append(res.Points, Point{ToleranceFrames: tol, Summary: r.Summary})
	}
	return res, nil
}
