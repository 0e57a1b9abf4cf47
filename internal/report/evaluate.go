package report

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/workzone.report/internal/ingest"
	"github.com/banshee-data/workzone.report/internal/monitoring"
	"github.com/banshee-data/workzone.report/internal/workzone"
)

// Options configures a batch evaluation.
type Options struct {
	Scoring workzone.Options
	// RequiredStates are GT states every video must annotate.
	RequiredStates []string
	// Workers bounds concurrent scoring. Values below 1 mean GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the standard scoring parameters with no required
// states.
func DefaultOptions() Options {
	return Options{Scoring: workzone.DefaultOptions()}
}

// Report is the evaluation of a whole batch.
type Report struct {
	Videos  map[string]VideoResult `json:"videos"`
	Summary workzone.Summary       `json:"summary"`
}

// Results returns the per-video results sorted by video identifier.
func (r *Report) Results() []VideoResult {
	out := make([]VideoResult, 0, len(r.Videos))
	for _, id := range ingest.VideoIDs(r.Videos) {
		out = append(out, r.Videos[id])
	}
	return out
}

// Evaluate scores every ground-truth video against its prediction record.
// Prediction records without ground truth are ignored. Per-video problems
// are recorded in the result and never abort the batch; only context
// cancellation and invalid options return an error.
func Evaluate(ctx context.Context, gt map[string]ingest.GroundTruth, preds map[string]ingest.Predictions, opts Options) (*Report, error) {
	if err := opts.Scoring.Validate(); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	ids := ingest.VideoIDs(gt)
	results := make([]VideoResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pred, ok := preds[id]
			results[i] = scoreVideo(id, gt[id], pred, ok, opts)
			if !results[i].OK() {
				monitoring.Debugf("skipping %s: %s", id, results[i].Error)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluation cancelled: %w", err)
	}

	for id := range preds {
		if _, ok := gt[id]; !ok {
			monitoring.Debugf("ignoring predictions for %s: no ground truth", id)
		}
	}

	r := &Report{Videos: make(map[string]VideoResult, len(ids))}
	var scored []workzone.FieldSource
	for _, res := range results {
		r.Videos[res.Video] = res
		if res.OK() {
			scored = append(scored, res)
		}
	}
	r.Summary = workzone.Summarise(summaryTemplate(opts), scored, len(ids))
	monitoring.Logf("evaluated %d of %d videos", r.Summary.VideosEvaluated, r.Summary.VideosTotal)
	return r, nil
}

// Generate loads the ground truth and predictions at the given paths and
// evaluates them. predPath may be a JSON file, a timeline CSV or a
// directory of timeline CSVs.
func Generate(ctx context.Context, gtPath, predPath string, opts Options) (*Report, error) {
	gt, err := ingest.LoadGroundTruth(gtPath)
	if err != nil {
		return nil, err
	}
	preds, err := ingest.LoadPredictions(predPath)
	if err != nil {
		return nil, err
	}
	return Evaluate(ctx, gt, preds, opts)
}
