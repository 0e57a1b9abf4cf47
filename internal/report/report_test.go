package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/workzone.report/internal/ingest"
	"github.com/banshee-data/workzone.report/internal/workzone"
)

func fps(v float64) *float64 { return &v }

func perfectPass() (ingest.GroundTruth, ingest.Predictions) {
	gt := workzone.StateIntervals{
		workzone.StateOutside:     {{Start: 0, End: 4}},
		workzone.StateApproaching: {{Start: 5, End: 7}},
		workzone.StateInside:      {{Start: 8, End: 9}},
		workzone.StateExiting:     {{Start: 10, End: 11}},
	}
	return ingest.GroundTruth{States: gt}, ingest.Predictions{States: gt, FPS: fps(30)}
}

func lateEntry() (ingest.GroundTruth, ingest.Predictions) {
	gt := ingest.GroundTruth{States: workzone.StateIntervals{
		workzone.StateInside: {{Start: 4, End: 6}},
	}}
	pred := ingest.Predictions{States: workzone.StateIntervals{
		workzone.StateInside: {{Start: 6, End: 8}},
	}}
	return gt, pred
}

func TestEvaluate_ErrorIsolation(t *testing.T) {
	aGT, aPred := perfectPass()
	gt := map[string]ingest.GroundTruth{
		"a.mp4": aGT,
		"b.mp4": {States: workzone.StateIntervals{}},
		"c.mp4": aGT,
		"d.mp4": aGT,
	}
	preds := map[string]ingest.Predictions{
		"a.mp4":     aPred,
		"d.mp4":     {FPS: fps(30)},
		"extra.mp4": aPred,
	}

	r, err := Evaluate(context.Background(), gt, preds, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, r.Videos, 4)
	assert.True(t, r.Videos["a.mp4"].OK())
	assert.Equal(t, ReasonEmptyGroundTruth, r.Videos["b.mp4"].Error)
	assert.Equal(t, ReasonMissingPredictions, r.Videos["c.mp4"].Error)
	assert.Equal(t, ReasonMissingPredictions, r.Videos["d.mp4"].Error)
	assert.NotContains(t, r.Videos, "extra.mp4")

	assert.Equal(t, 1, r.Summary.VideosEvaluated)
	assert.Equal(t, 4, r.Summary.VideosTotal)
	require.NotNil(t, r.Summary.Mean("frame_accuracy"))
	assert.Equal(t, 1.0, *r.Summary.Mean("frame_accuracy"))
}

func TestEvaluate_SummaryFrameRate(t *testing.T) {
	aGT, aPred := perfectPass()
	bGT, bPred := lateEntry()
	gt := map[string]ingest.GroundTruth{"a.mp4": aGT, "b.mp4": bGT}
	preds := map[string]ingest.Predictions{"a.mp4": aPred, "b.mp4": bPred}

	r, err := Evaluate(context.Background(), gt, preds, DefaultOptions())
	require.NoError(t, err)

	// b.mp4 has no frame rate, so only a.mp4 contributes.
	require.NotNil(t, r.Summary.Mean("fps_estimate"))
	assert.Equal(t, 30.0, *r.Summary.Mean("fps_estimate"))
	require.NotNil(t, r.Summary.Mean("total_frames"))
	assert.Equal(t, 10.5, *r.Summary.Mean("total_frames"), "12 and 9 frames")
}

func TestEvaluate_AllVideosFailed(t *testing.T) {
	gt := map[string]ingest.GroundTruth{"a.mp4": {States: workzone.StateIntervals{}}}

	r, err := Evaluate(context.Background(), gt, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, r.Summary.VideosEvaluated)
	assert.Equal(t, 1, r.Summary.VideosTotal)

	data, err := json.Marshal(r.Summary)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{
		"frame_accuracy_mean",
		"transition_recall_mean",
		"fps_estimate_mean",
		"lead_time_sec_std",
		"gt_inside_start_frame_mean",
		"pred_minus_gt_approaching_start_matched_frame_std",
	} {
		v, ok := decoded[key]
		assert.True(t, ok, "%s missing", key)
		assert.Nil(t, v, "%s should be null", key)
	}
}

func TestEvaluate_RequiredStates(t *testing.T) {
	gtA, predA := lateEntry()
	gt := map[string]ingest.GroundTruth{"a.mp4": gtA}
	preds := map[string]ingest.Predictions{"a.mp4": predA}

	opts := DefaultOptions()
	opts.RequiredStates = []string{workzone.StateApproaching}
	r, err := Evaluate(context.Background(), gt, preds, opts)
	require.NoError(t, err)
	assert.Equal(t, ReasonIncompleteGroundTruth, r.Videos["a.mp4"].Error)
	assert.Equal(t, 0, r.Summary.VideosEvaluated)
	assert.Contains(t, r.Summary.Stats, "frame_accuracy_mean")
	assert.Nil(t, r.Summary.Mean("frame_accuracy"))

	opts.RequiredStates = []string{workzone.StateInside}
	r, err = Evaluate(context.Background(), gt, preds, opts)
	require.NoError(t, err)
	assert.True(t, r.Videos["a.mp4"].OK())
}

func TestEvaluate_StartStats(t *testing.T) {
	aGT, aPred := perfectPass()
	fGT, fPred := lateEntry()
	gt := map[string]ingest.GroundTruth{"a.mp4": aGT, "f.mp4": fGT}
	preds := map[string]ingest.Predictions{"a.mp4": aPred, "f.mp4": fPred}

	r, err := Evaluate(context.Background(), gt, preds, DefaultOptions())
	require.NoError(t, err)

	f := r.Videos["f.mp4"]
	require.Len(t, f.Starts, 2)
	inside := f.Starts[0]
	assert.Equal(t, workzone.StateInside, inside.State)
	require.NotNil(t, inside.GT)
	require.NotNil(t, inside.Pred)
	require.NotNil(t, inside.PredMatched)
	assert.Equal(t, 4, *inside.GT)
	assert.Equal(t, 6, *inside.Pred)
	assert.Equal(t, 2, *inside.Delta())
	assert.Equal(t, 6, *inside.PredMatched)
	assert.Equal(t, 2, *inside.MatchedDelta())

	approaching := f.Starts[1]
	assert.Nil(t, approaching.GT)
	assert.Nil(t, approaching.Delta())

	// Start deltas are 0 for a.mp4 and 2 for f.mp4.
	mean := r.Summary.Mean("pred_minus_gt_inside_start_frame")
	std := r.Summary.Std("pred_minus_gt_inside_start_frame")
	require.NotNil(t, mean)
	require.NotNil(t, std)
	assert.InDelta(t, 1.0, *mean, 1e-9)
	assert.InDelta(t, 1.0, *std, 1e-9)

	// Only a.mp4 has an approaching interval.
	require.NotNil(t, r.Summary.Mean("gt_approaching_start_frame"))
	assert.Equal(t, 5.0, *r.Summary.Mean("gt_approaching_start_frame"))
	require.NotNil(t, r.Summary.Std("gt_approaching_start_frame"))
	assert.Equal(t, 0.0, *r.Summary.Std("gt_approaching_start_frame"))
}

func TestEvaluate_WorkerCountDoesNotChangeResult(t *testing.T) {
	aGT, aPred := perfectPass()
	fGT, fPred := lateEntry()
	gt := map[string]ingest.GroundTruth{"a.mp4": aGT, "f.mp4": fGT, "g.mp4": fGT, "h.mp4": aGT}
	preds := map[string]ingest.Predictions{"a.mp4": aPred, "f.mp4": fPred, "g.mp4": aPred, "h.mp4": fPred}

	opts := DefaultOptions()
	opts.Workers = 1
	serial, err := Evaluate(context.Background(), gt, preds, opts)
	require.NoError(t, err)

	opts.Workers = 4
	parallel, err := Evaluate(context.Background(), gt, preds, opts)
	require.NoError(t, err)

	if diff := cmp.Diff(serial.Summary, parallel.Summary); diff != "" {
		t.Errorf("summary differs between worker counts (-serial +parallel):\n%s", diff)
	}
	assert.Equal(t, []string{"a.mp4", "f.mp4", "g.mp4", "h.mp4"}, videoNames(parallel.Results()))
}

func videoNames(results []VideoResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Video
	}
	return out
}

func TestEvaluate_Errors(t *testing.T) {
	aGT, aPred := perfectPass()
	gt := map[string]ingest.GroundTruth{"a.mp4": aGT}
	preds := map[string]ingest.Predictions{"a.mp4": aPred}

	opts := DefaultOptions()
	opts.Scoring.MinEventOverlapFrames = 0
	_, err := Evaluate(context.Background(), gt, preds, opts)
	assert.ErrorIs(t, err, workzone.ErrInvalidOptions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Evaluate(ctx, gt, preds, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVideoResult_MarshalJSON(t *testing.T) {
	failed, err := json.Marshal(VideoResult{Video: "b.mp4", Error: ReasonEmptyGroundTruth})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "empty_ground_truth"}`, string(failed))

	fGT, fPred := lateEntry()
	res := scoreVideo("f.mp4", fGT, fPred, true, DefaultOptions())
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 4.0, got["gt_inside_start_frame"])
	assert.Equal(t, 2.0, got["pred_minus_gt_inside_start_matched_frame"])
	assert.Equal(t, 9.0, got["total_frames"])
	assert.Contains(t, got, "fps_estimate")
	assert.Nil(t, got["fps_estimate"])
	assert.Nil(t, got["lead_time_sec"], "time metrics are null without fps")
	assert.Nil(t, got["gt_approaching_start_frame"])
	assert.NotContains(t, got, "error")
}

func TestGenerateAndWriteFile(t *testing.T) {
	dir := t.TempDir()
	gtPath := filepath.Join(dir, "gt.json")
	predPath := filepath.Join(dir, "pred.json")
	require.NoError(t, os.WriteFile(gtPath, []byte(`{
		"a.mp4": {"outside": [[0, 4]], "inside": [[5, 9]]},
		"b.mp4": {}
	}`), 0o644))
	require.NoError(t, os.WriteFile(predPath, []byte(`{
		"a.mp4": {"fps": 10, "states": {"outside": [[0, 5]], "inside": [[6, 9]]}}
	}`), 0o644))

	r, err := Generate(context.Background(), gtPath, predPath, DefaultOptions())
	require.NoError(t, err)
	require.True(t, r.Videos["a.mp4"].OK())
	assert.InDelta(t, 0.9, r.Videos["a.mp4"].Metrics.FrameAccuracy, 1e-9)

	out := filepath.Join(dir, "reports", "eval.json")
	require.NoError(t, WriteFile(out, r))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded struct {
		Videos  map[string]map[string]interface{} `json:"videos"`
		Summary map[string]interface{}            `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "empty_ground_truth", decoded.Videos["b.mp4"]["error"])
	assert.Equal(t, 1.0, decoded.Summary["videos_evaluated"])
	assert.Equal(t, 2.0, decoded.Summary["videos_total"])
	assert.InDelta(t, 0.9, decoded.Summary["frame_accuracy_mean"], 1e-9)

	_, err = Generate(context.Background(), filepath.Join(dir, "missing.json"), predPath, DefaultOptions())
	assert.Error(t, err)
}
