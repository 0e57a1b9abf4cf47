package sweep

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/workzone.report/internal/ingest"
	"github.com/banshee-data/workzone.report/internal/report"
	"github.com/banshee-data/workzone.report/internal/workzone"
)

func TestParseCSVInts(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"0,5, 10 ,", []int{0, 5, 10}, false},
		{"3", []int{3}, false},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseCSVInts(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestUniqueSorted(t *testing.T) {
	in := []int{10, 0, 5, 10, 0}
	assert.Equal(t, []int{0, 5, 10}, uniqueSorted(in))
	assert.Equal(t, []int{10, 0, 5, 10, 0}, in, "input is not modified")
	assert.Empty(t, uniqueSorted(nil))
}

// shiftedBatch has GT transitions at frames 5 and 10 and predicted
// transitions two frames late, so transitions only match from tolerance 2.
func shiftedBatch() (map[string]ingest.GroundTruth, map[string]ingest.Predictions) {
	gt := map[string]ingest.GroundTruth{
		"a.mp4": {States: workzone.StateIntervals{
			workzone.StateOutside:     {{Start: 0, End: 4}},
			workzone.StateApproaching: {{Start: 5, End: 9}},
			workzone.StateInside:      {{Start: 10, End: 14}},
		}},
	}
	preds := map[string]ingest.Predictions{
		"a.mp4": {States: workzone.StateIntervals{
			workzone.StateOutside:     {{Start: 0, End: 6}},
			workzone.StateApproaching: {{Start: 7, End: 11}},
			workzone.StateInside:      {{Start: 12, End: 14}},
		}},
	}
	return gt, preds
}

func runShifted(t *testing.T, tolerances []int) *Result {
	t.Helper()
	gt, preds := shiftedBatch()
	res, err := Run(context.Background(), gt, preds, report.DefaultOptions(), tolerances)
	require.NoError(t, err)
	return res
}

func TestRun_RecallGrowsWithTolerance(t *testing.T) {
	res := runShifted(t, []int{2, 0, 1, 2})

	assert.Equal(t, []int{0, 1, 2}, res.Tolerances())
	recall := res.Series("transition_recall")
	require.Len(t, recall, 3)
	for i, want := range []float64{0, 0, 1} {
		require.NotNil(t, recall[i])
		assert.Equal(t, want, *recall[i], "tolerance %d", res.Points[i].ToleranceFrames)
	}
}

func TestRun_DefaultTolerances(t *testing.T) {
	res := runShifted(t, nil)
	if diff := cmp.Diff(DefaultTolerances, res.Tolerances()); diff != "" {
		t.Errorf("tolerances mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_InvalidOptions(t *testing.T) {
	gt, preds := shiftedBatch()
	_, err := Run(context.Background(), gt, preds, report.DefaultOptions(), []int{-1})
	assert.ErrorIs(t, err, workzone.ErrInvalidOptions)
}

func TestResult_MarshalJSON(t *testing.T) {
	res := runShifted(t, []int{0, 10})
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "0")
	require.Contains(t, decoded, "10")
	assert.Equal(t, 1.0, decoded["10"]["transition_recall_mean"])
	assert.Equal(t, 1.0, decoded["0"]["videos_total"])
}

func TestWriteCSV(t *testing.T) {
	res := runShifted(t, []int{0, 2})
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res, []string{"transition_recall", "lead_time_sec"}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"tolerance_frames", "transition_recall_mean", "lead_time_sec_mean", "videos_evaluated", "videos_total"}, records[0])
	assert.Equal(t, []string{"0", "0.000000", "", "1", "1"}, records[1], "lead time is undefined without fps")
	assert.Equal(t, []string{"2", "1.000000", "", "1", "1"}, records[2])
}

func TestCharts(t *testing.T) {
	res := runShifted(t, []int{0, 1, 2})
	dir := t.TempDir()

	png := filepath.Join(dir, "charts", "sweep.png")
	require.NoError(t, SavePNG(png, res, DefaultChartFields))
	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	var html bytes.Buffer
	require.NoError(t, RenderHTML(&html, res, DefaultChartFields))
	out := html.String()
	assert.True(t, strings.Contains(out, "transition_precision"), "series names appear in the page")
	assert.Contains(t, out, "Transition metrics vs tolerance")
}
