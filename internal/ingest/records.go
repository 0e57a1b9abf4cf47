// Package ingest loads ground-truth and prediction files into the
// workzone interval model.
//
// Structural problems (wrong JSON shape, CSVs with no usable rows) are
// returned as errors wrapping one of the sentinel errors below and abort
// the run. Data-quality problems of a single video are left to the report
// layer.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/workzone.report/internal/workzone"
)

var (
	// ErrInvalidGroundTruth marks a structurally invalid ground-truth file.
	ErrInvalidGroundTruth = errors.New("invalid ground truth")
	// ErrInvalidPredictions marks a structurally invalid predictions file.
	ErrInvalidPredictions = errors.New("invalid predictions")
	// ErrNoTimelineRows is returned when a timeline CSV has no frame/state rows.
	ErrNoTimelineRows = errors.New("no valid rows with frame/state")
)

// GroundTruth is the human-authored annotation of one video.
type GroundTruth struct {
	States workzone.StateIntervals
}

// Predictions is the detector output for one video.
type Predictions struct {
	// States is nil when the record carries no state intervals.
	States workzone.StateIntervals
	// FPS is nil when unknown. Non-positive values are dropped on load.
	FPS *float64
	// Detections and OCR are opaque payloads kept for the unsupported
	// detection and OCR scorers.
	Detections json.RawMessage
	OCR        json.RawMessage
}

// VideoIDs returns the keys of m in sorted order.
func VideoIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// decodeStates decodes an object of state name -> list of [start, end]
// pairs. Null lists are skipped. sentinel tags any shape error.
func decodeStates(raw map[string]json.RawMessage, video string, sentinel error) (workzone.StateIntervals, error) {
	states := make(workzone.StateIntervals, len(raw))
	for state, body := range raw {
		if isNull(body) {
			continue
		}
		var pairs []json.RawMessage
		if err := json.Unmarshal(body, &pairs); err != nil {
			return nil, fmt.Errorf("%w: intervals for %s:%s must be a list", sentinel, video, state)
		}
		intervals := make([]workzone.Interval, 0, len(pairs))
		for i, p := range pairs {
			var pair []float64
			if err := json.Unmarshal(p, &pair); err != nil || len(pair) != 2 {
				return nil, fmt.Errorf("%w: interval %d for %s:%s must be a [start, end] pair", sentinel, i, video, state)
			}
			if pair[0] < 0 || pair[1] < 0 {
				return nil, fmt.Errorf("%w: interval %d for %s:%s has a negative frame", sentinel, i, video, state)
			}
			intervals = append(intervals, workzone.NewInterval(int(pair[0]), int(pair[1])))
		}
		states[state] = intervals
	}
	return states.Normalize(), nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
