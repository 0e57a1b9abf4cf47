package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/workzone.report/internal/monitoring"
)

// LoadPredictions reads predictions from a JSON file, a single timeline
// CSV, or a directory of timeline CSVs.
func LoadPredictions(path string) (map[string]Predictions, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat predictions: %w", err)
	}
	if info.IsDir() {
		return LoadTimelineDir(cleanPath)
	}
	if strings.EqualFold(filepath.Ext(cleanPath), ".csv") {
		return LoadTimelineCSV(cleanPath)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open predictions: %w", err)
	}
	defer f.Close()

	preds, err := ParsePredictions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Debugf("loaded predictions for %d videos from %s", len(preds), path)
	return preds, nil
}

type predictionRecord struct {
	FPS        json.RawMessage `json:"fps"`
	States     json.RawMessage `json:"states"`
	Detections json.RawMessage `json:"detections"`
	OCR        json.RawMessage `json:"ocr"`
}

// ParsePredictions decodes
//
//	{"<video>": {"fps": 30, "states": {...}, "detections": ..., "ocr": ...}}
//
// A states value that is not an object leaves States nil, which the report
// treats as a missing prediction.
func ParsePredictions(r io.Reader) (map[string]Predictions, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil || raw == nil {
		return nil, fmt.Errorf("%w: must be an object keyed by video filename", ErrInvalidPredictions)
	}

	preds := make(map[string]Predictions, len(raw))
	for video, body := range raw {
		var rec predictionRecord
		if err := json.Unmarshal(body, &rec); err != nil || isNull(body) {
			return nil, fmt.Errorf("%w: entry for %s must be an object", ErrInvalidPredictions, video)
		}

		var fps *float64
		if !isNull(rec.FPS) {
			if err := json.Unmarshal(rec.FPS, &fps); err != nil {
				return nil, fmt.Errorf("%w: fps for %s must be a number", ErrInvalidPredictions, video)
			}
		}

		p := Predictions{
			FPS:        positive(fps),
			Detections: rec.Detections,
			OCR:        rec.OCR,
		}
		var stateMap map[string]json.RawMessage
		if !isNull(rec.States) && json.Unmarshal(rec.States, &stateMap) == nil {
			states, err := decodeStates(stateMap, video, ErrInvalidPredictions)
			if err != nil {
				return nil, err
			}
			p.States = states
		}
		preds[video] = p
	}
	return preds, nil
}

// positive drops non-positive frame rates.
func positive(fps *float64) *float64 {
	if fps == nil || *fps <= 0 {
		return nil
	}
	return fps
}
