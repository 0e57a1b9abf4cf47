package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/workzone.report/internal/monitoring"
)

// LoadGroundTruth reads a ground-truth JSON file keyed by video identifier.
func LoadGroundTruth(path string) (map[string]GroundTruth, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open ground truth: %w", err)
	}
	defer f.Close()

	gt, err := ParseGroundTruth(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Debugf("loaded ground truth for %d videos from %s", len(gt), path)
	return gt, nil
}

// ParseGroundTruth decodes
//
//	{"<video>": {"<state>": [[start, end], ...], ...}, ...}
//
// Intervals are swapped when reversed and sorted by start. Null or absent
// state lists are allowed.
func ParseGroundTruth(r io.Reader) (map[string]GroundTruth, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil || raw == nil {
		return nil, fmt.Errorf("%w: must be an object keyed by video filename", ErrInvalidGroundTruth)
	}

	gt := make(map[string]GroundTruth, len(raw))
	for video, body := range raw {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(body, &entry); err != nil || entry == nil {
			return nil, fmt.Errorf("%w: entry for %s must be an object", ErrInvalidGroundTruth, video)
		}
		states, err := decodeStates(entry, video, ErrInvalidGroundTruth)
		if err != nil {
			return nil, err
		}
		gt[video] = GroundTruth{States: states}
	}
	return gt, nil
}
