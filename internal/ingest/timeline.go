package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/workzone.report/internal/monitoring"
	"github.com/banshee-data/workzone.report/internal/workzone"
)

// timelineSuffixes are stripped from a CSV stem to recover the video name.
// Only the first match is removed.
var timelineSuffixes = []string{"_timeline_fusion", "_timeline", "_calibrated"}

// stateAliases maps short detector labels onto canonical state names.
var stateAliases = map[string]string{
	"out":         workzone.StateOutside,
	"outside":     workzone.StateOutside,
	"approach":    workzone.StateApproaching,
	"approaching": workzone.StateApproaching,
	"in":          workzone.StateInside,
	"inside":      workzone.StateInside,
	"exit":        workzone.StateExiting,
	"exiting":     workzone.StateExiting,
}

// NormalizeStateLabel lower-cases a label and resolves known aliases.
// Unknown labels pass through lower-cased.
func NormalizeStateLabel(label string) string {
	v := strings.ToLower(strings.TrimSpace(label))
	if canonical, ok := stateAliases[v]; ok {
		return canonical
	}
	return v
}

// VideoNameFromTimeline derives the video identifier from a timeline CSV
// path, e.g. "clips/a12_timeline_fusion.csv" -> "a12.mp4".
func VideoNameFromTimeline(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	for _, suffix := range timelineSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	if !strings.HasSuffix(name, ".mp4") {
		name += ".mp4"
	}
	return name
}

// TimelineRow is one sampled frame of a timeline CSV.
type TimelineRow struct {
	Frame   int
	State   string
	TimeSec *float64
}

// LoadTimelineCSV reads one timeline CSV as the predictions of a single
// video named after the file.
func LoadTimelineCSV(path string) (map[string]Predictions, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline: %w", err)
	}
	defer f.Close()

	rows, err := ReadTimelineRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	video := VideoNameFromTimeline(path)
	p := TimelinePredictions(rows)
	monitoring.Debugf("timeline %s: %d rows -> %s", path, len(rows), video)
	return map[string]Predictions{video: p}, nil
}

// ReadTimelineRows parses a CSV with case-insensitive frame, state and
// optional time_sec columns. Rows without frame or state are skipped.
func ReadTimelineRows(r io.Reader) ([]TimelineRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoTimelineRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	frameCol, hasFrame := cols["frame"]
	stateCol, hasState := cols["state"]
	timeCol, hasTime := cols["time_sec"]

	var rows []TimelineRow
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read timeline line %d: %w", line, err)
		}
		if !hasFrame || !hasState || frameCol >= len(rec) || stateCol >= len(rec) {
			continue
		}
		frameVal, err := strconv.ParseFloat(strings.TrimSpace(rec[frameCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid frame %q on line %d: %w", rec[frameCol], line, err)
		}
		if frameVal < 0 {
			return nil, fmt.Errorf("negative frame %q on line %d", rec[frameCol], line)
		}
		row := TimelineRow{Frame: int(frameVal), State: NormalizeStateLabel(rec[stateCol])}
		if hasTime && timeCol < len(rec) {
			if s := strings.TrimSpace(rec[timeCol]); s != "" {
				t, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid time_sec %q on line %d: %w", s, line, err)
				}
				row.TimeSec = &t
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoTimelineRows
	}
	return rows, nil
}

// TimelinePredictions forward-fills sampled rows into a dense label
// sequence, compresses it back into intervals and estimates the frame
// rate. rows must not be empty.
func TimelinePredictions(rows []TimelineRow) Predictions {
	sorted := make([]TimelineRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })

	labels := ForwardFill(sorted)
	return Predictions{
		States: workzone.IntervalsFromLabels(labels),
		FPS:    EstimateFPS(sorted),
	}
}

// ForwardFill expands frame-sorted samples into one label per frame up to
// the last sampled frame. Frames before the first sample take its state,
// frames between samples inherit the previous sample, and each sample
// writes its own state on its own frame.
func ForwardFill(sorted []TimelineRow) []string {
	if len(sorted) == 0 {
		return nil
	}
	labels := make([]string, sorted[len(sorted)-1].Frame+1)
	for i := range labels {
		labels[i] = workzone.StateOutside
	}

	current := sorted[0].State
	last := sorted[0].Frame
	for i := 0; i <= last; i++ {
		labels[i] = current
	}
	for _, row := range sorted {
		if row.Frame > last {
			for i := last; i <= row.Frame; i++ {
				labels[i] = current
			}
		}
		labels[row.Frame] = row.State
		current = row.State
		last = row.Frame
	}
	return labels
}

// EstimateFPS is the median of Δframe/Δtime over consecutive frame-sorted
// rows that both carry a time and advance in frame and time. It is nil
// when no such pair exists.
func EstimateFPS(sorted []TimelineRow) *float64 {
	var samples []float64
	for i := 1; i < len(sorted); i++ {
		t0, t1 := sorted[i-1].TimeSec, sorted[i].TimeSec
		if t0 == nil || t1 == nil {
			continue
		}
		dt := *t1 - *t0
		df := sorted[i].Frame - sorted[i-1].Frame
		if dt > 0 && df > 0 {
			samples = append(samples, float64(df)/dt)
		}
	}
	if len(samples) == 0 {
		return nil
	}
	m := median(samples)
	return &m
}

// median averages the two middle values for even-length input.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return xs[mid]
	}
	return (xs[mid-1] + xs[mid]) / 2
}

// LoadTimelineDir loads every timeline CSV below root. Files matching
// *_timeline*.csv are preferred; any *.csv is used when none match. Files
// are read in path order so later duplicates of a video name win.
func LoadTimelineDir(root string) (map[string]Predictions, error) {
	var timelines, others []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if ok, _ := filepath.Match("*_timeline*.csv", name); ok {
			timelines = append(timelines, path)
		} else if ok, _ := filepath.Match("*.csv", name); ok {
			others = append(others, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan timeline directory %s: %w", root, err)
	}

	paths := timelines
	if len(paths) == 0 {
		paths = others
	}
	sort.Strings(paths)

	preds := make(map[string]Predictions, len(paths))
	for _, path := range paths {
		one, err := LoadTimelineCSV(path)
		if err != nil {
			return nil, err
		}
		for video, p := range one {
			if _, dup := preds[video]; dup {
				monitoring.Logf("timeline %s replaces an earlier timeline for %s", path, video)
			}
			preds[video] = p
		}
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("%w: no timeline CSVs found under %s", ErrInvalidPredictions, root)
	}
	monitoring.Debugf("loaded %d timelines from %s", len(preds), root)
	return preds, nil
}
