// Command workzone-eval scores work-zone state predictions against ground
// truth and writes the JSON report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/banshee-data/workzone.report/internal/config"
	"github.com/banshee-data/workzone.report/internal/db"
	"github.com/banshee-data/workzone.report/internal/detection"
	"github.com/banshee-data/workzone.report/internal/ingest"
	"github.com/banshee-data/workzone.report/internal/monitoring"
	"github.com/banshee-data/workzone.report/internal/report"
	"github.com/banshee-data/workzone.report/internal/version"
)

// errUsage marks invalid command-line usage.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("workzone-eval: %v", err)
	}
}

// evalFlags are the parsed command-line options.
type evalFlags struct {
	groundTruth      string
	predictions      string
	output           string
	configPath       string
	dbPath           string
	detectionMetrics bool
	verbose          bool
	showVersion      bool

	tolerance      int
	minOverlap     int
	entryState     string
	outsideState   string
	complianceGain float64
	requireStates  string
	workers        int

	// set records which flags were given explicitly.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*evalFlags, error) {
	f := &evalFlags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("workzone-eval", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.groundTruth, "ground-truth", "", "Ground-truth JSON file (required)")
	fs.StringVar(&f.predictions, "predictions", "", "Predictions JSON file, timeline CSV, or directory of timeline CSVs (required)")
	fs.StringVar(&f.output, "output", "", "Report output path (defaults to stdout)")
	fs.StringVar(&f.configPath, "config", "", "Evaluation parameters JSON file")
	fs.StringVar(&f.dbPath, "db", "", "SQLite database to record the run in")
	fs.BoolVar(&f.detectionMetrics, "detection-metrics", false, "Also compute bounding-box and OCR metrics")
	fs.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")

	fs.IntVar(&f.tolerance, "transition-tolerance", 0, "Max frame distance for a transition match")
	fs.IntVar(&f.minOverlap, "min-event-overlap", 1, "Min shared frames for an event match")
	fs.StringVar(&f.entryState, "entry-state", "inside", "State marking entry into the work zone")
	fs.StringVar(&f.outsideState, "outside-state", "outside", "State in which no advisory is shown")
	fs.Float64Var(&f.complianceGain, "compliance-gain", 0.4, "Assumed speeding reduction for a correct advisory")
	fs.StringVar(&f.requireStates, "require-states", "", "Comma-separated GT states every video must annotate")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent videos (defaults to GOMAXPROCS)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	if f.showVersion {
		return f, nil
	}
	if f.groundTruth == "" || f.predictions == "" {
		fs.Usage()
		return nil, fmt.Errorf("%w: -ground-truth and -predictions are required", errUsage)
	}
	return f, nil
}

// evalConfig loads the optional config file and applies explicit flags
// on top of it.
func (f *evalFlags) evalConfig() (*config.EvalConfig, error) {
	cfg := config.EmptyEvalConfig()
	if f.configPath != "" {
		loaded, err := config.LoadEvalConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.set["transition-tolerance"] {
		cfg.TransitionToleranceFrames = &f.tolerance
	}
	if f.set["min-event-overlap"] {
		cfg.MinEventOverlapFrames = &f.minOverlap
	}
	if f.set["entry-state"] {
		cfg.EntryState = &f.entryState
	}
	if f.set["outside-state"] {
		cfg.OutsideState = &f.outsideState
	}
	if f.set["compliance-gain"] {
		cfg.SimulatedComplianceGain = &f.complianceGain
	}
	if f.set["require-states"] {
		cfg.RequiredStates = splitStates(f.requireStates)
	}
	if f.set["workers"] {
		cfg.Workers = &f.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitStates(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, ingest.NormalizeStateLabel(p))
		}
	}
	return out
}

// firstDetections returns the first non-empty detections payload in video
// order, or nil.
func firstDetections(preds map[string]ingest.Predictions) json.RawMessage {
	for _, id := range ingest.VideoIDs(preds) {
		if d := preds[id].Detections; len(d) > 0 {
			return d
		}
	}
	return nil
}

// reportOptions converts the config into batch options.
func reportOptions(cfg *config.EvalConfig) report.Options {
	return report.Options{
		Scoring:        cfg.ScoringOptions(),
		RequiredStates: cfg.RequiredStates,
		Workers:        cfg.GetWorkers(),
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Fprintln(stdout, version.String("workzone-eval"))
		return nil
	}
	monitoring.SetVerbose(f.verbose)

	cfg, err := f.evalConfig()
	if err != nil {
		return err
	}

	gt, err := ingest.LoadGroundTruth(f.groundTruth)
	if err != nil {
		return err
	}
	preds, err := ingest.LoadPredictions(f.predictions)
	if err != nil {
		return err
	}

	if f.detectionMetrics {
		if _, err := detection.Run(firstDetections(preds), nil); err != nil {
			return fmt.Errorf("detection metrics: %w", err)
		}
	}

	r, err := report.Evaluate(ctx, gt, preds, reportOptions(cfg))
	if err != nil {
		return err
	}

	if f.output == "" {
		if err := report.Write(stdout, r); err != nil {
			return err
		}
	} else {
		if err := report.WriteFile(f.output, r); err != nil {
			return err
		}
		monitoring.Logf("wrote report for %d videos to %s", len(r.Videos), f.output)
	}

	if f.dbPath != "" {
		database, err := db.NewDB(f.dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		stored, err := database.Runs().RecordReport(r, f.groundTruth, f.predictions, cfg.Resolved())
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		monitoring.Logf("recorded run %s in %s", stored.RunID, f.dbPath)
	}
	return nil
}
