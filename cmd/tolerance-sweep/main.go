// Command tolerance-sweep evaluates a batch at several transition
// tolerances and writes the per-tolerance summaries, optionally with
// CSV and chart outputs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/banshee-data/workzone.report/internal/config"
	"github.com/banshee-data/workzone.report/internal/ingest"
	"github.com/banshee-data/workzone.report/internal/monitoring"
	"github.com/banshee-data/workzone.report/internal/report"
	"github.com/banshee-data/workzone.report/internal/sweep"
	"github.com/banshee-data/workzone.report/internal/version"
)

var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("tolerance-sweep: %v", err)
	}
}

type sweepFlags struct {
	groundTruth string
	predictions string
	tolerances  string
	configPath  string
	output      string
	csvPath     string
	pngPath     string
	htmlPath    string
	fields      string
	workers     int
	verbose     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*sweepFlags, error) {
	f := &sweepFlags{}
	fs := flag.NewFlagSet("tolerance-sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.groundTruth, "ground-truth", "", "Ground-truth JSON file (required)")
	fs.StringVar(&f.predictions, "predictions", "", "Predictions JSON file, timeline CSV, or directory of timeline CSVs (required)")
	fs.StringVar(&f.tolerances, "tolerances", "0,5,10,15,30,60", "Comma-separated transition tolerances in frames")
	fs.StringVar(&f.configPath, "config", "", "Evaluation parameters JSON file")
	fs.StringVar(&f.output, "output", "", "Sweep JSON output path (defaults to stdout)")
	fs.StringVar(&f.csvPath, "csv", "", "Write a per-tolerance CSV table to this path")
	fs.StringVar(&f.pngPath, "png", "", "Save a static chart to this path")
	fs.StringVar(&f.htmlPath, "html", "", "Write an interactive chart page to this path")
	fs.StringVar(&f.fields, "fields", strings.Join(sweep.DefaultChartFields, ","), "Comma-separated summary fields for CSV and charts")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent videos (defaults to config or GOMAXPROCS)")
	fs.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.showVersion {
		return f, nil
	}
	if f.groundTruth == "" || f.predictions == "" {
		fs.Usage()
		return nil, fmt.Errorf("%w: -ground-truth and -predictions are required", errUsage)
	}
	if f.workers < 0 {
		return nil, fmt.Errorf("%w: -workers must be non-negative", errUsage)
	}
	return f, nil
}

func splitFields(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Fprintln(stdout, version.String("tolerance-sweep"))
		return nil
	}
	monitoring.SetVerbose(f.verbose)

	tolerances, err := sweep.ParseCSVInts(f.tolerances)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if len(tolerances) == 0 {
		return fmt.Errorf("%w: no tolerances provided", errUsage)
	}

	cfg := config.EmptyEvalConfig()
	if f.configPath != "" {
		if cfg, err = config.LoadEvalConfig(f.configPath); err != nil {
			return err
		}
	}
	if f.workers > 0 {
		cfg.Workers = &f.workers
	}
	opts := report.Options{
		Scoring:        cfg.ScoringOptions(),
		RequiredStates: cfg.RequiredStates,
		Workers:        cfg.GetWorkers(),
	}

	gt, err := ingest.LoadGroundTruth(f.groundTruth)
	if err != nil {
		return err
	}
	preds, err := ingest.LoadPredictions(f.predictions)
	if err != nil {
		return err
	}

	res, err := sweep.Run(ctx, gt, preds, opts, tolerances)
	if err != nil {
		return err
	}
	monitoring.Logf("swept %d tolerances over %d videos", len(res.Points), len(gt))

	if f.output == "" {
		if err := report.Write(stdout, res); err != nil {
			return err
		}
	} else if err := report.WriteFile(f.output, res); err != nil {
		return err
	}

	fields := splitFields(f.fields)
	if f.csvPath != "" {
		if err := writeCSVFile(f.csvPath, res, fields); err != nil {
			return err
		}
	}
	if f.pngPath != "" {
		if err := sweep.SavePNG(f.pngPath, res, fields); err != nil {
			return err
		}
		monitoring.Logf("saved chart to %s", f.pngPath)
	}
	if f.htmlPath != "" {
		if err := writeHTMLFile(f.htmlPath, res, fields); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVFile(path string, res *sweep.Result, fields []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV: %w", err)
	}
	defer file.Close()
	if err := sweep.WriteCSV(file, res, fields); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	monitoring.Logf("wrote CSV to %s", path)
	return nil
}

func writeHTMLFile(path string, res *sweep.Result, fields []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart page: %w", err)
	}
	defer file.Close()
	if err := sweep.RenderHTML(file, res, fields); err != nil {
		return err
	}
	monitoring.Logf("wrote chart page to %s", path)
	return nil
}
