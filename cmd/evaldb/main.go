// Command evaldb inspects and serves the evaluation run database written by
// workzone-eval -db.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/banshee-data/workzone.report/internal/api"
	"github.com/banshee-data/workzone.report/internal/db"
	"github.com/banshee-data/workzone.report/internal/monitoring"
	"github.com/banshee-data/workzone.report/internal/version"
)

var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("evaldb: %v", err)
	}
}

type dbFlags struct {
	dbPath      string
	listen      string
	list        bool
	limit       int
	show        string
	deleteID    string
	migrate     string
	force       int
	readOnly    bool
	verbose     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*dbFlags, error) {
	f := &dbFlags{}
	fs := flag.NewFlagSet("evaldb", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.dbPath, "db", "workzone_eval.db", "SQLite database path")
	fs.StringVar(&f.listen, "listen", "", "Serve the run API and debug console on this address (e.g. localhost:8090)")
	fs.BoolVar(&f.list, "list", false, "List recent runs")
	fs.IntVar(&f.limit, "limit", 20, "Max runs for -list (0 for all)")
	fs.StringVar(&f.show, "show", "", "Print a run and its videos as JSON")
	fs.StringVar(&f.deleteID, "delete", "", "Delete a run and its videos")
	fs.StringVar(&f.migrate, "migrate", "", "Migration command: up, down, version, or force")
	fs.IntVar(&f.force, "force-version", -1, "Version for -migrate force")
	fs.BoolVar(&f.readOnly, "read-only", false, "Refuse DELETE requests when serving")
	fs.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.showVersion {
		return f, nil
	}

	actions := 0
	for _, set := range []bool{f.listen != "", f.list, f.show != "", f.deleteID != "", f.migrate != ""} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		fs.Usage()
		return nil, fmt.Errorf("%w: exactly one of -listen, -list, -show, -delete, -migrate is required", errUsage)
	}
	return f, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Fprintln(stdout, version.String("evaldb"))
		return nil
	}
	monitoring.SetVerbose(f.verbose)

	if f.migrate != "" {
		return runMigrate(f, stdout)
	}

	database, err := db.NewDB(f.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	store := database.Runs()

	switch {
	case f.list:
		runs, err := store.List(f.limit)
		if err != nil {
			return err
		}
		return printRuns(stdout, runs)
	case f.show != "":
		run, err := store.Get(f.show)
		if err != nil {
			return err
		}
		videos, err := store.Videos(f.show)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*db.Run
			Videos []db.VideoRow `json:"videos"`
		}{run, videos})
	case f.deleteID != "":
		if err := store.Delete(f.deleteID); err != nil {
			return err
		}
		monitoring.Logf("deleted run %s", f.deleteID)
		return nil
	default:
		return serve(ctx, f.listen, database, api.NewServer(store, f.readOnly))
	}
}

// runMigrate opens the database without applying migrations so a dirty or
// older schema can be inspected and repaired.
func runMigrate(f *dbFlags, stdout io.Writer) error {
	database, err := db.OpenDB(f.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch f.migrate {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
	case "force":
		if f.force < 0 {
			return fmt.Errorf("%w: -migrate force needs -force-version", errUsage)
		}
		if err := database.MigrateForce(f.force); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("%w: unknown migrate command %q", errUsage, f.migrate)
	}

	v, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "schema version %d (dirty: %t)\n", v, dirty)
	return nil
}

func printRuns(w io.Writer, runs []*db.Run) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Run ID", "Created", "Evaluated", "Total", "Ground truth"})
	for _, r := range runs {
		created := time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339)
		tw.AppendRow(table.Row{r.RunID, created, r.VideosEvaluated, r.VideosTotal, r.GroundTruthPath})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func serve(ctx context.Context, addr string, database *db.DB, s *api.Server) error {
	mux := http.NewServeMux()
	s.Register(mux)
	if err := database.AttachAdminRoutes(mux); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("serving evaluation runs on http://%s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
