package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/workzone.report/internal/report"
)

// ErrRunNotFound is returned when a run ID has no stored row.
var ErrRunNotFound = errors.New("evaluation run not found")

// Run is one persisted batch evaluation.
type Run struct {
	RunID           string          `json:"run_id"`
	GroundTruthPath string          `json:"ground_truth_path"`
	PredictionsPath string          `json:"predictions_path"`
	ParamsJSON      json.RawMessage `json:"params_json,omitempty"`
	SummaryJSON     json.RawMessage `json:"summary_json,omitempty"`
	VideosEvaluated int             `json:"videos_evaluated"`
	VideosTotal     int             `json:"videos_total"`
	CreatedAt       int64           `json:"created_at"`
}

// VideoRow is the stored outcome of one video within a run. The headline
// metrics are broken out into columns for ad-hoc SQL; MetricsJSON holds
// the full bundle as written to the report.
type VideoRow struct {
	RunID               string          `json:"run_id"`
	VideoID             string          `json:"video_id"`
	Error               string          `json:"error,omitempty"`
	FrameAccuracy       *float64        `json:"frame_accuracy"`
	TransitionRecall    *float64        `json:"transition_recall"`
	TransitionPrecision *float64        `json:"transition_precision"`
	EventRecall         *float64        `json:"event_recall"`
	LeadTimeSec         *float64        `json:"lead_time_sec"`
	MetricsJSON         json.RawMessage `json:"metrics_json,omitempty"`
}

// RunStore provides persistence for evaluation runs and their videos.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert persists a run row. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(run *Run) error {
	fillRunDefaults(run)
	return retryOnBusy(func() error {
		return insertRun(s.db, run)
	})
}

// InsertVideos persists video rows for an existing run in one transaction.
func (s *RunStore) InsertVideos(runID string, videos []VideoRow) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()
		for i := range videos {
			videos[i].RunID = runID
			if err := insertVideo(tx, &videos[i]); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// RecordReport stores a run, its summary and every video result in one
// transaction. params is any JSON-encodable description of the options.
func (s *RunStore) RecordReport(r *report.Report, gtPath, predPath string, params interface{}) (*Run, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	summaryJSON, err := json.Marshal(r.Summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	run := &Run{
		GroundTruthPath: gtPath,
		PredictionsPath: predPath,
		ParamsJSON:      paramsJSON,
		SummaryJSON:     summaryJSON,
		VideosEvaluated: r.Summary.VideosEvaluated,
		VideosTotal:     r.Summary.VideosTotal,
	}
	fillRunDefaults(run)

	var rows []VideoRow
	for _, res := range r.Results() {
		row, err := videoRowFromResult(run.RunID, res)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	err = retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()
		if err := insertRun(tx, run); err != nil {
			return err
		}
		for i := range rows {
			if err := insertVideo(tx, &rows[i]); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Get returns a single run by ID.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, ground_truth_path, predictions_path, params_json, summary_json,
		       videos_evaluated, videos_total, created_at
		FROM eval_runs
		WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// List returns the most recent runs, newest first. limit <= 0 means all.
func (s *RunStore) List(limit int) ([]*Run, error) {
	query := `
		SELECT run_id, ground_truth_path, predictions_path, params_json, summary_json,
		       videos_evaluated, videos_total, created_at
		FROM eval_runs
		ORDER BY created_at DESC, run_id`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Videos returns the video rows of a run ordered by video ID.
func (s *RunStore) Videos(runID string) ([]VideoRow, error) {
	rows, err := s.db.Query(`
		SELECT run_id, video_id, error, frame_accuracy, transition_recall,
		       transition_precision, event_recall, lead_time_sec, metrics_json
		FROM eval_videos
		WHERE run_id = ?
		ORDER BY video_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []VideoRow
	for rows.Next() {
		var (
			v        VideoRow
			errText  sql.NullString
			metrics  sql.NullString
			frameAcc sql.NullFloat64
			trRecall sql.NullFloat64
			trPrec   sql.NullFloat64
			evRecall sql.NullFloat64
			leadTime sql.NullFloat64
		)
		if err := rows.Scan(&v.RunID, &v.VideoID, &errText, &frameAcc, &trRecall,
			&trPrec, &evRecall, &leadTime, &metrics); err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		v.Error = errText.String
		v.FrameAccuracy = nullFloat(frameAcc)
		v.TransitionRecall = nullFloat(trRecall)
		v.TransitionPrecision = nullFloat(trPrec)
		v.EventRecall = nullFloat(evRecall)
		v.LeadTimeSec = nullFloat(leadTime)
		if metrics.Valid {
			v.MetricsJSON = json.RawMessage(metrics.String)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// Delete removes a run and its videos.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM eval_videos WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete videos: %w", err)
		}
		result, err := tx.Exec(`DELETE FROM eval_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return tx.Commit()
	})
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func fillRunDefaults(run *Run) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
}

func insertRun(e execer, run *Run) error {
	_, err := e.Exec(`
		INSERT INTO eval_runs (
			run_id, ground_truth_path, predictions_path, params_json, summary_json,
			videos_evaluated, videos_total, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.GroundTruthPath, run.PredictionsPath,
		nullJSON(run.ParamsJSON), nullJSON(run.SummaryJSON),
		run.VideosEvaluated, run.VideosTotal, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

func insertVideo(e execer, v *VideoRow) error {
	var errText interface{}
	if v.Error != "" {
		errText = v.Error
	}
	_, err := e.Exec(`
		INSERT INTO eval_videos (
			run_id, video_id, error, frame_accuracy, transition_recall,
			transition_precision, event_recall, lead_time_sec, metrics_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.RunID, v.VideoID, errText,
		floatArg(v.FrameAccuracy), floatArg(v.TransitionRecall),
		floatArg(v.TransitionPrecision), floatArg(v.EventRecall), floatArg(v.LeadTimeSec),
		nullJSON(v.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert video %s: %w", v.VideoID, err)
	}
	return nil
}

func videoRowFromResult(runID string, res report.VideoResult) (VideoRow, error) {
	metrics, err := json.Marshal(res)
	if err != nil {
		return VideoRow{}, fmt.Errorf("encode %s: %w", res.Video, err)
	}
	row := VideoRow{RunID: runID, VideoID: res.Video, Error: res.Error, MetricsJSON: metrics}
	if res.OK() {
		acc := res.Metrics.FrameAccuracy
		row.FrameAccuracy = &acc
		row.TransitionRecall = res.Metrics.TransitionRecall
		row.TransitionPrecision = res.Metrics.TransitionPrecision
		row.EventRecall = res.Metrics.EventRecall
		row.LeadTimeSec = res.Metrics.LeadTimeSec
	}
	return row, nil
}

func scanRun(row scanner) (*Run, error) {
	var (
		run     Run
		params  sql.NullString
		summary sql.NullString
	)
	err := row.Scan(&run.RunID, &run.GroundTruthPath, &run.PredictionsPath, &params, &summary,
		&run.VideosEvaluated, &run.VideosTotal, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if params.Valid {
		run.ParamsJSON = json.RawMessage(params.String)
	}
	if summary.Valid {
		run.SummaryJSON = json.RawMessage(summary.String)
	}
	return &run, nil
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// retryOnBusy retries fn while SQLite reports the database as busy.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 20 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
