package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/packpilot/internal/worker"
)

// Repository defines the interface for task result persistence.
type Repository interface {
	Save(ctx context.Context, runID string, res worker.Result) error
	Get(ctx context.Context, taskID string) (*Record, error)
	ListByRun(ctx context.Context, runID string) ([]Record, error)
	ListByDevice(ctx context.Context, device string, limit int) ([]Record, error)
	StepTimings(ctx context.Context, taskID string) ([]Timing, error)
}

// Record is a stored task result.
type Record struct {
	TaskID     string
	RunID      string
	Device     string
	Scenario   string
	State      string
	Attempts   int
	FailedStep string
	Payload    map[string]string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Timing is a stored step execution.
type Timing struct {
	Attempt int
	Step    string
	Outcome string
	Polls   int
	Elapsed time.Duration
}

// resultColumns is the SELECT column list for task_results queries.
const resultColumns = `id, run_id, device, scenario, state, attempts, failed_step,
			payload, error, started_at, finished_at`

// timeLayout is fixed-width so finished_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save stores res and its step timings in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, runID string, res worker.Result) error {
	if res.TaskID == "" || res.Device == "" {
		return fmt.Errorf("%w: task id and device are required", ErrInvalidResult)
	}

	payload := res.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO task_results (
			id, run_id, device, scenario, state, attempts, failed_step,
			payload, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}

	_, err = tx.ExecContext(ctx, query,
		res.TaskID,
		runID,
		res.Device,
		string(res.Scenario),
		string(res.State),
		res.Attempts,
		nullableString(res.FailedStep),
		string(payloadJSON),
		nullableString(errText),
		res.Started.UTC().Format(timeLayout),
		res.Finished.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrResultExists
		}
		return fmt.Errorf("inserting task result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO step_timings (task_id, attempt, step, outcome, polls, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing step insert: %w", err)
	}
	defer stmt.Close()

	for _, st := range res.Steps {
		if _, err := stmt.ExecContext(ctx,
			res.TaskID,
			st.Attempt,
			st.Name,
			string(st.Outcome),
			st.Polls,
			st.Elapsed.Milliseconds(),
		); err != nil {
			return fmt.Errorf("inserting step timing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task result: %w", err)
	}
	return nil
}

// Get retrieves a task result by task ID.
func (r *SQLiteRepository) Get(ctx context.Context, taskID string) (*Record, error) {
	query := `SELECT ` + resultColumns + ` FROM task_results WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("querying task result: %w", err)
	}
	return rec, nil
}

// ListByRun retrieves the results of one StartAll batch in finish order.
func (r *SQLiteRepository) ListByRun(ctx context.Context, runID string) ([]Record, error) {
	query := `SELECT ` + resultColumns + ` FROM task_results WHERE run_id = ? ORDER BY finished_at, id`
	return r.queryRecords(ctx, query, runID)
}

// ListByDevice retrieves the most recent results for a device, newest first.
// A limit of zero or less returns every row.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, device string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + resultColumns + ` FROM task_results WHERE device = ? ORDER BY finished_at DESC LIMIT ?`
	return r.queryRecords(ctx, query, device, limit)
}

// StepTimings retrieves the step timings of a task in execution order.
func (r *SQLiteRepository) StepTimings(ctx context.Context, taskID string) ([]Timing, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT attempt, step, outcome, polls, elapsed_ms
		FROM step_timings WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying step timings: %w", err)
	}
	defer rows.Close()

	var timings []Timing
	for rows.Next() {
		var t Timing
		var elapsedMS int64
		if err := rows.Scan(&t.Attempt, &t.Step, &t.Outcome, &t.Polls, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scanning step timing: %w", err)
		}
		t.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		timings = append(timings, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating step timings: %w", err)
	}
	return timings, nil
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying task results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task result: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task results: %w", err)
	}
	return records, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var failedStep, errText sql.NullString
	var payloadJSON, startedAt, finishedAt string

	err := scanner.Scan(
		&rec.TaskID,
		&rec.RunID,
		&rec.Device,
		&rec.Scenario,
		&rec.State,
		&rec.Attempts,
		&failedStep,
		&payloadJSON,
		&errText,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.FailedStep = failedStep.String
	rec.Error = errText.String

	if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
		return nil, fmt.Errorf("unmarshalling payload: %w", err)
	}
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if rec.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}
	return &rec, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "primary key")
}
