package results

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/packpilot/internal/automation"
	"github.com/nerrad567/packpilot/internal/infrastructure/config"
	"github.com/nerrad567/packpilot/internal/infrastructure/database"
	"github.com/nerrad567/packpilot/internal/worker"
	"github.com/nerrad567/packpilot/migrations"
)

// setupTestRepo opens a migrated SQLite database in a temp directory.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "results.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func success(taskID, device, nick, friendID string, finished time.Time) worker.Result {
	return worker.Result{
		TaskID:   taskID,
		Device:   device,
		Scenario: automation.KindPackGather,
		State:    worker.StateSuccess,
		Attempts: 1,
		Payload: map[string]string{
			automation.PayloadNickname: nick,
			automation.PayloadFriendID: friendID,
		},
		Started:  finished.Add(-time.Minute),
		Finished: finished,
	}
}

func TestLine(t *testing.T) {
	now := time.Now()
	failed := success("t2", "d", "Ash", "123", now)
	failed.State = worker.StateFailed
	noID := success("t3", "d", "Ash", "", now)

	tests := []struct {
		name string
		res  worker.Result
		want string
		ok   bool
	}{
		{"success", success("t1", "d", "Ash", "1234-5678", now), "Ash, 1234-5678", true},
		{"failed", failed, "", false},
		{"missing friend id", noID, "", false},
		{"no payload", worker.Result{State: worker.StateSuccess}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Line(tt.res)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Line() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAppendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.txt")
	now := time.Now()

	failed := success("t2", "d2", "Misty", "2", now)
	failed.State = worker.StateCancelled

	n, err := AppendFile(path, []worker.Result{success("t1", "d1", "Ash", "1", now), failed})
	if err != nil {
		t.Fatalf("AppendFile() error = %v", err)
	}
	if n != 1 {
		t.Errorf("AppendFile() wrote %d lines, want 1", n)
	}

	if _, err := AppendFile(path, []worker.Result{success("t3", "d3", "Brock", "3", now)}); err != nil {
		t.Fatalf("AppendFile() second call error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading results file: %v", err)
	}
	if want := "Ash, 1\nBrock, 3\n"; string(data) != want {
		t.Errorf("results file = %q, want %q", data, want)
	}
}

func TestAppendFile_NothingToWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")

	n, err := AppendFile(path, nil)
	if err != nil || n != 0 {
		t.Fatalf("AppendFile(nil) = %d, %v; want 0, nil", n, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("results file created with nothing to write")
	}
}

func TestSQLiteRepository_SaveAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	finished := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)

	res := success("task-1", "127.0.0.1:5555", "Ash", "1234", finished)
	res.Attempts = 2
	res.Steps = []worker.StepTiming{
		{Attempt: 1, StepReport: automation.StepReport{Name: "opening:tap", Outcome: automation.StepOutcomeFailed, Polls: 20, Elapsed: 2 * time.Second}},
		{Attempt: 2, StepReport: automation.StepReport{Name: "opening:tap", Outcome: automation.StepOutcomeCompleted, Polls: 3, Elapsed: 300 * time.Millisecond}},
		{Attempt: 2, StepReport: automation.StepReport{Name: "copy_id:copy", Outcome: automation.StepOutcomeCompleted, Polls: 1, Elapsed: 150 * time.Millisecond}},
	}

	if err := repo.Save(ctx, "run-1", res); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RunID != "run-1" || got.Device != res.Device || got.State != string(worker.StateSuccess) {
		t.Errorf("Get() = %+v", got)
	}
	if got.Attempts != 2 || got.Scenario != string(automation.KindPackGather) {
		t.Errorf("Get() attempts/scenario = %d/%s", got.Attempts, got.Scenario)
	}
	if got.Payload[automation.PayloadFriendID] != "1234" {
		t.Errorf("Get() payload = %v", got.Payload)
	}
	if !got.FinishedAt.Equal(finished) {
		t.Errorf("Get() FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
	if got.FailedStep != "" || got.Error != "" {
		t.Errorf("Get() failure fields = %q/%q, want empty", got.FailedStep, got.Error)
	}

	timings, err := repo.StepTimings(ctx, "task-1")
	if err != nil {
		t.Fatalf("StepTimings() error = %v", err)
	}
	if len(timings) != 3 {
		t.Fatalf("StepTimings() len = %d, want 3", len(timings))
	}
	if timings[0].Attempt != 1 || timings[0].Outcome != "failed" || timings[0].Polls != 20 {
		t.Errorf("timings[0] = %+v", timings[0])
	}
	if timings[2].Step != "copy_id:copy" || timings[2].Elapsed != 150*time.Millisecond {
		t.Errorf("timings[2] = %+v", timings[2])
	}
}

func TestSQLiteRepository_SaveFailure(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	res := worker.Result{
		TaskID:     "task-f",
		Device:     "emu-1",
		Scenario:   automation.KindFriendAdd,
		State:      worker.StateFailed,
		Attempts:   3,
		FailedStep: "friend_add:open",
		Err:        automation.ErrMatchTimeout,
		Started:    time.Now().Add(-time.Second),
		Finished:   time.Now(),
	}
	if err := repo.Save(ctx, "run-2", res); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Get(ctx, "task-f")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.FailedStep != "friend_add:open" || got.Error != automation.ErrMatchTimeout.Error() {
		t.Errorf("Get() failure fields = %q/%q", got.FailedStep, got.Error)
	}
	if len(got.Payload) != 0 {
		t.Errorf("Get() payload = %v, want empty", got.Payload)
	}
}

func TestSQLiteRepository_Errors(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrResultNotFound", err)
	}

	if err := repo.Save(ctx, "run", worker.Result{Device: "d"}); !errors.Is(err, ErrInvalidResult) {
		t.Errorf("Save(no id) error = %v, want ErrInvalidResult", err)
	}

	res := success("dup", "d", "Ash", "1", time.Now())
	if err := repo.Save(ctx, "run", res); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Save(ctx, "run", res); !errors.Is(err, ErrResultExists) {
		t.Errorf("Save(duplicate) error = %v, want ErrResultExists", err)
	}
}

func TestSQLiteRepository_Lists(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	saves := []struct {
		run string
		res worker.Result
	}{
		{"run-a", success("t1", "d1", "A", "1", base.Add(2*time.Second))},
		{"run-a", success("t2", "d2", "B", "2", base.Add(1*time.Second))},
		{"run-b", success("t3", "d1", "C", "3", base.Add(3*time.Second))},
		{"run-b", success("t4", "d1", "D", "4", base.Add(3500*time.Millisecond))},
	}
	for _, s := range saves {
		if err := repo.Save(ctx, s.run, s.res); err != nil {
			t.Fatalf("Save(%s) error = %v", s.res.TaskID, err)
		}
	}

	byRun, err := repo.ListByRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("ListByRun() error = %v", err)
	}
	if len(byRun) != 2 || byRun[0].TaskID != "t2" || byRun[1].TaskID != "t1" {
		t.Errorf("ListByRun() = %v, want [t2 t1]", taskIDs(byRun))
	}

	byDevice, err := repo.ListByDevice(ctx, "d1", 2)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(byDevice) != 2 || byDevice[0].TaskID != "t4" || byDevice[1].TaskID != "t3" {
		t.Errorf("ListByDevice(limit 2) = %v, want [t4 t3]", taskIDs(byDevice))
	}

	all, err := repo.ListByDevice(ctx, "d1", 0)
	if err != nil {
		t.Fatalf("ListByDevice(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListByDevice(0) len = %d, want 3", len(all))
	}
}

func taskIDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.TaskID
	}
	return ids
}
