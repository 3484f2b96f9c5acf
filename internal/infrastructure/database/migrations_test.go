package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
)

var testMigrations = fstest.MapFS{
	"20260301_090000_runs.up.sql": {Data: []byte(
		"CREATE TABLE test_runs (id TEXT PRIMARY KEY, device TEXT NOT NULL);")},
	"20260301_090000_runs.down.sql": {Data: []byte("DROP TABLE test_runs;")},
	"20260302_120000_index.up.sql": {Data: []byte(
		"CREATE INDEX idx_test_runs_device ON test_runs(device);")},
	"README.md": {Data: []byte("ignored")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count > 0
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_runs") || !tableExists(t, db, "idx_test_runs_device") {
		t.Fatal("Migrate() did not create schema objects")
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("status = %d applied, %d pending; want 2, 0", len(applied), len(pending))
	}

	// Idempotent.
	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureKeepsEarlierAndStops(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260301_090000_runs.up.sql": testMigrations["20260301_090000_runs.up.sql"],
		"20260302_120000_broken.up.sql": {Data: []byte(
			"CREATE TABLE half_done (id TEXT); INSERT INTO no_such_table VALUES (1);")},
		"20260303_080000_later.up.sql": {Data: []byte("CREATE TABLE later (id TEXT);")},
	}

	err := db.Migrate(ctx, fsys)
	if err == nil {
		t.Fatal("Migrate() error = nil, want failure on broken migration")
	}
	if !strings.Contains(err.Error(), "20260302_120000") {
		t.Errorf("Migrate() error = %v, want failing version named", err)
	}

	if !tableExists(t, db, "test_runs") {
		t.Error("earlier migration was not kept")
	}
	if tableExists(t, db, "half_done") {
		t.Error("failed migration was not rolled back")
	}
	if tableExists(t, db, "later") {
		t.Error("migration after the failure was applied")
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || applied[0].Version != "20260301_090000" {
		t.Errorf("applied = %+v, want only 20260301_090000", applied)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	runsOnly := fstest.MapFS{
		"20260301_090000_runs.up.sql":   testMigrations["20260301_090000_runs.up.sql"],
		"20260301_090000_runs.down.sql": testMigrations["20260301_090000_runs.down.sql"],
	}
	if err := db.Migrate(ctx, runsOnly); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, runsOnly); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_runs") {
		t.Error("MigrateDown() left test_runs in place")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, runsOnly); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations); err == nil {
		t.Error("MigrateDown() without down SQL succeeded, want error")
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

func TestLoadMigrations_OrphanDown(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301_090000_runs.down.sql": {Data: []byte("DROP TABLE x;")},
	}
	if _, err := LoadMigrations(fsys); err == nil {
		t.Error("LoadMigrations() accepted a down file without up, want error")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
		up      bool
		ok      bool
	}{
		{"20260301_090000_task_results.up.sql", "20260301_090000", "task_results", true, true},
		{"20260301_090000_task_results.down.sql", "20260301_090000", "task_results", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true, true},
		{"notes.sql", "", "", false, false},
		{"20260301_090000_x.up.txt", "", "", false, false},
		{"single.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.file)
			if version != tt.version || name != tt.name || up != tt.up || ok != tt.ok {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v, %v; want %q, %q, %v, %v",
					tt.file, version, name, up, ok, tt.version, tt.name, tt.up, tt.ok)
			}
		})
	}
}
