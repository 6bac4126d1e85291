package migrations_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/twilner89/campfire-alpha/internal/database"
	"github.com/twilner89/campfire-alpha/internal/migrations"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func hasColumn(t *testing.T, db *sql.DB, table, column string) bool {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("table_info %s: %v", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if name == column {
			return true
		}
	}
	return false
}

func TestMigrations(t *testing.T) {
	db := openDB(t)

	if err := migrations.Run(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	// Verify all tables exist by querying sqlite_master.
	want := []string{"profiles", "series_bibles", "episodes", "submissions", "path_options", "votes", "game_state"}

	for _, table := range want {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
	if !hasColumn(t, db, "path_options", "source_submission_ids") {
		t.Error("path_options.source_submission_ids missing after full migration")
	}
	if !hasColumn(t, db, "profiles", "has_access") {
		t.Error("profiles.has_access missing after full migration")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := openDB(t)

	if err := migrations.Run(db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(db); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}

func TestRunToCoreOnly(t *testing.T) {
	db := openDB(t)

	if err := migrations.RunTo(db, 1); err != nil {
		t.Fatalf("running core migration: %v", err)
	}
	if hasColumn(t, db, "game_state", "current_series_bible_id") {
		t.Error("current_series_bible_id present before attribution migration")
	}
	if !hasColumn(t, db, "game_state", "is_transitioning") {
		t.Error("is_transitioning missing from core schema")
	}
}
