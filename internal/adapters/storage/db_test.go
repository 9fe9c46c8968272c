package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// getTableNames returns sorted table names from sqlite_master, excluding internal tables.
func getTableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan table name: %v", err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// expectedTables is the sorted list of tables after all migrations.
var expectedTables = []string{
	"registration",
	"schema_version",
	"slot",
	"users",
}

// TestMigrateDB_Fresh verifies all migrations apply cleanly to an empty database.
func TestMigrateDB_Fresh(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("MigrateDB failed on fresh db: %v", err)
	}

	version, err := SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != LatestSchemaVersion() {
		t.Errorf("version = %d, want %d", version, LatestSchemaVersion())
	}

	tables := getTableNames(t, db)
	if strings.Join(tables, ",") != strings.Join(expectedTables, ",") {
		t.Errorf("tables = %v, want %v", tables, expectedTables)
	}
}

// TestMigrateDB_Idempotent verifies that running MigrateDB twice keeps the version.
func TestMigrateDB_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("first MigrateDB failed: %v", err)
	}
	version1, _ := SchemaVersion(db)

	if err := MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("second MigrateDB failed: %v", err)
	}
	version2, _ := SchemaVersion(db)
	if version1 != version2 {
		t.Errorf("version changed after idempotent run: %d -> %d", version1, version2)
	}
}

// TestMigrateDB_VersionProgression reports 0 before migration and latest after.
func TestMigrateDB_VersionProgression(t *testing.T) {
	db := openTestDB(t)

	v, err := SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != 0 {
		t.Errorf("initial version = %d, want 0", v)
	}
	if LatestSchemaVersion() < 2 {
		t.Errorf("LatestSchemaVersion = %d, want >= 2", LatestSchemaVersion())
	}

	if err := MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("MigrateDB failed: %v", err)
	}
	v, _ = SchemaVersion(db)
	if v != LatestSchemaVersion() {
		t.Errorf("post-migration version = %d, want %d", v, LatestSchemaVersion())
	}
}

// TestMigrateDB_Constraints checks the unique keys the stores rely on.
func TestMigrateDB_Constraints(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("MigrateDB failed: %v", err)
	}

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := db.Exec(q, args...); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
	mustExec(`INSERT INTO slot (id, date, created_at, updated_at) VALUES ('s1', '2025-12-10T19:00:00Z', 'x', 'x')`)
	_, err := db.Exec(`INSERT INTO slot (id, date, created_at, updated_at) VALUES ('s2', '2025-12-10T19:00:00Z', 'x', 'x')`)
	if !IsUniqueViolation(err) {
		t.Errorf("duplicate slot date: err = %v, want unique violation", err)
	}

	mustExec(`INSERT INTO registration (slot_id, user_id, created_by, position, registered_at) VALUES ('s1', 'u1', 'u1', 1, 'x')`)
	_, err = db.Exec(`INSERT INTO registration (slot_id, user_id, created_by, position, registered_at) VALUES ('s1', 'u1', 'u1', 2, 'x')`)
	if !IsUniqueViolation(err) {
		t.Errorf("duplicate registration: err = %v, want unique violation", err)
	}

	mustExec(`INSERT INTO users (id, display_name, first_name, last_name, email, registration_date) VALUES ('u1', 'Rui', 'R', 'C', 'r@x', 'x')`)
	_, err = db.Exec(`INSERT INTO users (id, display_name, first_name, last_name, email, registration_date) VALUES ('u2', 'RUI', 'R', 'C', 'r2@x', 'x')`)
	if !IsUniqueViolation(err) {
		t.Errorf("display name differing in case: err = %v, want unique violation", err)
	}
}

// TestMigrateDB_BackupOnUpgrade copies an existing file database before migrating it.
func TestMigrateDB_BackupOnUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.db")
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	// Simulate a database stuck at version 1.
	if _, err := db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TEXT NOT NULL)`); err != nil {
		t.Fatalf("create schema_version: %v", err)
	}
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if err := applyMigration(db, ms[0]); err != nil {
		t.Fatalf("apply first migration: %v", err)
	}

	if err := MigrateDB(db, path); err != nil {
		t.Fatalf("MigrateDB: %v", err)
	}
	if _, err := os.Stat(path + ".bak-v1"); err != nil {
		t.Errorf("expected backup file: %v", err)
	}
	v, _ := SchemaVersion(db)
	if v != LatestSchemaVersion() {
		t.Errorf("version = %d, want %d", v, LatestSchemaVersion())
	}
}

// TestExtractUp ignores the down section.
func TestExtractUp(t *testing.T) {
	got := extractUp("-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;\n")
	if strings.Contains(got, "DROP") || !strings.Contains(got, "CREATE TABLE a") {
		t.Errorf("extractUp = %q", got)
	}
	if extractUp("SELECT 1;") != "SELECT 1;" {
		t.Error("content without markers should pass through")
	}
}

// TestFormatTime_RoundTrip keeps the instant and sorts lexically.
func TestFormatTime_RoundTrip(t *testing.T) {
	loc := time.FixedZone("UTC+13", 13*3600)
	in := time.Date(2025, 12, 10, 19, 0, 0, 0, loc)
	s := FormatTime(in)
	if s != "2025-12-10T06:00:00Z" {
		t.Errorf("FormatTime = %q", s)
	}
	out, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
	if FormatTime(in) >= FormatTime(in.Add(time.Hour)) {
		t.Error("lexical order does not follow time order")
	}
}
