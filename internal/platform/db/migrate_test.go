package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrationFile(t *testing.T, dir, name, sql string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
		t.Fatalf("write migration file: %v", err)
	}
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigrationFile(t, dir, "0002_overlap_guard.sql", "CREATE INDEX idx ON t (id);")
	writeMigrationFile(t, dir, "0001_schema.sql", "CREATE TABLE t (id INT);")

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("expected versions sorted 1, 2, got %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Name != "0001_schema.sql" {
		t.Errorf("expected first migration 0001_schema.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE t (id INT);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrationsSkipsNonNumeric(t *testing.T) {
	dir := t.TempDir()
	writeMigrationFile(t, dir, "0001_schema.sql", "CREATE TABLE t (id INT);")
	writeMigrationFile(t, dir, "readme_notes.sql", "-- not a migration")
	writeMigrationFile(t, dir, "notes.txt", "plain text")
	writeMigrationFile(t, dir, "nounderscores.sql", "SELECT 1;")

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
	if migrations[0].Version != 1 {
		t.Errorf("expected version 1, got %d", migrations[0].Version)
	}
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/path")
	if _, err := m.LoadMigrations(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLoadMigrationsIgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeMigrationFile(t, dir, "0001_schema.sql", "CREATE TABLE t (id INT);")
	if err := os.Mkdir(filepath.Join(dir, "0002_nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}
