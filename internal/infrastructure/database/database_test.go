package database

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestOpen_CreatesFileAndConnects(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if db.Path() == "" {
		t.Error("Path is empty")
	}
}

func TestOpen_CreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "test.db")

	db, err := Open(context.Background(), Config{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open with missing directory: %v", err)
	}
	defer db.Close()
}

func TestClose_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	// sql.DB.Close is safe to call twice.
	if err := db.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"20260315_120000_initial_schema.up.sql", "20260315_120000", true, true},
		{"20260315_120000_initial_schema.down.sql", "20260315_120000", false, true},
		{"README.md", "", false, false},
		{"noversion.sql", "", false, false},
		{"20260315_120000_x.sql", "", false, false},
	}

	for _, tt := range tests {
		version, isUp, ok := parseMigrationFilename(tt.name)
		if ok != tt.wantOK {
			t.Errorf("parseMigrationFilename(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if version != tt.wantVersion || isUp != tt.wantUp {
			t.Errorf("parseMigrationFilename(%q) = (%q, %v), want (%q, %v)",
				tt.name, version, isUp, tt.wantVersion, tt.wantUp)
		}
	}
}

func TestExtractMigrationName(t *testing.T) {
	if got := extractMigrationName("20260315_120000_initial_schema.up.sql"); got != "initial_schema" {
		t.Errorf("extractMigrationName = %q, want initial_schema", got)
	}
}
