package db_test

import (
	"path/filepath"
	"testing"

	"soartrack/pkg/db"
)

func TestDB(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "db_test.db")

	d, err := db.Init(path)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if d == nil {
		t.Fatal("Init() returned nil DB")
	}

	// kv table usable
	if _, err := d.Exec("INSERT INTO kv (key, value) VALUES (?, ?)", "k", []byte("v")); err != nil {
		t.Errorf("kv insert failed: %v", err)
	}

	d.Close()

	// Re-open: migrations idempotent
	d2, err := db.Init(path)
	if err != nil {
		t.Fatalf("re-Init() failed: %v", err)
	}
	var val []byte
	if err := d2.QueryRow("SELECT value FROM kv WHERE key = ?", "k").Scan(&val); err != nil {
		t.Errorf("kv read-back failed: %v", err)
	}
	if string(val) != "v" {
		t.Errorf("Expected 'v', got %q", val)
	}
	d2.Close()
}
