package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() #%d failed: %v", i+1, err)
		}
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
			t.Errorf("query failed: %v", err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		got, err := readPragma(s.db, tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.expected {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestOpen_MigrationCreatesLabelIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_labels_reference_seq'`).Scan(&name)
	if err != nil {
		t.Fatalf("label index missing: %v", err)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on empty store = %v", err)
	}
}

func TestOpenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	_, err := OpenExisting(path)
	if !errors.Is(err, ErrDatabaseNotFound) {
		t.Fatalf("OpenExisting() on missing file = %v, want ErrDatabaseNotFound", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("OpenExisting created the database")
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	s, err = OpenExisting(path)
	if err != nil {
		t.Fatalf("OpenExisting() failed: %v", err)
	}
	s.Close()
}

func TestOpen_MigratesVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s := createTestStoreAt(t, path)
	if _, err := s.db.Exec("DROP INDEX idx_labels_reference_seq"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s = createTestStoreAt(t, path)
	if got, _ := readPragma(s.db, "user_version"); got != "1" {
		t.Errorf("user_version = %q, want 1", got)
	}
	var name string
	if err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_labels_reference_seq'`).Scan(&name); err != nil {
		t.Errorf("label index not recreated: %v", err)
	}
}

func createTestStoreAt(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	if got, _ := readPragma(s.db, "journal_mode"); got != "memory" {
		t.Errorf("journal_mode = %q, want memory", got)
	}
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM labels").Scan(&count); err != nil {
		t.Errorf("schema not applied: %v", err)
	}
}

func TestIsMemory(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{":memory:", true},
		{"file::memory:?cache=shared", true},
		{"file:ledger?mode=memory", true},
		{"opinionated.db", false},
	}
	for _, tt := range tests {
		if got := isMemory(tt.path); got != tt.want {
			t.Errorf("isMemory(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
