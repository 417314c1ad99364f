package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions, recorded in PRAGMA user_version:
// 0 - runs, actions, labels
// 1 - index on labels(reference_id, seq) for ordered lookups
const currentSchemaVersion = 1

// ErrDatabaseNotFound is returned by OpenExisting when path does not exist.
var ErrDatabaseNotFound = errors.New("database not found")

// pragma is a connection setting and the value PRAGMA reports once it is
// applied. inMemory, when set, is what an in-memory database reports instead.
type pragma struct {
	name, value, reported, inMemory string
}

// pragmas are applied on every open. A migration run writes the whole ledger
// in one transaction while read commands may be open, hence WAL. In-memory
// databases have no WAL and keep journal_mode=memory.
var pragmas = []pragma{
	{"journal_mode", "WAL", "wal", "memory"},
	{"synchronous", "NORMAL", "1", ""},
	{"busy_timeout", "5000", "5000", ""},
	{"foreign_keys", "ON", "1", ""},
}

// migrations[i] upgrades a database from user_version i to i+1.
var migrations = []func(*sql.Tx) error{
	migrateLabelIndex,
}

// Store holds the runs, action ledgers and label table of a workspace.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it if needed, and brings its
// schema up to date. Opening an existing database again is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// between the run insert and the ledger batch.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, isMemory(path)); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenExisting is like Open but fails with ErrDatabaseNotFound instead of
// creating a new database.
func OpenExisting(path string) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
	}
	return Open(path)
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isMemory reports whether path names an in-memory database.
func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:") || strings.Contains(path, "mode=memory")
}

func applyPragmas(db *sql.DB, inMemory bool) error {
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("failed to set %s: %w", p.name, err)
		}
	}
	for _, p := range pragmas {
		got, err := readPragma(db, p.name)
		if err != nil {
			return err
		}
		want := p.reported
		if inMemory && p.inMemory != "" {
			want = p.inMemory
		}
		if got != want {
			return fmt.Errorf("%s = %q, want %q", p.name, got, want)
		}
	}
	return nil
}

func readPragma(db *sql.DB, name string) (string, error) {
	var value string
	if err := db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return value, nil
}

// applySchema creates missing tables, then runs each pending migration in
// its own transaction together with the user_version bump.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	for v := version; v < currentSchemaVersion && v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// migrateLabelIndex orders label lookups by import sequence. Label tables
// imported before v1 were read by reference id only.
func migrateLabelIndex(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_labels_reference_seq ON labels(reference_id, seq)`)
	return err
}
