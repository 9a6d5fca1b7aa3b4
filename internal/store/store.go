package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade a database created from schemaSQL. Entry i moves
// user_version from i to i+1. Append only.
var migrations = []struct {
	name string
	stmt string
}{
	{
		// DiffRuns looks up one fixture's verdict in two runs.
		name: "index verdicts by fixture",
		stmt: `CREATE INDEX IF NOT EXISTS idx_verdicts_fixture ON verdicts(fixture, run_id)`,
	},
	{
		name: "record parser source per run",
		stmt: `ALTER TABLE runs ADD COLUMN source TEXT NOT NULL DEFAULT ''`,
	},
	{
		// Databases created before this version have UNIQUE (run_id, fixture),
		// which rejects a run holding the same name in both sets.
		name: "identify verdicts by name and label",
		stmt: `
			CREATE TABLE verdicts_v3 (
				run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				seq             INTEGER NOT NULL,
				fixture         TEXT NOT NULL,
				expected_accept INTEGER NOT NULL CHECK (expected_accept IN (0, 1)),
				exit_code       INTEGER NOT NULL,
				verdict         TEXT NOT NULL CHECK (verdict IN ('Pass', 'Fail')),
				PRIMARY KEY (run_id, seq)
			);
			INSERT INTO verdicts_v3 (run_id, seq, fixture, expected_accept, exit_code, verdict)
				SELECT run_id, seq, fixture, expected_accept, exit_code, verdict FROM verdicts;
			DROP TABLE verdicts;
			ALTER TABLE verdicts_v3 RENAME TO verdicts;
			CREATE INDEX idx_verdicts_fixture ON verdicts(fixture, expected_accept, run_id);
		`,
	},
}

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = len(migrations)

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path and brings its schema
// up to date. Opening an existing database is safe and leaves its rows
// untouched.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and pragmas are
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. A zero Store closes cleanly.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	for ; version < currentSchemaVersion; version++ {
		if err := migrate(db, version+1); err != nil {
			return err
		}
	}
	return nil
}

// migrate applies the migration to version and records it, atomically.
func migrate(db *sql.DB, version int) error {
	m := migrations[version-1]

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d: begin tx: %w", version, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.Exec(m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", version, m.name, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("migrate to v%d: set user_version: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate to v%d: commit: %w", version, err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
