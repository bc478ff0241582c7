package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a database that was created by an older schema.sql.
// Steps run in order and each one must be a no-op on a fresh database.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations is the schema history. user_version records the last applied step:
// 0 - initial world model and cycle tables
// 1 - index on assignments(status, target) for in-flight market lookups
// 2 - index on assignments(status, agent) for dispatched agent lookups
var migrations = []migration{
	{1, "in-flight index", `CREATE INDEX IF NOT EXISTS idx_assignments_status ON assignments(status, target)`},
	{2, "dispatched index", `CREATE INDEX IF NOT EXISTS idx_assignments_agent ON assignments(status, agent)`},
}

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = migrations[len(migrations)-1].version

// pragmas are applied to every connection the store opens.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},   // readers do not block the cycle writer
	{"synchronous", "NORMAL"}, // WAL makes NORMAL safe against corruption
	{"busy_timeout", "5000"},  // wait out a concurrent complete command
	{"foreign_keys", "ON"},    // assignments reference their cycle
}

// Store provides durable storage for the world model, fleet locks and cycle
// history. One Store is shared by the planner and the completion path.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path, applying the
// pragmas and any pending migrations. Opening an up to date database is a
// no-op, so every command can call it unconditionally. ":memory:" gives a
// private database for tests and scenarios.
func Open(path string) (*Store, error) {
	// sql.Open is lazy; the file is created on first use
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: a single writer avoids SQLITE_BUSY, and ":memory:"
	// databases are per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // never recycle, or an in-memory world is lost

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

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	for _, p := range pragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// applySchema creates missing tables, then brings the indexes up to date.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
	}

	// Downgrades are not supported; a newer database keeps its version
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma reads back as expected.
// Used for testing.
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

// toUnix stores zero time as 0.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
