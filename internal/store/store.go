package store

// #region imports
import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// #endregion imports

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS missed_attacks (
	id                  TEXT PRIMARY KEY,
	text                TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	detected_at_intake  INTEGER NOT NULL DEFAULT 0,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS learned_patterns (
	id          TEXT PRIMARY KEY,
	attack_id   TEXT NOT NULL,
	text        TEXT NOT NULL,
	technique   TEXT NOT NULL,
	confidence  REAL NOT NULL,
	FOREIGN KEY (attack_id) REFERENCES missed_attacks(id)
);

CREATE TABLE IF NOT EXISTS learned_keywords (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	token                TEXT NOT NULL,
	frequency            INTEGER NOT NULL,
	source_variation_id  TEXT NOT NULL,
	FOREIGN KEY (source_variation_id) REFERENCES learned_patterns(id)
);

CREATE TABLE IF NOT EXISTS learning_metrics (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp              TEXT NOT NULL,
	attacks_total          INTEGER NOT NULL,
	attacks_processed      INTEGER NOT NULL,
	variations             INTEGER NOT NULL,
	keywords               INTEGER NOT NULL,
	detection_rate_before  REAL NOT NULL,
	detection_rate_after   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS rule_set_versions (
	version_id     TEXT PRIMARY KEY,
	parent_id      TEXT,
	secret         TEXT NOT NULL,
	keyword_table  TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES rule_set_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_rule_set (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	version_id  TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES rule_set_versions(version_id)
);

CREATE TABLE IF NOT EXISTS learning_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	attack_id   TEXT,
	version_id  TEXT,
	decision    TEXT NOT NULL,
	reason      TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patterns_attack ON learned_patterns(attack_id);
CREATE INDEX IF NOT EXISTS idx_keywords_token ON learned_keywords(token);
CREATE INDEX IF NOT EXISTS idx_attacks_status ON missed_attacks(status);
`

// #endregion schema

// #region errors

// PersistenceError wraps a storage failure. Retryable marks write-contention
// failures the caller may retry with backoff; everything else is fatal.
type PersistenceError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// wrapErr classifies a database error. SQLite reports bounded-wait write
// contention as SQLITE_BUSY / "database is locked" once busy_timeout expires.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	retryable := strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
	return &PersistenceError{Op: op, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a retryable persistence failure.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Retryable
}

// #endregion errors

// #region store-struct

// Store is the durable pattern store: missed attacks, variations, learned
// keywords, metrics snapshots, and published rule set versions in SQLite.
// The learning engine is the only writer.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens (or creates) the SQLite database and runs migrations.
// WAL keeps detector-side reads from serializing behind engine writes;
// busy_timeout bounds how long contending writers wait before failing
// with a retryable error.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-open connection. Used by tests that need
// to reach under the store.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. the
// audit log).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close
