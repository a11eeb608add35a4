package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	started_at     TEXT NOT NULL,
	finished_at    TEXT,
	config_json    TEXT NOT NULL,
	verdict        TEXT,
	reason         TEXT,
	total_rounds   INTEGER NOT NULL DEFAULT 0,
	best_round     INTEGER NOT NULL DEFAULT 0,
	best_composite REAL NOT NULL DEFAULT 0,
	report_json    TEXT
);

CREATE TABLE IF NOT EXISTS param_versions (
	version_id   TEXT PRIMARY KEY,
	parent_id    TEXT,
	run_id       TEXT NOT NULL,
	round        INTEGER NOT NULL,
	params_json  TEXT NOT NULL,
	composite    REAL NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES param_versions(version_id),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS active_params (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES param_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	previous_id   TEXT,
	promoted_at   TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES param_versions(version_id),
	FOREIGN KEY (previous_id) REFERENCES param_versions(version_id)
);

CREATE TABLE IF NOT EXISTS round_metrics (
	run_id        TEXT NOT NULL,
	round         INTEGER NOT NULL,
	snapshot_json TEXT NOT NULL,
	composite     REAL NOT NULL,
	verdict       TEXT NOT NULL,
	batch_size    INTEGER NOT NULL,
	evaluated     INTEGER NOT NULL,
	refresh       TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (run_id, round),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS feedback (
	id            TEXT PRIMARY KEY,
	sentence      TEXT NOT NULL,
	triplet_json  TEXT NOT NULL,
	rating        REAL NOT NULL,
	comment       TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	round         INTEGER NOT NULL,
	trigger_type  TEXT NOT NULL,
	snapshot_json TEXT,
	params_json   TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`
// #endregion schema

// #region store-struct
// Store persists runs, parameter versions, round metrics and feedback in
// SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, logger: logging.New("store")}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
