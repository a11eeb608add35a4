package logging

import (
	"bytes"
	"database/sql"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE provenance_log (
		run_id        TEXT NOT NULL,
		round         INTEGER NOT NULL,
		trigger_type  TEXT NOT NULL,
		snapshot_json TEXT,
		params_json   TEXT,
		decision      TEXT NOT NULL,
		reason        TEXT,
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:        "run-1",
		Round:        3,
		TriggerType:  "round",
		SnapshotJSON: `{"accuracy":0.8}`,
		ParamsJSON:   `{"temperature":0.3}`,
		Decision:     "continue",
		Reason:       "no stop rule matched",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var runID, decision string
	var round int
	db.QueryRow("SELECT run_id, round, decision FROM provenance_log").Scan(&runID, &round, &decision)
	if runID != "run-1" || round != 3 {
		t.Errorf("got run %q round %d", runID, round)
	}
	if decision != "continue" {
		t.Errorf("expected decision 'continue', got %q", decision)
	}
}

func TestLogDecision_ZeroCreatedAtAndNulls(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{RunID: "run-2", Round: 1, TriggerType: "refresh", Decision: "skipped"}
	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAt string
	var snapshot, reason sql.NullString
	db.QueryRow("SELECT created_at, snapshot_json, reason FROM provenance_log").Scan(&createdAt, &snapshot, &reason)
	if createdAt == "" {
		t.Error("expected created_at to be filled")
	}
	if snapshot.Valid || reason.Valid {
		t.Error("expected empty strings stored as NULL")
	}
}

func TestLogDecision_MissingTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := LogDecision(db, ProvenanceEntry{RunID: "x", TriggerType: "round", Decision: "continue"}); err == nil {
		t.Fatal("expected error without provenance_log table")
	}
}

// #endregion log-decision-tests

// #region logger-tests
func TestNewAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)

	Init(slog.LevelDebug, "text", &buf)
	New("evolution").Info("round done", "round", 2)

	out := buf.String()
	if !strings.Contains(out, "component=evolution") || !strings.Contains(out, "round=2") {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// #endregion logger-tests
