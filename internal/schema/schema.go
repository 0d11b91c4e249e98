// Package schema opens the engine's single relational store (state.db) and
// applies the durable schema described by the specification. It follows the
// same WAL-mode, single-writer-connection idiom as the corpus's SQLite-backed
// queue: one exclusive writer connection serializes every mutation, and the
// schema is applied with idempotent CREATE TABLE IF NOT EXISTS statements so
// opening an existing database is always safe.
package schema

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver with database/sql
)

// Open opens (or creates) the SQLite database at path, enables WAL journal
// mode, applies the schema, and returns the handle. Passing ":memory:" opens
// a private in-memory database, suitable for hermetic tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %q: %w", path, err)
	}

	// SQLite allows a single writer; capping the pool at one connection means
	// every write serializes through this connection instead of racing into
	// "database is locked" errors when multiple goroutines append events,
	// run jobs, and run GC concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: set synchronous = NORMAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: enable foreign keys: %w", err)
	}

	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: apply schema: %w", err)
	}

	return db, nil
}

// ddl is the full schema, version 1. Field semantics are normative per the
// specification's relational schema section; table/column names are the
// illustrative ones it suggests.
const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id  TEXT PRIMARY KEY,
    label       TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    closed_at   TEXT,
    head_seq    INTEGER NOT NULL DEFAULT 0,
    head_hash   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
    session_id       TEXT NOT NULL,
    seq              INTEGER NOT NULL,
    event_id         TEXT NOT NULL UNIQUE,
    event_type       TEXT NOT NULL,
    payload_canon_json TEXT NOT NULL,
    prev_event_hash  TEXT,
    event_hash       TEXT NOT NULL,
    created_at       TEXT NOT NULL,
    PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_events_session_seq ON events (session_id, seq);

CREATE TABLE IF NOT EXISTS assets (
    asset_id   TEXT PRIMARY KEY,
    rel_path   TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
    job_id       TEXT PRIMARY KEY,
    job_type     TEXT NOT NULL,
    session_id   TEXT,
    status       TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    started_at   TEXT,
    ended_at     TEXT,
    progress_json TEXT,
    error_json   TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);

CREATE TABLE IF NOT EXISTS ocr_blocks (
    session_id    TEXT NOT NULL,
    frame_event_id TEXT NOT NULL,
    ocr_block_id  TEXT PRIMARY KEY,
    frame_ms      INTEGER NOT NULL,
    text          TEXT NOT NULL,
    bbox_json     TEXT NOT NULL,
    confidence    REAL NOT NULL,
    language      TEXT
);
CREATE INDEX IF NOT EXISTS idx_ocr_blocks_session_frame ON ocr_blocks (session_id, frame_ms);

CREATE TABLE IF NOT EXISTS exports (
    export_id         TEXT PRIMARY KEY,
    session_id        TEXT NOT NULL,
    bundle_type       TEXT NOT NULL,
    output_path       TEXT NOT NULL,
    manifest_asset_id TEXT NOT NULL,
    bundle_hash       TEXT NOT NULL,
    warnings_json     TEXT NOT NULL DEFAULT '[]',
    created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS verifiers (
    verifier_id TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    spec_json   TEXT NOT NULL,
    enabled     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS verifier_runs (
    run_id      TEXT PRIMARY KEY,
    verifier_id TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    status      TEXT NOT NULL,
    result_asset_id TEXT,
    logs_asset_id   TEXT,
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS models (
    model_id   TEXT PRIMARY KEY,
    provider   TEXT NOT NULL,
    label      TEXT NOT NULL,
    digest     TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS model_roles (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    tutorial_generation TEXT,
    screen_explainer    TEXT,
    anchor_grounding    TEXT
);

CREATE TABLE IF NOT EXISTS benchmarks (
    bench_id   TEXT PRIMARY KEY,
    model_id   TEXT NOT NULL,
    score      REAL NOT NULL,
    created_at TEXT NOT NULL
);
`
