// Package eventlog implements the per-session, hash-chained, append-only
// event log. It is the single source of truth the replay/projection layer
// folds over: every step, anchor, evidence item, and runbook the engine ever
// produces is derived purely from this log (I5).
//
// The chain formula (I2) is:
//
//	event_hash = blake3_hex("{session_id}\n{seq}\n{event_type}\n{payload_canon_json}\n{prev_or_GENESIS}\n")
//
// The genesis event (seq=1) always chains against the sentinel "GENESIS",
// regardless of how the session row's head_hash was initialized at creation
// time — see Open Question in the design notes: the two never need to be
// reconciled, because the chain recomputation never reads the pre-first-event
// head_hash value at all.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evidencerec/core/internal/canon"
	"github.com/evidencerec/core/internal/errs"
)

// GenesisSentinel is the literal prev-hash value the first event in any
// session's chain is hashed against.
const GenesisSentinel = "GENESIS"

// Session is one row of the sessions table.
type Session struct {
	SessionID string
	Label     string
	CreatedAt time.Time
	ClosedAt  *time.Time
	HeadSeq   int64
	HeadHash  string
}

// Event is one row of the events table.
type Event struct {
	SessionID        string
	Seq              int64
	EventID          string
	EventType        EventType
	PayloadCanonJSON string
	PrevEventHash    *string
	EventHash        string
	CreatedAt        time.Time
}

// CrashPoint names a point at which AppendEvent can be made to abort for
// crash-safety tests, mirroring the specification's injection points.
type CrashPoint int

const (
	// CrashPointNone means AppendEvent runs to completion normally.
	CrashPointNone CrashPoint = iota
	// CrashPointAfterEventInsertBeforeCommit aborts after the event row has
	// been inserted into the open transaction but before the session head is
	// upserted and the transaction committed. The transaction is rolled
	// back, so neither the event row nor the head advance survive.
	CrashPointAfterEventInsertBeforeCommit
)

// Log is the event log. It wraps the shared relational store handle; all
// writes to a given session serialize through that session's row, which
// AppendEvent locks implicitly by reading-then-writing it inside one
// transaction.
type Log struct {
	db      *sql.DB
	crashAt CrashPoint
}

// New wraps db as an event log.
func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// WithCrashPoint returns a copy of l that aborts AppendEvent at the given
// point. Intended only for crash-safety tests.
func (l *Log) WithCrashPoint(cp CrashPoint) *Log {
	cpy := *l
	cpy.crashAt = cp
	return &cpy
}

// CreateSession inserts a new session row. Per the design notes, head_hash is
// initialized to a derivative of (session_id, label), but this value never
// participates in the hash chain: the genesis event hashes against
// GenesisSentinel regardless. head_seq starts at 0.
func CreateSession(ctx context.Context, db *sql.DB, label string) (Session, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	initialHeadHash := canon.Hash([]byte(id + "\n" + label))

	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, label, created_at, closed_at, head_seq, head_hash)
		VALUES (?, ?, ?, NULL, 0, ?)`,
		id, label, now.Format(time.RFC3339Nano), initialHeadHash,
	)
	if err != nil {
		return Session{}, errs.NewDB(err, "eventlog: create session")
	}

	return Session{
		SessionID: id,
		Label:     label,
		CreatedAt: now,
		HeadSeq:   0,
		HeadHash:  initialHeadHash,
	}, nil
}

// GetSession reads a session row by id.
func GetSession(ctx context.Context, db *sql.DB, sessionID string) (Session, error) {
	var s Session
	var createdAt string
	var closedAt sql.NullString
	row := db.QueryRowContext(ctx, `
		SELECT session_id, label, created_at, closed_at, head_seq, head_hash
		FROM sessions WHERE session_id = ?`, sessionID)
	if err := row.Scan(&s.SessionID, &s.Label, &createdAt, &closedAt, &s.HeadSeq, &s.HeadHash); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, errs.NewNotFound("eventlog: session %q not found", sessionID)
		}
		return Session{}, errs.NewDB(err, "eventlog: get session %q", sessionID)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Session{}, errs.NewInternal("eventlog: parse created_at: %v", err)
	}
	s.CreatedAt = t
	if closedAt.Valid {
		ct, err := time.Parse(time.RFC3339Nano, closedAt.String)
		if err != nil {
			return Session{}, errs.NewInternal("eventlog: parse closed_at: %v", err)
		}
		s.ClosedAt = &ct
	}
	return s, nil
}

// CloseSession stamps closed_at on a session row.
func CloseSession(ctx context.Context, db *sql.DB, sessionID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := db.ExecContext(ctx, `UPDATE sessions SET closed_at = ? WHERE session_id = ?`, now, sessionID)
	if err != nil {
		return errs.NewDB(err, "eventlog: close session %q", sessionID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NewNotFound("eventlog: session %q not found", sessionID)
	}
	return nil
}

// AppendEvent commits one new event to sessionID's chain, transactionally
// advancing the session head. It follows the specification's six steps:
// read head, compute seq/hash, insert event row, (test-only abort point),
// upsert head, commit.
func (l *Log) AppendEvent(ctx context.Context, sessionID string, eventType EventType, payload any) (Event, error) {
	payloadJSON, err := canon.MarshalToString(payload)
	if err != nil {
		return Event{}, errs.NewValidationFailed("eventlog: canonicalize payload: %v", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, errs.NewDB(err, "eventlog: begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var headSeq int64
	var headHash string
	row := tx.QueryRowContext(ctx, `SELECT head_seq, head_hash FROM sessions WHERE session_id = ?`, sessionID)
	if err := row.Scan(&headSeq, &headHash); err != nil {
		if err == sql.ErrNoRows {
			return Event{}, errs.NewNotFound("eventlog: session %q not found", sessionID)
		}
		return Event{}, errs.NewDB(err, "eventlog: read head for %q", sessionID)
	}

	seq := headSeq + 1
	prevOrGenesis := GenesisSentinel
	var prevEventHash *string
	if seq > 1 {
		prevOrGenesis = headHash
		ph := headHash
		prevEventHash = &ph
	}

	eventHash := computeEventHash(sessionID, seq, eventType, payloadJSON, prevOrGenesis)
	eventID := uuid.NewString()
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (session_id, seq, event_id, event_type, payload_canon_json, prev_event_hash, event_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, eventID, string(eventType), payloadJSON, nullableStr(prevEventHash), eventHash, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Event{}, errs.NewDB(err, "eventlog: insert event")
	}

	if l.crashAt == CrashPointAfterEventInsertBeforeCommit {
		return Event{}, errs.NewInternal("eventlog: injected crash after event insert, before commit")
	}

	_, err = tx.ExecContext(ctx, `UPDATE sessions SET head_seq = ?, head_hash = ? WHERE session_id = ?`,
		seq, eventHash, sessionID)
	if err != nil {
		return Event{}, errs.NewDB(err, "eventlog: upsert head")
	}

	if err := tx.Commit(); err != nil {
		return Event{}, errs.NewDB(err, "eventlog: commit")
	}
	committed = true

	return Event{
		SessionID:        sessionID,
		Seq:              seq,
		EventID:          eventID,
		EventType:        eventType,
		PayloadCanonJSON: payloadJSON,
		PrevEventHash:    prevEventHash,
		EventHash:        eventHash,
		CreatedAt:        now,
	}, nil
}

func computeEventHash(sessionID string, seq int64, eventType EventType, payloadJSON, prevOrGenesis string) string {
	content := fmt.Sprintf("%s\n%d\n%s\n%s\n%s\n", sessionID, seq, eventType, payloadJSON, prevOrGenesis)
	return canon.Hash([]byte(content))
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// QueryEvents returns events with seq > afterSeq, ordered ascending, limited
// to limit rows (limit <= 0 means unlimited).
func (l *Log) QueryEvents(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]Event, error) {
	query := `
		SELECT session_id, seq, event_id, event_type, payload_canon_json, prev_event_hash, event_hash, created_at
		FROM events WHERE session_id = ? AND seq > ? ORDER BY seq ASC`
	args := []any{sessionID, afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewDB(err, "eventlog: query events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var e Event
	var eventType string
	var prevEventHash sql.NullString
	var createdAt string
	err := s.Scan(&e.SessionID, &e.Seq, &e.EventID, &eventType, &e.PayloadCanonJSON, &prevEventHash, &e.EventHash, &createdAt)
	if err != nil {
		return Event{}, errs.NewDB(err, "eventlog: scan event")
	}
	e.EventType = EventType(eventType)
	if prevEventHash.Valid {
		v := prevEventHash.String
		e.PrevEventHash = &v
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Event{}, errs.NewInternal("eventlog: parse created_at: %v", err)
	}
	e.CreatedAt = t
	return e, nil
}

// ValidateHashChain replays sessionID's committed events, recomputing each
// hash and checking prev_event_hash linkage, and verifies the session head
// equals the last computed (seq, event_hash). It reports the first violation
// found.
func (l *Log) ValidateHashChain(ctx context.Context, sessionID string) error {
	sess, err := GetSession(ctx, l.db, sessionID)
	if err != nil {
		return err
	}

	events, err := l.QueryEvents(ctx, sessionID, 0, 0)
	if err != nil {
		return err
	}

	prevOrGenesis := GenesisSentinel
	var lastHash string
	for i, e := range events {
		wantSeq := int64(i + 1)
		if e.Seq != wantSeq {
			return errs.NewValidationFailed("eventlog: sequence gap: expected seq=%d, got seq=%d", wantSeq, e.Seq)
		}
		if i == 0 {
			if e.PrevEventHash != nil {
				return errs.NewValidationFailed("eventlog: seq=1 must have nil prev_event_hash")
			}
		} else {
			if e.PrevEventHash == nil || *e.PrevEventHash != prevOrGenesis {
				return errs.NewValidationFailed("eventlog: chain break at seq=%d", e.Seq)
			}
		}

		computed := computeEventHash(e.SessionID, e.Seq, e.EventType, e.PayloadCanonJSON, prevOrGenesis)
		if computed != e.EventHash {
			return errs.NewValidationFailed("eventlog: hash mismatch at seq=%d: stored=%q computed=%q", e.Seq, e.EventHash, computed)
		}

		prevOrGenesis = e.EventHash
		lastHash = e.EventHash
	}

	wantHeadSeq := int64(len(events))
	if sess.HeadSeq != wantHeadSeq {
		return errs.NewValidationFailed("eventlog: head_seq=%d does not match max(seq)=%d", sess.HeadSeq, wantHeadSeq)
	}
	if wantHeadSeq > 0 && sess.HeadHash != lastHash {
		return errs.NewValidationFailed("eventlog: head_hash does not match last event_hash")
	}
	return nil
}
