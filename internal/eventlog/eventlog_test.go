package eventlog_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/schema"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := schema.Open(":memory:")
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newSession(t *testing.T, db *sql.DB) eventlog.Session {
	t.Helper()
	s, err := eventlog.CreateSession(context.Background(), db, "test session")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func TestAppendEvent_GenesisChainsAgainstSentinel(t *testing.T) {
	db := newDB(t)
	sess := newSession(t, db)
	log := eventlog.New(db)

	e, err := log.AppendEvent(context.Background(), sess.SessionID, eventlog.KeyframeCaptured, map[string]any{"frame_ms": 0})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if e.Seq != 1 {
		t.Errorf("seq = %d, want 1", e.Seq)
	}
	if e.PrevEventHash != nil {
		t.Errorf("prev_event_hash = %v, want nil for seq=1", e.PrevEventHash)
	}
	// The genesis event hashes against the literal sentinel, never against
	// the session's creation-time head_hash, regardless of what that was
	// initialized to.
	if e.EventHash == sess.HeadHash {
		t.Errorf("genesis event hash must not equal the pre-creation head_hash derivative")
	}
}

func TestAppendEvent_DenseSequence(t *testing.T) {
	db := newDB(t)
	sess := newSession(t, db)
	log := eventlog.New(db)
	ctx := context.Background()

	var last eventlog.Event
	for i := 0; i < 5; i++ {
		e, err := log.AppendEvent(ctx, sess.SessionID, eventlog.ClickCaptured, map[string]any{"i": i})
		if err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
		if i > 0 {
			if e.PrevEventHash == nil || *e.PrevEventHash != last.EventHash {
				t.Errorf("event %d: prev_event_hash mismatch", i)
			}
		}
		last = e
	}

	events, err := log.QueryEvents(ctx, sess.SessionID, 0, 0)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("len(events) = %d, want 5", len(events))
	}
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestAppendEvent_HeadAgreement(t *testing.T) {
	db := newDB(t)
	sess := newSession(t, db)
	log := eventlog.New(db)
	ctx := context.Background()

	var e eventlog.Event
	var err error
	for i := 0; i < 3; i++ {
		e, err = log.AppendEvent(ctx, sess.SessionID, eventlog.ClickCaptured, map[string]any{"i": i})
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	got, err := eventlog.GetSession(ctx, db, sess.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.HeadSeq != e.Seq {
		t.Errorf("head_seq = %d, want %d", got.HeadSeq, e.Seq)
	}
	if got.HeadHash != e.EventHash {
		t.Errorf("head_hash = %q, want %q", got.HeadHash, e.EventHash)
	}
}

func TestValidateHashChain_PassesForHealthyChain(t *testing.T) {
	db := newDB(t)
	sess := newSession(t, db)
	log := eventlog.New(db)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.ClickCaptured, map[string]any{"i": i}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	if err := log.ValidateHashChain(ctx, sess.SessionID); err != nil {
		t.Errorf("ValidateHashChain: %v", err)
	}
}

func TestValidateHashChain_EmptySessionPasses(t *testing.T) {
	db := newDB(t)
	sess := newSession(t, db)
	log := eventlog.New(db)

	if err := log.ValidateHashChain(context.Background(), sess.SessionID); err != nil {
		t.Errorf("ValidateHashChain on empty session: %v", err)
	}
}

func TestAppendEvent_CrashAfterInsertBeforeCommit_LeavesNoTrace(t *testing.T) {
	db := newDB(t)
	sess := newSession(t, db)
	log := eventlog.New(db)
	ctx := context.Background()

	// Append one healthy event first.
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.ClickCaptured, map[string]any{"ok": 1}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	crashy := log.WithCrashPoint(eventlog.CrashPointAfterEventInsertBeforeCommit)
	if _, err := crashy.AppendEvent(ctx, sess.SessionID, eventlog.ClickCaptured, map[string]any{"ok": 2}); err == nil {
		t.Fatal("expected injected crash error")
	}

	events, err := log.QueryEvents(ctx, sess.SessionID, 0, 0)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1 (aborted append left no trace)", len(events))
	}
	if err := log.ValidateHashChain(ctx, sess.SessionID); err != nil {
		t.Errorf("ValidateHashChain after aborted append: %v", err)
	}
}

func TestAppendEvent_UnknownSession(t *testing.T) {
	db := newDB(t)
	log := eventlog.New(db)

	_, err := log.AppendEvent(context.Background(), "does-not-exist", eventlog.ClickCaptured, map[string]any{})
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestQueryEvents_AfterSeqAndLimit(t *testing.T) {
	db := newDB(t)
	sess := newSession(t, db)
	log := eventlog.New(db)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.ClickCaptured, map[string]any{"i": i}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := log.QueryEvents(ctx, sess.SessionID, 5, 2)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Seq != 6 || events[1].Seq != 7 {
		t.Errorf("got seqs %d, %d, want 6, 7", events[0].Seq, events[1].Seq)
	}
}
