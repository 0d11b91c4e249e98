package stepedit_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/projections"
	"github.com/evidencerec/core/internal/schema"
	"github.com/evidencerec/core/internal/stepedit"
)

func newSeeded(t *testing.T) (*sql.DB, eventlog.Session) {
	t.Helper()
	db, err := schema.Open(":memory:")
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sess, err := eventlog.CreateSession(context.Background(), db, "test")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	log := eventlog.New(db)
	seed := map[string]any{"steps": []any{
		map[string]any{"step_id": "s1", "order_index": 0, "title": "first", "body": []any{}},
		map[string]any{"step_id": "s2", "order_index": 1, "title": "second", "body": []any{}},
	}}
	if _, err := log.AppendEvent(context.Background(), sess.SessionID, eventlog.StepsCandidatesGenerated, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db, sess
}

func TestApply_UpdateTitleSucceedsAtCorrectBaseSeq(t *testing.T) {
	db, sess := newSeeded(t)
	ed := stepedit.New(db)

	steps, err := ed.Apply(context.Background(), sess.SessionID, 1, stepedit.Op{
		Type: stepedit.OpUpdateTitle, StepID: "s1", Title: "renamed",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if steps[0].Title != "renamed" {
		t.Errorf("title = %q, want renamed", steps[0].Title)
	}
}

func TestApply_StaleBaseSeqFailsConflict(t *testing.T) {
	db, sess := newSeeded(t)
	ed := stepedit.New(db)

	_, err := ed.Apply(context.Background(), sess.SessionID, 0, stepedit.Op{
		Type: stepedit.OpUpdateTitle, StepID: "s1", Title: "x",
	})
	if !errs.Is(err, errs.Conflict) {
		t.Errorf("expected CONFLICT, got %v", err)
	}
}

func TestApply_DeleteUnknownStepFailsNotFound(t *testing.T) {
	db, sess := newSeeded(t)
	ed := stepedit.New(db)

	_, err := ed.Apply(context.Background(), sess.SessionID, 1, stepedit.Op{
		Type: stepedit.OpDelete, StepID: "ghost",
	})
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestApply_SequentialEditsAdvanceBaseSeq(t *testing.T) {
	db, sess := newSeeded(t)
	ed := stepedit.New(db)
	ctx := context.Background()

	if _, err := ed.Apply(ctx, sess.SessionID, 1, stepedit.Op{Type: stepedit.OpUpdateTitle, StepID: "s1", Title: "a"}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	steps, err := ed.Apply(ctx, sess.SessionID, 2, stepedit.Op{Type: stepedit.OpDelete, StepID: "s2"})
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(steps) != 1 || steps[0].StepID != "s1" {
		t.Errorf("steps = %+v, want only s1 remaining", steps)
	}
}

func TestApply_ReplaceBody(t *testing.T) {
	db, sess := newSeeded(t)
	ed := stepedit.New(db)

	newBody := []projections.Block{{BlockID: "b1", Text: "hi", Provenance: projections.ProvenanceHuman}}
	steps, err := ed.Apply(context.Background(), sess.SessionID, 1, stepedit.Op{
		Type: stepedit.OpReplaceBody, StepID: "s1", Body: newBody,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(steps[0].Body) != 1 || steps[0].Body[0].Text != "hi" {
		t.Errorf("body = %+v", steps[0].Body)
	}
}
