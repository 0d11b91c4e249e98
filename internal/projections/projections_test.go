package projections_test

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/projections"
	"github.com/evidencerec/core/internal/schema"
)

func newLog(t *testing.T) (*sql.DB, *eventlog.Log, eventlog.Session) {
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
	return db, eventlog.New(db), sess
}

func allEvents(t *testing.T, log *eventlog.Log, sessionID string) []eventlog.Event {
	t.Helper()
	events, err := log.QueryEvents(context.Background(), sessionID, 0, 0)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	return events
}

func TestBuildSteps_SeedThenInsertUpdateDeleteReorder(t *testing.T) {
	_, log, sess := newLog(t)
	ctx := context.Background()

	seed := map[string]any{
		"steps": []any{
			map[string]any{"step_id": "s1", "order_index": 0, "title": "first", "body": []any{}},
			map[string]any{"step_id": "s2", "order_index": 1, "title": "second", "body": []any{}},
		},
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.StepsCandidatesGenerated, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	insertOp := map[string]any{
		"base_seq": 1,
		"op": map[string]any{
			"type":          "InsertAfter",
			"after_step_id": "s1",
			"step":          map[string]any{"step_id": "s3", "order_index": 0, "title": "inserted", "body": []any{}},
		},
		"applied_at": "2026-01-01T00:00:00Z",
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.StepEditApplied, insertOp); err != nil {
		t.Fatalf("insert op: %v", err)
	}

	updateOp := map[string]any{
		"base_seq":   2,
		"op":         map[string]any{"type": "UpdateTitle", "step_id": "s2", "title": "second-renamed"},
		"applied_at": "2026-01-01T00:00:01Z",
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.StepEditApplied, updateOp); err != nil {
		t.Fatalf("update op: %v", err)
	}

	deleteOp := map[string]any{
		"base_seq":   3,
		"op":         map[string]any{"type": "Delete", "step_id": "s1"},
		"applied_at": "2026-01-01T00:00:02Z",
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.StepEditApplied, deleteOp); err != nil {
		t.Fatalf("delete op: %v", err)
	}

	events := allEvents(t, log, sess.SessionID)
	steps, err := projections.BuildSteps(events)
	if err != nil {
		t.Fatalf("BuildSteps: %v", err)
	}

	if len(steps) != 2 {
		t.Fatalf("len(steps) = %d, want 2, got %+v", len(steps), steps)
	}
	if steps[0].StepID != "s3" || steps[0].OrderIndex != 0 {
		t.Errorf("steps[0] = %+v, want s3 at order 0", steps[0])
	}
	if steps[1].StepID != "s2" || steps[1].Title != "second-renamed" || steps[1].OrderIndex != 1 {
		t.Errorf("steps[1] = %+v, want s2 renamed at order 1", steps[1])
	}
}

func TestBuildSteps_EditsBeforeSeedAreIgnored(t *testing.T) {
	_, log, sess := newLog(t)
	ctx := context.Background()

	op := map[string]any{
		"base_seq":   0,
		"op":         map[string]any{"type": "UpdateTitle", "step_id": "ghost", "title": "x"},
		"applied_at": "2026-01-01T00:00:00Z",
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.StepEditApplied, op); err != nil {
		t.Fatalf("append: %v", err)
	}

	events := allEvents(t, log, sess.SessionID)
	steps, err := projections.BuildSteps(events)
	if err != nil {
		t.Fatalf("BuildSteps: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %+v", steps)
	}
}

func TestBuildAnchors_CandidatesResolveDegradeManualSet(t *testing.T) {
	_, log, sess := newLog(t)
	ctx := context.Background()

	candidates := map[string]any{
		"step_id": "s1",
		"candidates": []any{
			map[string]any{
				"anchor_id":        "a1",
				"kind":             "ui_target",
				"target_signature": "submit-button",
				"confidence":       80,
				"locators":         []any{},
			},
		},
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.AnchorCandidatesGenerated, candidates); err != nil {
		t.Fatalf("candidates: %v", err)
	}

	resolved := map[string]any{
		"anchor_id": "a1",
		"locators": []any{
			map[string]any{"locator_type": "anchor_bbox", "bbox_norm": map[string]any{"x": 10, "y": 10, "w": 100, "h": 40}},
		},
		"confidence": 95,
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.AnchorResolved, resolved); err != nil {
		t.Fatalf("resolved: %v", err)
	}

	degraded := map[string]any{"anchor_id": "a1", "reason": "NO_MATCH"}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.AnchorDegraded, degraded); err != nil {
		t.Fatalf("degraded: %v", err)
	}

	events := allEvents(t, log, sess.SessionID)
	anchors, err := projections.BuildAnchors(events)
	if err != nil {
		t.Fatalf("BuildAnchors: %v", err)
	}
	a1, ok := anchors["a1"]
	if !ok {
		t.Fatal("expected anchor a1")
	}
	if !a1.Degraded || a1.DegradeReason != "NO_MATCH" {
		t.Errorf("a1 = %+v, want degraded=true reason=NO_MATCH", a1)
	}
	if len(a1.Locators) != 1 {
		t.Errorf("expected last-verified locators retained, got %+v", a1.Locators)
	}

	manual := map[string]any{
		"anchor_id": "a1",
		"locators": []any{
			map[string]any{"locator_type": "anchor_bbox", "bbox_norm": map[string]any{"x": 20, "y": 20, "w": 90, "h": 30}},
		},
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.AnchorManuallySet, manual); err != nil {
		t.Fatalf("manual: %v", err)
	}
	events = allEvents(t, log, sess.SessionID)
	anchors, err = projections.BuildAnchors(events)
	if err != nil {
		t.Fatalf("BuildAnchors: %v", err)
	}
	a1 = anchors["a1"]
	if a1.Degraded {
		t.Errorf("expected degraded=false after manual set, got %+v", a1)
	}
}

func TestBuildEvidenceGraph_DeterministicAcrossReplays(t *testing.T) {
	_, log, sess := newLog(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.ClickCaptured, map[string]any{"frame_ms": i * 100, "x": 10, "y": 20}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events := allEvents(t, log, sess.SessionID)

	g1, err := projections.BuildEvidenceGraph(sess.SessionID, events)
	if err != nil {
		t.Fatalf("BuildEvidenceGraph 1: %v", err)
	}
	g2, err := projections.BuildEvidenceGraph(sess.SessionID, events)
	if err != nil {
		t.Fatalf("BuildEvidenceGraph 2: %v", err)
	}

	ids1 := make(map[string]bool)
	for _, it := range g1 {
		ids1[it.EvidenceID] = true
	}
	ids2 := make(map[string]bool)
	for _, it := range g2 {
		ids2[it.EvidenceID] = true
	}
	if !reflect.DeepEqual(ids1, ids2) {
		t.Errorf("evidence id sets differ across replays: %v vs %v", ids1, ids2)
	}
	if len(ids1) != 3 {
		t.Errorf("len(ids1) = %d, want 3", len(ids1))
	}
}

func TestEvidenceID_StableFormula(t *testing.T) {
	id1 := projections.EvidenceID("sess1", "Click", "evt1")
	id2 := projections.EvidenceID("sess1", "Click", "evt1")
	if id1 != id2 {
		t.Errorf("EvidenceID not stable: %q != %q", id1, id2)
	}
	id3 := projections.EvidenceID("sess1", "Click", "evt2")
	if id1 == id3 {
		t.Error("different source_id produced same evidence_id")
	}
}

func TestBuildRunbooks_CreateThenUpdate(t *testing.T) {
	_, log, sess := newLog(t)
	ctx := context.Background()

	create := map[string]any{"runbook_id": "rb1", "title": "Onboarding", "step_ids": []any{"s1", "s2"}}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.RunbookCreated, create); err != nil {
		t.Fatalf("create: %v", err)
	}
	update := map[string]any{"runbook_id": "rb1", "title": "Onboarding v2"}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.RunbookUpdated, update); err != nil {
		t.Fatalf("update: %v", err)
	}

	events := allEvents(t, log, sess.SessionID)
	runbooks, err := projections.BuildRunbooks(events)
	if err != nil {
		t.Fatalf("BuildRunbooks: %v", err)
	}
	rb, ok := runbooks["rb1"]
	if !ok {
		t.Fatal("expected runbook rb1")
	}
	if rb.Title != "Onboarding v2" {
		t.Errorf("title = %q, want updated title", rb.Title)
	}
	if len(rb.StepIDs) != 2 {
		t.Errorf("expected step_ids preserved, got %v", rb.StepIDs)
	}
}

func TestBuildOCRIndex_SearchFindsSubstring(t *testing.T) {
	_, log, sess := newLog(t)
	ctx := context.Background()

	payload := map[string]any{
		"frame_event_id": "evt1",
		"blocks": []any{
			map[string]any{
				"ocr_block_id": "b1",
				"frame_ms":     100,
				"text":         "Submit Order",
				"bbox_norm":    map[string]any{"x": 0, "y": 0, "w": 0, "h": 0},
				"confidence":   0.9,
				"language":     "en",
			},
		},
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.OcrBlocksPersisted, payload); err != nil {
		t.Fatalf("append: %v", err)
	}

	events := allEvents(t, log, sess.SessionID)
	index, err := projections.BuildOCRIndex(events)
	if err != nil {
		t.Fatalf("BuildOCRIndex: %v", err)
	}
	results := projections.SearchOCRIndex(index, "Order")
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Text != "Submit Order" {
		t.Errorf("text = %q", results[0].Text)
	}
}

func TestReplay_DeterministicAcrossCalls(t *testing.T) {
	_, log, sess := newLog(t)
	ctx := context.Background()

	seed := map[string]any{"steps": []any{
		map[string]any{"step_id": "s1", "order_index": 0, "title": "t", "body": []any{}},
	}}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.StepsCandidatesGenerated, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.ClickCaptured, map[string]any{"frame_ms": 0, "x": 1, "y": 1}); err != nil {
		t.Fatalf("click: %v", err)
	}

	events := allEvents(t, log, sess.SessionID)
	r1, err := projections.Replay(sess.SessionID, events)
	if err != nil {
		t.Fatalf("Replay 1: %v", err)
	}
	r2, err := projections.Replay(sess.SessionID, events)
	if err != nil {
		t.Fatalf("Replay 2: %v", err)
	}
	if !reflect.DeepEqual(r1.Steps, r2.Steps) {
		t.Errorf("steps differ across replays")
	}
	if !reflect.DeepEqual(r1.Evidence, r2.Evidence) {
		t.Errorf("evidence differs across replays")
	}
}
