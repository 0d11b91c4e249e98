package gc_test

import (
	"context"
	"testing"

	"github.com/evidencerec/core/internal/assets"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/gc"
	"github.com/evidencerec/core/internal/schema"
)

func TestRun_DryRunReportsWithoutDeleting(t *testing.T) {
	ctx := context.Background()
	db, err := schema.Open(":memory:")
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	defer db.Close()

	store, err := assets.New(t.TempDir(), db)
	if err != nil {
		t.Fatalf("assets.New: %v", err)
	}
	log := eventlog.New(db)
	sess, err := eventlog.CreateSession(ctx, db, "s")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	referencedID, err := store.Put(ctx, []byte("referenced"))
	if err != nil {
		t.Fatalf("Put referenced: %v", err)
	}
	orphanID, err := store.Put(ctx, []byte("orphan"))
	if err != nil {
		t.Fatalf("Put orphan: %v", err)
	}

	if _, err := log.AppendEvent(ctx, sess.SessionID, eventlog.KeyframeCaptured, map[string]any{
		"asset_id": referencedID, "frame_ms": 0,
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	report, err := gc.Run(ctx, db, store, log, &sess.SessionID, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Orphans) != 1 || report.Orphans[0] != orphanID {
		t.Fatalf("orphans = %v, want [%s]", report.Orphans, orphanID)
	}
	if report.Deleted != 0 {
		t.Errorf("expected no deletions in dry-run, got %d", report.Deleted)
	}

	// The orphan file must still be readable after a dry run.
	if _, err := store.Read(ctx, orphanID); err != nil {
		t.Errorf("expected orphan to survive dry run: %v", err)
	}
}

func TestRun_DeletesOrphansAndEmitsAuditEvent(t *testing.T) {
	ctx := context.Background()
	db, err := schema.Open(":memory:")
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	defer db.Close()

	store, err := assets.New(t.TempDir(), db)
	if err != nil {
		t.Fatalf("assets.New: %v", err)
	}
	log := eventlog.New(db)
	sess, err := eventlog.CreateSession(ctx, db, "s")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	orphanID, err := store.Put(ctx, []byte("orphan"))
	if err != nil {
		t.Fatalf("Put orphan: %v", err)
	}

	report, err := gc.Run(ctx, db, store, log, &sess.SessionID, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Deleted != 1 {
		t.Fatalf("deleted = %d, want 1", report.Deleted)
	}

	if _, err := store.Read(ctx, orphanID); err == nil {
		t.Error("expected orphan file to be gone after GC")
	}

	events, err := log.QueryEvents(ctx, sess.SessionID, 0, 0)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	found := false
	for _, e := range events {
		if e.EventType == eventlog.StorageGcRan {
			found = true
		}
	}
	if !found {
		t.Error("expected a StorageGcRan event")
	}
}

func TestCollectReferencedAssetIDs_FindsSuffixedFields(t *testing.T) {
	events := []eventlog.Event{
		{PayloadCanonJSON: `{"manifest_asset_id":"abc","nested":{"result_asset_id":"def"}}`},
	}
	referenced, err := gc.CollectReferencedAssetIDs(events)
	if err != nil {
		t.Fatalf("CollectReferencedAssetIDs: %v", err)
	}
	if !referenced["abc"] || !referenced["def"] {
		t.Errorf("referenced = %v, want abc and def", referenced)
	}
}
