package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/evidencerec/core/internal/assets"
	"github.com/evidencerec/core/internal/capture"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/providers"
	"github.com/evidencerec/core/internal/schema"
)

func newLoop(t *testing.T) (*capture.Loop, *eventlog.Log, eventlog.Session) {
	t.Helper()
	db, err := schema.Open(":memory:")
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := assets.New(t.TempDir(), db)
	if err != nil {
		t.Fatalf("assets.New: %v", err)
	}
	log := eventlog.New(db)
	sess, err := eventlog.CreateSession(context.Background(), db, "capture-test")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	cp := providers.NewStubCaptureProvider(providers.StubCaptureConfig{
		DisplayID: 1, WidthPx: 1920, HeightPx: 1080, PixelScale: 2,
	})
	return capture.New(store, log, cp, nil), log, sess
}

func TestStart_CapturesOneFrameSynchronouslyOnBurstOne(t *testing.T) {
	loop, log, sess := newLoop(t)
	ctx := context.Background()

	err := loop.Start(ctx, sess.SessionID, capture.Settings{Burst: 1, AssumedPermission: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	events, err := log.QueryEvents(ctx, sess.SessionID, 0, 0)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventType != eventlog.KeyframeCaptured {
		t.Fatalf("expected one KeyframeCaptured event, got %+v", events)
	}
}

func TestStart_RejectsConflictingSession(t *testing.T) {
	loop, _, sess := newLoop(t)
	ctx := context.Background()

	if err := loop.Start(ctx, sess.SessionID, capture.Settings{Burst: 1, AssumedPermission: true}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := loop.Start(ctx, "other-session", capture.Settings{Burst: 1, AssumedPermission: true})
	if err == nil {
		t.Fatal("expected CONFLICT starting a second session")
	}
}

func TestStart_RejectsWithoutPermission(t *testing.T) {
	loop, _, sess := newLoop(t)
	err := loop.Start(context.Background(), sess.SessionID, capture.Settings{Burst: 1, AssumedPermission: false})
	if err == nil {
		t.Fatal("expected PERMISSION_DENIED")
	}
}

func TestStart_BackgroundLoopCapturesUntilBurstLimit(t *testing.T) {
	loop, log, sess := newLoop(t)
	ctx := context.Background()

	err := loop.Start(ctx, sess.SessionID, capture.Settings{
		Burst: 3, IntervalMS: 50, AssumedPermission: true,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err := log.QueryEvents(ctx, sess.SessionID, 0, 0)
		if err != nil {
			t.Fatalf("QueryEvents: %v", err)
		}
		if len(events) >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for 3 keyframes, got %d", len(events))
		}
		time.Sleep(10 * time.Millisecond)
	}
	loop.Stop(sess.SessionID)
}

func TestStop_OnNonActiveSessionIsNoOp(t *testing.T) {
	loop, _, sess := newLoop(t)
	loop.Stop(sess.SessionID) // nothing active, must not panic
	if loop.ActiveSession() != "" {
		t.Errorf("expected no active session")
	}
}
