package jobs_test

import (
	"context"
	"testing"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/jobs"
	"github.com/evidencerec/core/internal/schema"
)

func newManager(t *testing.T) *jobs.Manager {
	t.Helper()
	db, err := schema.Open(":memory:")
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return jobs.New(db)
}

func TestCreateStartSucceed(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	j, err := m.Create(ctx, "export_tutorial", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if j.Status != jobs.Queued {
		t.Fatalf("status = %q, want queued", j.Status)
	}

	if err := m.Start(ctx, j.JobID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, err := m.Get(ctx, j.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.Running || got.StartedAt == nil {
		t.Fatalf("got = %+v, want running with started_at", got)
	}

	if err := m.Succeed(ctx, j.JobID); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	got, err = m.Get(ctx, j.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.Succeeded || got.EndedAt == nil {
		t.Fatalf("got = %+v, want succeeded with ended_at", got)
	}
}

func TestFail_PersistsErrorEnvelope(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	j, err := m.Create(ctx, "gc", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Start(ctx, j.JobID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cause := errs.NewIO(nil, "disk full")
	if err := m.Fail(ctx, j.JobID, cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, err := m.Get(ctx, j.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.Failed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.Error == nil || got.Error.Code != errs.IO {
		t.Fatalf("error = %+v, want IO", got.Error)
	}
}

func TestCancel_IsIdempotentAndAcceptedForExistingJob(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	j, err := m.Create(ctx, "export_proof", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	accepted1, err := m.Cancel(ctx, j.JobID)
	if err != nil {
		t.Fatalf("Cancel 1: %v", err)
	}
	accepted2, err := m.Cancel(ctx, j.JobID)
	if err != nil {
		t.Fatalf("Cancel 2: %v", err)
	}
	if !accepted1 || !accepted2 {
		t.Errorf("expected accepted=true both times, got %v, %v", accepted1, accepted2)
	}

	got, err := m.Get(ctx, j.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.Cancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}
	if !m.IsCancelled(j.JobID) {
		t.Error("expected IsCancelled=true")
	}
}

func TestCancel_UnknownJobNotAccepted(t *testing.T) {
	m := newManager(t)
	accepted, err := m.Cancel(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if accepted {
		t.Error("expected accepted=false for unknown job")
	}
}

func TestStart_FailsConflictWhenNotQueued(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	j, err := m.Create(ctx, "gc", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Start(ctx, j.JobID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(ctx, j.JobID); !errs.Is(err, errs.Conflict) {
		t.Errorf("expected CONFLICT on double-start, got %v", err)
	}
}
