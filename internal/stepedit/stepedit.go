// Package stepedit implements the optimistic-concurrency step editor: each
// operation carries the head seq the caller observed, and the apply fails
// CONFLICT if the session has moved on since.
package stepedit

import (
	"context"
	"database/sql"
	"time"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/projections"
)

// OpType names one of the five step editor operations.
type OpType string

const (
	OpInsertAfter OpType = "InsertAfter"
	OpUpdateTitle OpType = "UpdateTitle"
	OpReplaceBody OpType = "ReplaceBody"
	OpDelete      OpType = "Delete"
	OpReorder     OpType = "Reorder"
)

// Op is one step editor operation. Only the fields relevant to Type are
// read; callers build it with the same shape stepedit persists to the event
// log, so the op round-trips unchanged through canonical JSON.
type Op struct {
	Type        OpType             `json:"type"`
	AfterStepID string             `json:"after_step_id,omitempty"`
	Step        *projections.Step  `json:"step,omitempty"`
	StepID      string             `json:"step_id,omitempty"`
	Title       string             `json:"title,omitempty"`
	Body        []projections.Block `json:"body,omitempty"`
	NewIndex    int                `json:"new_index,omitempty"`
}

// Editor applies step edits against a session's event log under
// optimistic-concurrency fencing.
type Editor struct {
	db  *sql.DB
	log *eventlog.Log
}

// New constructs an Editor over db.
func New(db *sql.DB) *Editor {
	return &Editor{db: db, log: eventlog.New(db)}
}

// Apply validates baseSeq against the session's current head, replays the
// current step projection, applies op to it (to surface NOT_FOUND/
// VALIDATION_FAILED before anything is committed), and — only if that
// succeeds — commits a StepEditApplied event carrying the same op. It
// returns the post-apply step list.
func (e *Editor) Apply(ctx context.Context, sessionID string, baseSeq int64, op Op) ([]projections.Step, error) {
	sess, err := eventlog.GetSession(ctx, e.db, sessionID)
	if err != nil {
		return nil, err
	}
	if baseSeq != sess.HeadSeq {
		return nil, errs.NewConflict("stepedit: base_seq mismatch: expected=%d got=%d", sess.HeadSeq, baseSeq)
	}

	events, err := e.log.QueryEvents(ctx, sessionID, 0, 0)
	if err != nil {
		return nil, err
	}
	steps, err := projections.BuildSteps(events)
	if err != nil {
		return nil, err
	}

	next, err := applyOp(steps, op)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"base_seq":   baseSeq,
		"op":         op,
		"applied_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := e.log.AppendEvent(ctx, sessionID, eventlog.StepEditApplied, payload); err != nil {
		return nil, err
	}

	return next, nil
}

func applyOp(steps []projections.Step, op Op) ([]projections.Step, error) {
	switch op.Type {
	case OpInsertAfter:
		idx := findStep(steps, op.AfterStepID)
		if idx == -1 {
			return nil, errs.NewNotFound("stepedit: InsertAfter: step %q not found", op.AfterStepID)
		}
		if op.Step == nil {
			return nil, errs.NewValidationFailed("stepedit: InsertAfter: missing step body")
		}
		out := make([]projections.Step, 0, len(steps)+1)
		out = append(out, steps[:idx+1]...)
		out = append(out, *op.Step)
		out = append(out, steps[idx+1:]...)
		renumber(out)
		return out, nil

	case OpUpdateTitle:
		idx := findStep(steps, op.StepID)
		if idx == -1 {
			return nil, errs.NewNotFound("stepedit: UpdateTitle: step %q not found", op.StepID)
		}
		steps[idx].Title = op.Title
		return steps, nil

	case OpReplaceBody:
		idx := findStep(steps, op.StepID)
		if idx == -1 {
			return nil, errs.NewNotFound("stepedit: ReplaceBody: step %q not found", op.StepID)
		}
		steps[idx].Body = op.Body
		return steps, nil

	case OpDelete:
		idx := findStep(steps, op.StepID)
		if idx == -1 {
			return nil, errs.NewNotFound("stepedit: Delete: step %q not found", op.StepID)
		}
		out := make([]projections.Step, 0, len(steps)-1)
		out = append(out, steps[:idx]...)
		out = append(out, steps[idx+1:]...)
		renumber(out)
		return out, nil

	case OpReorder:
		idx := findStep(steps, op.StepID)
		if idx == -1 {
			return nil, errs.NewNotFound("stepedit: Reorder: step %q not found", op.StepID)
		}
		s := steps[idx]
		rest := make([]projections.Step, 0, len(steps)-1)
		rest = append(rest, steps[:idx]...)
		rest = append(rest, steps[idx+1:]...)
		newIdx := op.NewIndex
		if newIdx > len(rest) {
			newIdx = len(rest)
		}
		if newIdx < 0 {
			newIdx = 0
		}
		out := make([]projections.Step, 0, len(steps))
		out = append(out, rest[:newIdx]...)
		out = append(out, s)
		out = append(out, rest[newIdx:]...)
		renumber(out)
		return out, nil

	default:
		return nil, errs.NewValidationFailed("stepedit: unknown op type %q", op.Type)
	}
}

func findStep(steps []projections.Step, stepID string) int {
	for i, s := range steps {
		if s.StepID == stepID {
			return i
		}
	}
	return -1
}

func renumber(steps []projections.Step) {
	for i := range steps {
		steps[i].OrderIndex = i
	}
}
