package projections

import (
	"encoding/json"
	"sort"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
)

// BuildSteps replays events into the step list. StepsCandidatesGenerated
// establishes the initial list; any StepEditApplied events before the first
// StepsCandidatesGenerated are ignored, matching the specification's
// "edits before any initial are ignored" rule. Edits apply strictly in seq
// order, and order_index is renumbered to a dense 0..n-1 range after any
// membership-changing op.
func BuildSteps(events []eventlog.Event) ([]Step, error) {
	var steps []Step
	seeded := false

	for _, e := range events {
		switch e.EventType {
		case eventlog.StepsCandidatesGenerated:
			var p stepsCandidatesPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode StepsCandidatesGenerated at seq=%d: %v", e.Seq, err)
			}
			steps = cloneSteps(p.Steps)
			renumber(steps)
			seeded = true
		case eventlog.StepEditApplied:
			if !seeded {
				continue
			}
			var p stepEditAppliedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode StepEditApplied at seq=%d: %v", e.Seq, err)
			}
			var err error
			steps, err = applyStepOp(steps, p.Op)
			if err != nil {
				return nil, err
			}
		}
	}
	sortStepsByOrder(steps)
	return steps, nil
}

func applyStepOp(steps []Step, op stepEditOp) ([]Step, error) {
	switch op.Type {
	case stepOpInsertAfter:
		idx := -1
		for i, s := range steps {
			if s.StepID == op.AfterStepID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, errs.NewNotFound("projections: InsertAfter: step %q not found", op.AfterStepID)
		}
		if op.Step == nil {
			return nil, errs.NewValidationFailed("projections: InsertAfter: missing step body")
		}
		ns := *op.Step
		out := make([]Step, 0, len(steps)+1)
		out = append(out, steps[:idx+1]...)
		out = append(out, ns)
		out = append(out, steps[idx+1:]...)
		renumber(out)
		return out, nil

	case stepOpUpdateTitle:
		idx := findStepIndex(steps, op.StepID)
		if idx == -1 {
			return nil, errs.NewNotFound("projections: UpdateTitle: step %q not found", op.StepID)
		}
		steps[idx].Title = op.Title
		return steps, nil

	case stepOpReplaceBody:
		idx := findStepIndex(steps, op.StepID)
		if idx == -1 {
			return nil, errs.NewNotFound("projections: ReplaceBody: step %q not found", op.StepID)
		}
		steps[idx].Body = cloneBlocks(op.Body)
		return steps, nil

	case stepOpDelete:
		idx := findStepIndex(steps, op.StepID)
		if idx == -1 {
			return nil, errs.NewNotFound("projections: Delete: step %q not found", op.StepID)
		}
		out := make([]Step, 0, len(steps)-1)
		out = append(out, steps[:idx]...)
		out = append(out, steps[idx+1:]...)
		renumber(out)
		return out, nil

	case stepOpReorder:
		idx := findStepIndex(steps, op.StepID)
		if idx == -1 {
			return nil, errs.NewNotFound("projections: Reorder: step %q not found", op.StepID)
		}
		s := steps[idx]
		out := make([]Step, 0, len(steps))
		out = append(out, steps[:idx]...)
		out = append(out, steps[idx+1:]...)
		newIdx := op.NewIndex
		if newIdx > len(out) {
			newIdx = len(out)
		}
		if newIdx < 0 {
			newIdx = 0
		}
		final := make([]Step, 0, len(steps))
		final = append(final, out[:newIdx]...)
		final = append(final, s)
		final = append(final, out[newIdx:]...)
		renumber(final)
		return final, nil

	default:
		return nil, errs.NewValidationFailed("projections: unknown step edit op %q", op.Type)
	}
}

func findStepIndex(steps []Step, stepID string) int {
	for i, s := range steps {
		if s.StepID == stepID {
			return i
		}
	}
	return -1
}

func renumber(steps []Step) {
	for i := range steps {
		steps[i].OrderIndex = i
	}
}

func cloneSteps(in []Step) []Step {
	out := make([]Step, len(in))
	for i, s := range in {
		s.Body = cloneBlocks(s.Body)
		out[i] = s
	}
	return out
}

func cloneBlocks(in []Block) []Block {
	out := make([]Block, len(in))
	copy(out, in)
	for i := range out {
		refs := make([]string, len(out[i].EvidenceRefs))
		copy(refs, out[i].EvidenceRefs)
		out[i].EvidenceRefs = refs
	}
	return out
}

// sortStepsByOrder gives BuildSteps's result a canonical order_index
// ordering regardless of the insertion order applyStepOp produced it in.
func sortStepsByOrder(steps []Step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].OrderIndex < steps[j].OrderIndex })
}
