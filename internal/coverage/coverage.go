// Package coverage implements the generated-block evidence coverage check:
// the gate every export (tutorial, proof, or runbook) must pass before its
// artifacts are written.
package coverage

import "github.com/evidencerec/core/internal/projections"

// MissingBlock names one generated block lacking evidence.
type MissingBlock struct {
	StepID  string
	BlockID string
}

// Result is the coverage evaluation over a step list.
type Result struct {
	Missing      []MissingBlock
	AffectedStep map[string]bool
}

// Pass reports whether the coverage gate is satisfied: no generated block
// anywhere in the step list may have an empty evidence_refs list.
func (r Result) Pass() bool {
	return len(r.Missing) == 0
}

// Evaluate walks every step's body and flags each generated block with an
// empty evidence_refs list as missing. Human-provenance blocks are never
// checked: the gate only binds claims the system itself asserted.
func Evaluate(steps []projections.Step) Result {
	res := Result{AffectedStep: make(map[string]bool)}
	for _, s := range steps {
		for _, b := range s.Body {
			if b.Provenance != projections.ProvenanceGenerated {
				continue
			}
			if len(b.EvidenceRefs) == 0 {
				res.Missing = append(res.Missing, MissingBlock{StepID: s.StepID, BlockID: b.BlockID})
				res.AffectedStep[s.StepID] = true
			}
		}
	}
	return res
}
