package coverage_test

import (
	"testing"

	"github.com/evidencerec/core/internal/coverage"
	"github.com/evidencerec/core/internal/projections"
)

func TestEvaluate_PassesWhenAllGeneratedBlocksHaveEvidence(t *testing.T) {
	steps := []projections.Step{
		{StepID: "s1", Body: []projections.Block{
			{BlockID: "b1", Provenance: projections.ProvenanceGenerated, EvidenceRefs: []string{"e1"}},
			{BlockID: "b2", Provenance: projections.ProvenanceHuman},
		}},
	}
	res := coverage.Evaluate(steps)
	if !res.Pass() {
		t.Errorf("expected pass, got missing=%v", res.Missing)
	}
}

func TestEvaluate_FlagsEmptyEvidenceRefs(t *testing.T) {
	steps := []projections.Step{
		{StepID: "s1", Body: []projections.Block{
			{BlockID: "b1", Provenance: projections.ProvenanceGenerated, EvidenceRefs: nil},
		}},
		{StepID: "s2", Body: []projections.Block{
			{BlockID: "b2", Provenance: projections.ProvenanceGenerated, EvidenceRefs: []string{}},
		}},
	}
	res := coverage.Evaluate(steps)
	if res.Pass() {
		t.Fatal("expected failure")
	}
	if len(res.Missing) != 2 {
		t.Fatalf("len(Missing) = %d, want 2", len(res.Missing))
	}
	if !res.AffectedStep["s1"] || !res.AffectedStep["s2"] {
		t.Errorf("expected both steps affected, got %v", res.AffectedStep)
	}
}

func TestEvaluate_IgnoresHumanBlocksWithNoEvidence(t *testing.T) {
	steps := []projections.Step{
		{StepID: "s1", Body: []projections.Block{
			{BlockID: "b1", Provenance: projections.ProvenanceHuman, EvidenceRefs: nil},
		}},
	}
	res := coverage.Evaluate(steps)
	if !res.Pass() {
		t.Errorf("expected pass for human-only block, got %v", res.Missing)
	}
}
