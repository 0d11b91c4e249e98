package export

import (
	"github.com/evidencerec/core/internal/canon"
	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/projections"
)

// artifactPayload is the canonical JSON shape written for every bundle type.
// tutorial_pack and proof_bundle differ only in name and in which of steps
// the editor or a tutorial-generation job has populated; runbook carries the
// runbook map instead of (or alongside) the step list.
type artifactPayload struct {
	BundleType string                         `json:"bundle_type"`
	SessionID  string                         `json:"session_id"`
	Steps      []projections.Step             `json:"steps,omitempty"`
	Anchors    map[string]projections.Anchor  `json:"anchors,omitempty"`
	Evidence   []projections.EvidenceItem     `json:"evidence,omitempty"`
	Runbooks   map[string]projections.Runbook `json:"runbooks,omitempty"`
}

// buildArtifact returns the artifact file name and its canonical JSON bytes
// for the given bundle type. runbooks is nil for tutorial_pack/proof_bundle:
// runbooks are not session-scoped (a runbook can reference steps from many
// sessions), so only the runbook bundle type carries them.
func buildArtifact(bundleType, sessionID string, r projections.Replayed, runbooks map[string]projections.Runbook) (string, []byte, error) {
	payload := artifactPayload{
		BundleType: bundleType,
		SessionID:  sessionID,
		Steps:      r.Steps,
		Anchors:    r.Anchors,
		Evidence:   r.Evidence,
		Runbooks:   runbooks,
	}

	var name string
	switch bundleType {
	case TutorialPack:
		name = "tutorial.json"
	case ProofBundle:
		name = "proof.json"
	case RunbookKind:
		name = "runbook.json"
	default:
		return "", nil, errs.NewValidationFailed("export: unknown bundle_type %q", bundleType)
	}

	b, err := canon.Marshal(payload)
	if err != nil {
		return "", nil, errs.NewInternal("export: marshal %s: %v", name, err)
	}
	return name, b, nil
}
