package projections

import "github.com/evidencerec/core/internal/eventlog"

// Replayed bundles every pure fold over a session's event log in one place,
// so callers that need the full picture (export pipeline, coverage gate)
// only walk the log once per projection rather than wiring each fold
// separately.
type Replayed struct {
	Steps    []Step
	Anchors  map[string]Anchor
	Evidence []EvidenceItem
	OCRIndex map[string][]OCRBlockRecord
}

// Replay folds sessionID's event log into every session-scoped projection.
// Runbooks are intentionally excluded: they are looked up across all
// sessions, not scoped to one, so callers needing them call BuildRunbooks
// directly over whatever event slice spans the sessions they care about.
func Replay(sessionID string, events []eventlog.Event) (Replayed, error) {
	steps, err := BuildSteps(events)
	if err != nil {
		return Replayed{}, err
	}
	anchors, err := BuildAnchors(events)
	if err != nil {
		return Replayed{}, err
	}
	evidence, err := BuildEvidenceGraph(sessionID, events)
	if err != nil {
		return Replayed{}, err
	}
	ocrIndex, err := BuildOCRIndex(events)
	if err != nil {
		return Replayed{}, err
	}

	return Replayed{
		Steps:    steps,
		Anchors:  anchors,
		Evidence: evidence,
		OCRIndex: ocrIndex,
	}, nil
}
