package projections

import (
	"encoding/json"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
)

// BuildAnchors replays events into the anchor map, keyed by anchor_id.
//
//   - AnchorCandidatesGenerated seeds candidates; each candidate's step_id is
//     overwritten by the event's own step_id field, not whatever the
//     candidate happened to carry.
//   - AnchorResolved overwrites locators and confidence, clears degraded.
//   - AnchorDegraded replaces locators with the anchor's last-verified set
//     (i.e. leaves locators untouched) and sets degraded=true with a reason.
//   - AnchorManuallySet overwrites locators, clears degraded.
//
// Unknown anchor ids referenced by Resolved/Degraded/ManuallySet events are
// tolerated and silently ignored, mirroring the forward-compatibility stance
// on unknown event types: a projection never aborts a replay over a
// downstream event that targets an anchor this replay hasn't seen yet.
func BuildAnchors(events []eventlog.Event) (map[string]Anchor, error) {
	anchors := make(map[string]Anchor)

	for _, e := range events {
		switch e.EventType {
		case eventlog.AnchorCandidatesGenerated:
			var p anchorCandidatesPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode AnchorCandidatesGenerated at seq=%d: %v", e.Seq, err)
			}
			for _, c := range p.Candidates {
				anchors[c.AnchorID] = Anchor{
					AnchorID:        c.AnchorID,
					StepID:          p.StepID,
					Kind:            c.Kind,
					TargetSignature: c.TargetSignature,
					Confidence:      c.Confidence,
					Locators:        cloneLocators(c.Locators),
					Degraded:        false,
				}
			}

		case eventlog.AnchorResolved:
			var p anchorResolvedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode AnchorResolved at seq=%d: %v", e.Seq, err)
			}
			a, ok := anchors[p.AnchorID]
			if !ok {
				continue
			}
			a.Locators = cloneLocators(p.Locators)
			a.Confidence = p.Confidence
			a.Degraded = false
			a.DegradeReason = ""
			anchors[p.AnchorID] = a

		case eventlog.AnchorDegraded:
			var p anchorDegradedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode AnchorDegraded at seq=%d: %v", e.Seq, err)
			}
			a, ok := anchors[p.AnchorID]
			if !ok {
				continue
			}
			a.Degraded = true
			a.DegradeReason = p.Reason
			anchors[p.AnchorID] = a

		case eventlog.AnchorManuallySet:
			var p anchorManuallySetPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode AnchorManuallySet at seq=%d: %v", e.Seq, err)
			}
			a, ok := anchors[p.AnchorID]
			if !ok {
				continue
			}
			a.Locators = cloneLocators(p.Locators)
			a.Degraded = false
			a.DegradeReason = ""
			anchors[p.AnchorID] = a
		}
	}

	return anchors, nil
}

func cloneLocators(in []Locator) []Locator {
	out := make([]Locator, len(in))
	copy(out, in)
	return out
}
