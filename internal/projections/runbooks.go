package projections

import (
	"encoding/json"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
)

// BuildRunbooks replays RunbookCreated/RunbookUpdated events into the runbook
// map, keyed by runbook_id, across all sessions the caller folds together.
// RunbookCreated establishes a runbook; RunbookUpdated mutates title/step_ids
// in place when present and merges any other fields into Extra. Updates
// targeting an unknown runbook id are ignored, same forward-compatibility
// stance as the anchor projection.
func BuildRunbooks(events []eventlog.Event) (map[string]Runbook, error) {
	runbooks := make(map[string]Runbook)

	for _, e := range events {
		switch e.EventType {
		case eventlog.RunbookCreated:
			raw := make(map[string]any)
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &raw); err != nil {
				return nil, errs.NewInternal("projections: decode RunbookCreated at seq=%d: %v", e.Seq, err)
			}
			rb := Runbook{Extra: map[string]any{}}
			for k, v := range raw {
				switch k {
				case "runbook_id":
					if s, ok := v.(string); ok {
						rb.RunbookID = s
					}
				case "title":
					if s, ok := v.(string); ok {
						rb.Title = s
					}
				case "step_ids":
					rb.StepIDs = toStringSlice(v)
				default:
					rb.Extra[k] = v
				}
			}
			if rb.RunbookID == "" {
				return nil, errs.NewValidationFailed("projections: RunbookCreated at seq=%d missing runbook_id", e.Seq)
			}
			runbooks[rb.RunbookID] = rb

		case eventlog.RunbookUpdated:
			raw := make(map[string]any)
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &raw); err != nil {
				return nil, errs.NewInternal("projections: decode RunbookUpdated at seq=%d: %v", e.Seq, err)
			}
			id, _ := raw["runbook_id"].(string)
			rb, ok := runbooks[id]
			if !ok {
				continue
			}
			if rb.Extra == nil {
				rb.Extra = map[string]any{}
			}
			for k, v := range raw {
				switch k {
				case "runbook_id":
					// immutable identity field, ignored on update
				case "title":
					if s, ok := v.(string); ok {
						rb.Title = s
					}
				case "step_ids":
					rb.StepIDs = toStringSlice(v)
				default:
					rb.Extra[k] = v
				}
			}
			runbooks[id] = rb
		}
	}

	return runbooks, nil
}

func toStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
