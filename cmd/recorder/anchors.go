package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidencerec/core/internal/anchor"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/projections"
	"github.com/evidencerec/core/internal/providers"
)

func newAnchorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchors",
		Short: "Reacquire or manually set anchors",
	}
	cmd.AddCommand(newAnchorsReacquireCmd(a), newAnchorsSetCmd(a))
	return cmd
}

// newAnchorsReacquireCmd re-grounds one anchor against the session's most
// recent keyframe, using a StubVisionProvider loaded from an injected raw
// vision result file (§1 Non-goals exclude real vision-model integration).
// It appends AnchorResolved on a match or AnchorDegraded otherwise, mirroring
// the translation callers of anchor.Reacquire are expected to perform.
func newAnchorsReacquireCmd(a *app) *cobra.Command {
	var sessionID, anchorID, visionResultsPath string
	cmd := &cobra.Command{
		Use:   "reacquire",
		Short: "Re-ground an anchor against the latest keyframe",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := eventlog.New(a.db)

			events, err := log.QueryEvents(ctx, sessionID, 0, 0)
			if err != nil {
				return err
			}
			replayed, err := projections.Replay(sessionID, events)
			if err != nil {
				return err
			}
			target, ok := replayed.Anchors[anchorID]
			if !ok {
				return fmt.Errorf("recorder: anchor %q not found in session %q", anchorID, sessionID)
			}

			frame, err := latestFrame(ctx, a, events)
			if err != nil {
				return err
			}

			vp, err := loadVisionProvider(visionResultsPath)
			if err != nil {
				return err
			}

			outcome, err := anchor.Reacquire(ctx, target, frame, vp)
			if err != nil {
				return err
			}

			if outcome.Resolved {
				_, err = log.AppendEvent(ctx, sessionID, eventlog.AnchorResolved, map[string]any{
					"anchor_id":  anchorID,
					"locators":   outcome.Locators,
					"confidence": outcome.Confidence,
				})
			} else {
				_, err = log.AppendEvent(ctx, sessionID, eventlog.AnchorDegraded, map[string]any{
					"anchor_id": anchorID,
					"reason":    string(outcome.Reason),
					"locators":  target.Locators,
				})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved=%v degraded=%v reason=%s\n", outcome.Resolved, outcome.Degraded, outcome.Reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&anchorID, "anchor-id", "", "anchor id to reacquire")
	cmd.Flags().StringVar(&visionResultsPath, "vision-results", "", "path to a JSON file of target_signature -> raw vision result")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("anchor-id")
	return cmd
}

// newAnchorsSetCmd manually overrides an anchor's locators, bypassing the
// reacquire path entirely (e.g. for an author correcting a persistently
// degraded anchor).
func newAnchorsSetCmd(a *app) *cobra.Command {
	var sessionID, anchorID, locatorsJSON string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Manually set an anchor's locators",
		RunE: func(cmd *cobra.Command, args []string) error {
			var locators []projections.Locator
			if err := json.Unmarshal([]byte(locatorsJSON), &locators); err != nil {
				return fmt.Errorf("recorder: invalid --locators JSON: %w", err)
			}
			log := eventlog.New(a.db)
			_, err := log.AppendEvent(cmd.Context(), sessionID, eventlog.AnchorManuallySet, map[string]any{
				"anchor_id": anchorID,
				"locators":  locators,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&anchorID, "anchor-id", "", "anchor id to set")
	cmd.Flags().StringVar(&locatorsJSON, "locators", "", "JSON array of EvidenceLocator values")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("anchor-id")
	cmd.MarkFlagRequired("locators")
	return cmd
}

func loadVisionProvider(path string) (*providers.StubVisionProvider, error) {
	raw := map[string]json.RawMessage{}
	if path != "" {
		b, err := readFileJSON(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("recorder: invalid --vision-results JSON: %w", err)
		}
	}
	return providers.NewStubVisionProviderFromJSON(raw)
}
