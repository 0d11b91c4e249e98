package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/projections"
	"github.com/evidencerec/core/internal/stepedit"
)

func newStepsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Inspect and edit the step list",
	}
	cmd.AddCommand(newStepsCandidatesCmd(a), newStepsEditCmd(a))
	return cmd
}

// newStepsCandidatesCmd replays a session's event log and prints the
// current step list as JSON, the read path a tutorial-generation job would
// otherwise consult.
func newStepsCandidatesCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Print the current replayed step list",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := eventlog.New(a.db).QueryEvents(cmd.Context(), sessionID, 0, 0)
			if err != nil {
				return err
			}
			replayed, err := projections.Replay(sessionID, events)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(replayed.Steps)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.MarkFlagRequired("session")
	return cmd
}

// newStepsEditCmd applies one optimistic-concurrency step edit. The
// operation is supplied as a JSON object matching stepedit.Op's shape,
// since the five op kinds share no common flag set.
func newStepsEditCmd(a *app) *cobra.Command {
	var sessionID string
	var baseSeq int64
	var opJSON string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Apply one step edit at a given base sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			var op stepedit.Op
			if err := json.Unmarshal([]byte(opJSON), &op); err != nil {
				return fmt.Errorf("recorder: invalid --op JSON: %w", err)
			}
			editor := stepedit.New(a.db)
			steps, err := editor.Apply(cmd.Context(), sessionID, baseSeq, op)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(steps)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().Int64Var(&baseSeq, "base-seq", 0, "seq the caller last observed (optimistic concurrency check)")
	cmd.Flags().StringVar(&opJSON, "op", "", `operation JSON, e.g. {"type":"UpdateTitle","step_id":"s1","title":"New title"}`)
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("op")
	return cmd
}
