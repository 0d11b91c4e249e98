package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidencerec/core/internal/eventlog"
)

func newReplayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Inspect a session's event log",
	}
	cmd.AddCommand(newReplayValidateCmd(a))
	return cmd
}

// newReplayValidateCmd walks a session's hash chain end to end, the
// tamper-detection check I3 requires be available on demand rather than
// only implicitly on every append.
func newReplayValidateCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a session's event hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := eventlog.New(a.db)
			if err := log.ValidateHashChain(cmd.Context(), sessionID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.MarkFlagRequired("session")
	return cmd
}
