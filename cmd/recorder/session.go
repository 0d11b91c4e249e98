package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidencerec/core/internal/eventlog"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage recording sessions",
	}
	cmd.AddCommand(newSessionCreateCmd(a), newSessionCloseCmd(a))
	return cmd
}

func newSessionCreateCmd(a *app) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := eventlog.CreateSession(cmd.Context(), a.db, label)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sess.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "human-readable session label")
	return cmd
}

func newSessionCloseCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return eventlog.CloseSession(cmd.Context(), a.db, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.MarkFlagRequired("session")
	return cmd
}
