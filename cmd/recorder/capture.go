package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCaptureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Control the capture loop",
	}
	cmd.AddCommand(newCaptureStartCmd(a), newCaptureStopCmd(a))
	return cmd
}

func newCaptureStartCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start capturing keyframes for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.backend.StartCapture(cmd.Context(), sessionID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "capture started for %s\n", sessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.MarkFlagRequired("session")
	return cmd
}

func newCaptureStopCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the active capture session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.backend.StopCapture(sessionID)
			fmt.Fprintf(cmd.OutOrStdout(), "capture stopped for %s\n", sessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.MarkFlagRequired("session")
	return cmd
}
