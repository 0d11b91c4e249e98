package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/verifier"
	"github.com/evidencerec/core/internal/verifyrun"
)

func newVerifiersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verifiers",
		Short: "Register and run verifiers",
	}
	cmd.AddCommand(newVerifiersRegisterCmd(a), newVerifiersRunCmd(a))
	return cmd
}

func newVerifiersRegisterCmd(a *app) *cobra.Command {
	var verifierID, command string
	var args []string
	var timeoutSeconds int
	var enabled bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a shell verifier",
		RunE: func(cmd *cobra.Command, args2 []string) error {
			orch := verifyrun.New(a.db, a.store, eventlog.New(a.db), verifier.ShellRunner{})
			spec := verifier.Spec{
				VerifierID:     verifierID,
				Kind:           "shell",
				Command:        command,
				Args:           args,
				TimeoutSeconds: timeoutSeconds,
			}
			return orch.Register(cmd.Context(), verifierID, spec, enabled)
		},
	}
	cmd.Flags().StringVar(&verifierID, "verifier-id", "", "verifier id")
	cmd.Flags().StringVar(&command, "command", "", "shell command to execute")
	cmd.Flags().StringSliceVar(&args, "arg", nil, "command argument (repeatable)")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout-seconds", 0, "timeout in seconds, capped at 30s")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether the verifier is enabled")
	cmd.MarkFlagRequired("verifier-id")
	cmd.MarkFlagRequired("command")
	return cmd
}

func newVerifiersRunCmd(a *app) *cobra.Command {
	var sessionID, verifierID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a registered verifier against a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := verifyrun.New(a.db, a.store, eventlog.New(a.db), verifier.ShellRunner{})
			res, err := orch.Run(cmd.Context(), sessionID, verifierID)
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s exit_code=%d\n", res.Status, res.ExitCode)
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&verifierID, "verifier-id", "", "verifier id")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("verifier-id")
	return cmd
}
