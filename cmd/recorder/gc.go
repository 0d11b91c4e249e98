package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/gc"
)

func newGCCmd(a *app) *cobra.Command {
	var sessionID string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Sweep orphaned assets",
	}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a GC pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			var scope *string
			if sessionID != "" {
				scope = &sessionID
			}
			report, err := gc.Run(cmd.Context(), a.db, a.store, eventlog.New(a.db), scope, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "orphans=%d deleted=%d dry_run=%v\n",
				len(report.Orphans), report.Deleted, report.DryRun)
			for _, id := range report.Orphans {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&sessionID, "session", "", "session id to record the StorageGcRan event against (optional)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphans without deleting them")
	cmd.AddCommand(runCmd)
	return cmd
}
