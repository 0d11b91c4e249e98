package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Build or verify export bundles",
	}
	cmd.AddCommand(
		newExportBuildCmd(a, "tutorial", export.TutorialPack),
		newExportBuildCmd(a, "proof", export.ProofBundle),
		newExportBuildCmd(a, "runbook", export.RunbookKind),
		newExportVerifyCmd(a),
	)
	return cmd
}

func newExportBuildCmd(a *app, use, bundleType string) *cobra.Command {
	var sessionID, outputDir string
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Build a %s bundle", bundleType),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline := export.New(a.db, a.store, eventlog.New(a.db))
			result, err := pipeline.Build(cmd.Context(), export.Request{
				SessionID:  sessionID,
				BundleType: bundleType,
				OutputDir:  outputDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export_id=%s bundle_hash=%s manifest=%s\n",
				result.ExportID, result.BundleHash, result.ManifestPath)
			for _, w := range result.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&outputDir, "out", "", "output directory for the bundle")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newExportVerifyCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-verify an exported bundle's manifest and policy constraints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, issues := export.VerifyBundle(dir)
			for _, issue := range issues {
				fmt.Fprintln(cmd.ErrOrStderr(), issue)
			}
			if !ok {
				return fmt.Errorf("recorder: bundle at %q failed verification", dir)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "bundle directory to verify")
	cmd.MarkFlagRequired("dir")
	return cmd
}
