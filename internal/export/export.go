// Package export implements the export pipeline: policy gate, atomic
// artifact writes, manifest construction with I7 bundle/manifest hashing,
// and bundle verification.
package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/evidencerec/core/internal/assets"
	"github.com/evidencerec/core/internal/canon"
	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/policy"
	"github.com/evidencerec/core/internal/projections"
)

// Request describes one export invocation.
type Request struct {
	SessionID  string
	BundleType string // tutorial_pack | proof_bundle | runbook
	OutputDir  string
}

// Result is what Build returns after a successful export.
type Result struct {
	ExportID        string
	ManifestAssetID string
	BundleHash      string
	ManifestPath    string
	Warnings        []string
}

// Pipeline wires the projections, evidence coverage, policy gates, and
// asset/event stores together to build and verify bundles.
type Pipeline struct {
	db    *sql.DB
	store *assets.Store
	log   *eventlog.Log
}

// New builds a Pipeline.
func New(db *sql.DB, store *assets.Store, log *eventlog.Log) *Pipeline {
	return &Pipeline{db: db, store: store, log: log}
}

// Build runs the full §4.8 pipeline: gate, write artifacts, build manifest,
// compute hashes, write the manifest, append ExportCreated.
func (p *Pipeline) Build(ctx context.Context, req Request) (Result, error) {
	switch req.BundleType {
	case TutorialPack, ProofBundle, RunbookKind:
	default:
		return Result{}, errs.NewValidationFailed("export: unknown bundle_type %q", req.BundleType)
	}

	events, err := p.log.QueryEvents(ctx, req.SessionID, 0, 0)
	if err != nil {
		return Result{}, err
	}
	replayed, err := projections.Replay(req.SessionID, events)
	if err != nil {
		return Result{}, err
	}

	warnings, err := collectVerifierWarnings(events)
	if err != nil {
		return Result{}, err
	}
	var gate policy.GateResult
	switch req.BundleType {
	case TutorialPack:
		gate = policy.TutorialStrictGate(replayed.Steps, replayed.Anchors, warnings)
	case ProofBundle, RunbookKind:
		gate = policy.ProofGate(replayed.Steps)
		for id, a := range replayed.Anchors {
			if a.Degraded {
				warnings = append(warnings, "degraded anchor: "+id)
			}
		}
	}
	if err := policy.CheckExportGate(gate); err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, errs.NewIO(err, "export: create output dir %q", req.OutputDir)
	}

	var runbooks map[string]projections.Runbook
	if req.BundleType == RunbookKind {
		allEvents, err := queryAllEvents(ctx, p.db)
		if err != nil {
			return Result{}, err
		}
		runbooks, err = projections.BuildRunbooks(allEvents)
		if err != nil {
			return Result{}, err
		}
	}

	artifactName, artifactBytes, err := buildArtifact(req.BundleType, req.SessionID, replayed, runbooks)
	if err != nil {
		return Result{}, err
	}
	if err := atomicWrite(filepath.Join(req.OutputDir, artifactName), artifactBytes); err != nil {
		return Result{}, err
	}

	if req.BundleType == TutorialPack {
		playerHTML, err := renderPlayer(req.SessionID, replayed)
		if err != nil {
			return Result{}, err
		}
		playerDir := filepath.Join(req.OutputDir, "player")
		if err := os.MkdirAll(playerDir, 0o755); err != nil {
			return Result{}, errs.NewIO(err, "export: create player dir")
		}
		if err := atomicWrite(filepath.Join(playerDir, "index.html"), playerHTML); err != nil {
			return Result{}, err
		}
	}

	modelPins, err := loadModelPins(ctx, p.db)
	if err != nil {
		return Result{}, err
	}

	fileEntries, err := walkOutputDirFiles(req.OutputDir,
		func(rel string) ([]byte, error) {
			b, err := os.ReadFile(filepath.Join(req.OutputDir, rel))
			if err != nil {
				return nil, errs.NewIO(err, "export: read %q", rel)
			}
			return b, nil
		},
		func() ([]string, error) { return listRelFiles(req.OutputDir) },
	)
	if err != nil {
		return Result{}, err
	}

	m := Manifest{
		ManifestVersion: manifestVersion,
		BundleType:      req.BundleType,
		SessionID:       req.SessionID,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		Files:           fileEntries,
		Warnings:        warnings,
		Policy: ManifestPolicy{
			EvidenceCoveragePassed: true,
			TutorialStrictPassed:   req.BundleType == TutorialPack && gate.Passed,
			OfflinePolicyEnforced:  true,
		},
		ModelPins: modelPins,
	}
	m.BundleHash = computeBundleHash(m.Files)

	manifestHash, err := computeManifestHash(m)
	if err != nil {
		return Result{}, err
	}
	m.ManifestHash = manifestHash

	manifestBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Result{}, errs.NewInternal("export: marshal manifest: %v", err)
	}
	manifestPath := filepath.Join(req.OutputDir, manifestFileName)
	if err := atomicWrite(manifestPath, manifestBytes); err != nil {
		return Result{}, err
	}

	manifestAssetID, err := p.store.Put(ctx, manifestBytes)
	if err != nil {
		return Result{}, err
	}

	exportID := uuid.NewString()
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return Result{}, errs.NewInternal("export: marshal warnings: %v", err)
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO exports (export_id, session_id, bundle_type, output_path, manifest_asset_id, bundle_hash, warnings_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exportID, req.SessionID, req.BundleType, req.OutputDir, manifestAssetID, m.BundleHash, string(warningsJSON), m.CreatedAtUTC,
	); err != nil {
		return Result{}, errs.NewDB(err, "export: insert exports row")
	}

	if _, err := p.log.AppendEvent(ctx, req.SessionID, eventlog.ExportCreated, map[string]any{
		"export_id":         exportID,
		"bundle_type":       req.BundleType,
		"output_path":       req.OutputDir,
		"manifest_asset_id": manifestAssetID,
		"bundle_hash":       m.BundleHash,
	}); err != nil {
		return Result{}, err
	}

	return Result{
		ExportID:        exportID,
		ManifestAssetID: manifestAssetID,
		BundleHash:      m.BundleHash,
		ManifestPath:    manifestPath,
		Warnings:        warnings,
	}, nil
}

// VerifyBundle re-reads the manifest at dir/manifest.json, re-hashes every
// declared file, rejects missing or extra files, recomputes bundle_hash, and
// enforces the policy constraints named in §4.8.
func VerifyBundle(dir string) (bool, []string) {
	var issues []string

	manifestBytes, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return false, []string{"cannot read manifest: " + err.Error()}
	}
	var m Manifest
	if err := json.Unmarshal(manifestBytes, &m); err != nil {
		return false, []string{"cannot parse manifest: " + err.Error()}
	}

	actualPaths, err := listRelFiles(dir)
	if err != nil {
		return false, []string{"cannot list bundle files: " + err.Error()}
	}
	missing, extra := missingOrExtraFiles(m.Files, actualPaths)
	for _, p := range missing {
		issues = append(issues, "missing file: "+p)
	}
	for _, p := range extra {
		issues = append(issues, "undeclared file: "+p)
	}

	for _, f := range m.Files {
		b, err := os.ReadFile(filepath.Join(dir, f.Path))
		if err != nil {
			issues = append(issues, "cannot read declared file "+f.Path+": "+err.Error())
			continue
		}
		if actualHash := canon.Hash(b); actualHash != f.HashBlake3 {
			issues = append(issues, "hash mismatch for "+f.Path)
		}
	}

	if gotHash := computeBundleHash(m.Files); gotHash != m.BundleHash {
		issues = append(issues, "bundle_hash mismatch")
	}

	if !m.Policy.EvidenceCoveragePassed {
		issues = append(issues, "evidence_coverage_passed is false")
	}
	if !m.Policy.OfflinePolicyEnforced {
		issues = append(issues, "offline_policy_enforced is false")
	}
	if m.BundleType == TutorialPack {
		if !m.Policy.TutorialStrictPassed {
			issues = append(issues, "tutorial_strict_passed is false")
		}
		if len(m.Warnings) > 0 {
			issues = append(issues, "tutorial pack carries warnings")
		}
	}

	return len(issues) == 0, issues
}
