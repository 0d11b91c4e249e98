// Package verifyrun orchestrates one verifier invocation end to end:
// loading the registered verifier spec, running it through a
// verifier.Runner, persisting stdout/stderr as content-addressed assets,
// inserting the verifier_runs row, and appending VerifierRunCompleted.
package verifyrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/evidencerec/core/internal/assets"
	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/verifier"
)

// Orchestrator wires the verifiers/verifier_runs tables, the asset store,
// and the event log around a verifier.Runner.
type Orchestrator struct {
	db     *sql.DB
	store  *assets.Store
	log    *eventlog.Log
	runner verifier.Runner
}

// New constructs an Orchestrator. runner is typically verifier.ShellRunner{}
// in production and a verifier.StubRunner in tests.
func New(db *sql.DB, store *assets.Store, log *eventlog.Log, runner verifier.Runner) *Orchestrator {
	return &Orchestrator{db: db, store: store, log: log, runner: runner}
}

// Register inserts a verifier definition, keyed by verifierID, available to
// later Run calls.
func (o *Orchestrator) Register(ctx context.Context, verifierID string, spec verifier.Spec, enabled bool) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return errs.NewInternal("verifyrun: marshal spec: %v", err)
	}
	_, err = o.db.ExecContext(ctx,
		`INSERT INTO verifiers (verifier_id, kind, spec_json, enabled) VALUES (?, ?, ?, ?)
		 ON CONFLICT(verifier_id) DO UPDATE SET kind=excluded.kind, spec_json=excluded.spec_json, enabled=excluded.enabled`,
		verifierID, spec.Kind, string(specJSON), enabled)
	if err != nil {
		return errs.NewDB(err, "verifyrun: register verifier %q", verifierID)
	}
	return nil
}

// Run loads verifierID's spec, executes it, and records the outcome against
// sessionID regardless of whether the run passed, failed, or errored — a
// verifier run's evidence is itself evidence, not just its happy path.
func (o *Orchestrator) Run(ctx context.Context, sessionID, verifierID string) (verifier.Result, error) {
	var kind, specJSON string
	var enabled bool
	row := o.db.QueryRowContext(ctx, `SELECT kind, spec_json, enabled FROM verifiers WHERE verifier_id = ?`, verifierID)
	if err := row.Scan(&kind, &specJSON, &enabled); err != nil {
		if err == sql.ErrNoRows {
			return verifier.Result{}, errs.NewNotFound("verifyrun: verifier %q not registered", verifierID)
		}
		return verifier.Result{}, errs.NewDB(err, "verifyrun: load verifier %q", verifierID)
	}
	if !enabled {
		return verifier.Result{}, errs.NewPolicyBlocked("verifyrun: verifier %q is disabled", verifierID)
	}

	var spec verifier.Spec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return verifier.Result{}, errs.NewInternal("verifyrun: decode stored spec for %q: %v", verifierID, err)
	}

	res, runErr := o.runner.Run(ctx, spec)

	var resultAssetID, logsAssetID *string
	if res.Stdout != "" {
		id, err := o.store.Put(ctx, []byte(res.Stdout))
		if err != nil {
			return res, err
		}
		resultAssetID = &id
	}
	if res.Stderr != "" {
		id, err := o.store.Put(ctx, []byte(res.Stderr))
		if err != nil {
			return res, err
		}
		logsAssetID = &id
	}

	runID := uuid.NewString()
	if _, err := o.db.ExecContext(ctx,
		`INSERT INTO verifier_runs (run_id, verifier_id, session_id, status, result_asset_id, logs_asset_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, verifierID, sessionID, string(res.Status), nullableStr(resultAssetID), nullableStr(logsAssetID), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return res, errs.NewDB(err, "verifyrun: insert verifier_runs row")
	}

	if _, err := o.log.AppendEvent(ctx, sessionID, eventlog.VerifierRunCompleted, map[string]any{
		"run_id":          runID,
		"status":          string(res.Status),
		"result_asset_id": resultAssetID,
		"logs_asset_id":   logsAssetID,
	}); err != nil {
		return res, err
	}

	return res, runErr
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
