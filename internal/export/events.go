package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/verifier"
)

// queryAllEvents reads every committed event across every session, ordered
// by session then seq. Runbook bundles need this because runbooks are not
// session-scoped (same reasoning as gc.queryAllEvents, duplicated here since
// eventlog.Log exposes only a session-scoped QueryEvents).
func queryAllEvents(ctx context.Context, db *sql.DB) ([]eventlog.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, seq, event_id, event_type, payload_canon_json, prev_event_hash, event_hash, created_at
		FROM events ORDER BY session_id ASC, seq ASC`)
	if err != nil {
		return nil, errs.NewDB(err, "export: query all events")
	}
	defer rows.Close()

	var out []eventlog.Event
	for rows.Next() {
		var e eventlog.Event
		var eventType string
		var prevEventHash sql.NullString
		var createdAt string
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.EventID, &eventType, &e.PayloadCanonJSON, &prevEventHash, &e.EventHash, &createdAt); err != nil {
			return nil, errs.NewDB(err, "export: scan event")
		}
		e.EventType = eventlog.EventType(eventType)
		if prevEventHash.Valid {
			v := prevEventHash.String
			e.PrevEventHash = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// collectVerifierWarnings scans events for VerifierRunCompleted entries whose
// status is not PASSED, producing one warning string per such run. A
// tutorial export's strict gate rejects the bundle if any such warning is
// present, matching the "reasons include the warning string" requirement.
func collectVerifierWarnings(events []eventlog.Event) ([]string, error) {
	var warnings []string
	for _, e := range events {
		if e.EventType != eventlog.VerifierRunCompleted {
			continue
		}
		var p struct {
			RunID  string `json:"run_id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
			return nil, errs.NewInternal("export: decode VerifierRunCompleted at seq=%d: %v", e.Seq, err)
		}
		if p.Status == string(verifier.StatusPassed) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("verifier run %s status %s", p.RunID, p.Status))
	}
	return warnings, nil
}
