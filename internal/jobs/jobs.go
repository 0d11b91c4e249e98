// Package jobs implements the job lifecycle state machine: create, progress,
// terminate, and idempotent cancel, persisted to the relational store, with
// an in-memory cancellation set long-running workers poll.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evidencerec/core/internal/errs"
)

// Status is one state in the job DAG: Queued -> Running -> {Succeeded,
// Failed, Cancelled}, also Queued -> Cancelled directly.
type Status string

const (
	Queued    Status = "queued"
	Running   Status = "running"
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Progress is the optional progress payload a job reports while Running.
type Progress struct {
	Stage string `json:"stage"`
	Pct   int    `json:"pct"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// Job is one row of the jobs table.
type Job struct {
	JobID     string
	JobType   string
	SessionID *string
	Status    Status
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Progress  *Progress
	Error     *errs.Error
}

// Manager owns the jobs table and the in-memory cancellation set. One
// Manager is shared process-wide via the backend singleton.
type Manager struct {
	db *sql.DB

	mu        sync.Mutex
	cancelled map[string]bool
}

// New constructs a Manager over db.
func New(db *sql.DB) *Manager {
	return &Manager{db: db, cancelled: make(map[string]bool)}
}

// Create inserts a new job row in Queued state.
func (m *Manager) Create(ctx context.Context, jobType string, sessionID *string) (Job, error) {
	now := time.Now().UTC()
	j := Job{
		JobID:     uuid.NewString(),
		JobType:   jobType,
		SessionID: sessionID,
		Status:    Queued,
		CreatedAt: now,
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, job_type, session_id, status, created_at, started_at, ended_at, progress_json, error_json)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL, NULL)`,
		j.JobID, j.JobType, nullableStr(sessionID), string(j.Status), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Job{}, errs.NewDB(err, "jobs: create")
	}
	return j, nil
}

// Start transitions a Queued job to Running, stamping started_at. It is a
// no-op error (CONFLICT) if the job is not in Queued state, and NOT_FOUND if
// the job does not exist.
func (m *Manager) Start(ctx context.Context, jobID string) error {
	j, err := m.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != Queued {
		return errs.NewConflict("jobs: cannot start job %q from status %q", jobID, j.Status)
	}
	now := time.Now().UTC()
	_, err = m.db.ExecContext(ctx, `UPDATE jobs SET status = ?, started_at = ? WHERE job_id = ?`,
		string(Running), now.Format(time.RFC3339Nano), jobID)
	if err != nil {
		return errs.NewDB(err, "jobs: start %q", jobID)
	}
	return nil
}

// ReportProgress updates a Running job's progress payload.
func (m *Manager) ReportProgress(ctx context.Context, jobID string, p Progress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return errs.NewInternal("jobs: marshal progress: %v", err)
	}
	res, err := m.db.ExecContext(ctx, `UPDATE jobs SET progress_json = ? WHERE job_id = ?`, string(b), jobID)
	if err != nil {
		return errs.NewDB(err, "jobs: report progress %q", jobID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NewNotFound("jobs: job %q not found", jobID)
	}
	return nil
}

// Succeed transitions a Running job to Succeeded, stamping ended_at.
func (m *Manager) Succeed(ctx context.Context, jobID string) error {
	return m.finish(ctx, jobID, Succeeded, nil)
}

// Fail transitions a Running job to Failed with the given error, stamping
// ended_at.
func (m *Manager) Fail(ctx context.Context, jobID string, cause *errs.Error) error {
	return m.finish(ctx, jobID, Failed, cause)
}

func (m *Manager) finish(ctx context.Context, jobID string, status Status, cause *errs.Error) error {
	var errJSON sql.NullString
	if cause != nil {
		b, err := json.Marshal(cause)
		if err != nil {
			return errs.NewInternal("jobs: marshal error: %v", err)
		}
		errJSON = sql.NullString{String: string(b), Valid: true}
	}
	now := time.Now().UTC()
	res, err := m.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, ended_at = ?, error_json = ?
		WHERE job_id = ? AND status = ?`,
		string(status), now.Format(time.RFC3339Nano), nullableSQLStr(errJSON), jobID, string(Running),
	)
	if err != nil {
		return errs.NewDB(err, "jobs: finish %q", jobID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		j, getErr := m.Get(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		if j.Status.terminal() {
			return nil
		}
		return errs.NewConflict("jobs: cannot finish job %q from status %q", jobID, j.Status)
	}
	return nil
}

// Cancel is idempotent: it sets Cancelled on a Queued or Running job, is a
// no-op on a terminal row, and returns accepted=true whenever the job
// exists. It also marks the job cancelled in the in-memory set so any
// worker polling IsCancelled observes it immediately, even before the
// database row's transition is visible to a concurrent reader.
func (m *Manager) Cancel(ctx context.Context, jobID string) (accepted bool, err error) {
	m.mu.Lock()
	m.cancelled[jobID] = true
	m.mu.Unlock()

	j, err := m.Get(ctx, jobID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return false, nil
		}
		return false, err
	}
	if j.Status.terminal() {
		return true, nil
	}

	now := time.Now().UTC()
	_, err = m.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, ended_at = ? WHERE job_id = ? AND status IN (?, ?)`,
		string(Cancelled), now.Format(time.RFC3339Nano), jobID, string(Queued), string(Running),
	)
	if err != nil {
		return false, errs.NewDB(err, "jobs: cancel %q", jobID)
	}
	return true, nil
}

// IsCancelled reports whether jobID has been marked cancelled in the
// in-memory set. Long-running workers poll this at stage boundaries and
// return JOB_CANCELLED when it is true.
func (m *Manager) IsCancelled(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[jobID]
}

// Get reads a job row by id.
func (m *Manager) Get(ctx context.Context, jobID string) (Job, error) {
	var j Job
	var sessionID sql.NullString
	var status, createdAt string
	var startedAt, endedAt, progressJSON, errorJSON sql.NullString

	row := m.db.QueryRowContext(ctx, `
		SELECT job_id, job_type, session_id, status, created_at, started_at, ended_at, progress_json, error_json
		FROM jobs WHERE job_id = ?`, jobID)
	err := row.Scan(&j.JobID, &j.JobType, &sessionID, &status, &createdAt, &startedAt, &endedAt, &progressJSON, &errorJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return Job{}, errs.NewNotFound("jobs: job %q not found", jobID)
		}
		return Job{}, errs.NewDB(err, "jobs: get %q", jobID)
	}

	j.Status = Status(status)
	if sessionID.Valid {
		v := sessionID.String
		j.SessionID = &v
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Job{}, errs.NewInternal("jobs: parse created_at: %v", err)
	}
	j.CreatedAt = t
	if startedAt.Valid {
		st, err := time.Parse(time.RFC3339Nano, startedAt.String)
		if err != nil {
			return Job{}, errs.NewInternal("jobs: parse started_at: %v", err)
		}
		j.StartedAt = &st
	}
	if endedAt.Valid {
		et, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Job{}, errs.NewInternal("jobs: parse ended_at: %v", err)
		}
		j.EndedAt = &et
	}
	if progressJSON.Valid {
		var p Progress
		if err := json.Unmarshal([]byte(progressJSON.String), &p); err != nil {
			return Job{}, errs.NewInternal("jobs: unmarshal progress: %v", err)
		}
		j.Progress = &p
	}
	if errorJSON.Valid {
		var e errs.Error
		if err := json.Unmarshal([]byte(errorJSON.String), &e); err != nil {
			return Job{}, errs.NewInternal("jobs: unmarshal error: %v", err)
		}
		j.Error = &e
	}
	return j, nil
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableSQLStr(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	return s.String
}
