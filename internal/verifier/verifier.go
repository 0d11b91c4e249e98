// Package verifier implements the verifier capability seam: a Runner
// interface with a shell-command implementation (hard wall-clock timeout
// capped at 30s, per the concurrency model) and a deterministic stub for
// tests. The built-in file/HTTP verifier kinds the original shipped are
// explicitly out of scope; only the shape of the contract is specified.
package verifier

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/evidencerec/core/internal/errs"
)

// maxTimeout is the hard cap on shell-verifier wall-clock execution time.
const maxTimeout = 30 * time.Second

// Spec describes one verifier invocation.
type Spec struct {
	VerifierID     string
	Kind           string // "shell" is the only kind this package executes
	Command        string
	Args           []string
	TimeoutSeconds int // 0 means use the cap
}

// Status is the outcome of a verifier run.
type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
	StatusError  Status = "ERROR"
)

// Result is the outcome of running a verifier.
type Result struct {
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a verifier spec and returns its result. It is the
// capability interface the job manager and export pipeline take as an
// argument, same seam pattern as the vision/capture/OCR providers.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ShellRunner runs spec.Command as a child process, enforcing the 30s cap
// regardless of what the spec requests.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.Kind != "shell" {
		return Result{}, errs.NewUnsupported("verifier: unsupported kind %q", spec.Kind)
	}

	timeout := maxTimeout
	if spec.TimeoutSeconds > 0 && time.Duration(spec.TimeoutSeconds)*time.Second < maxTimeout {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if runCtx.Err() == context.DeadlineExceeded {
		res.Status = StatusError
		return res, errs.NewUnsupported("verifier: %q exceeded %s timeout", spec.VerifierID, timeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			res.Status = StatusFailed
			return res, nil
		}
		res.Status = StatusError
		return res, errs.NewIO(err, "verifier: run %q", spec.VerifierID)
	}

	res.Status = StatusPassed
	return res, nil
}

// StubRunner returns a fixed result regardless of spec, for deterministic
// tests that don't want to shell out.
type StubRunner struct {
	Result Result
	Err    error
}

func (s StubRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	return s.Result, s.Err
}
