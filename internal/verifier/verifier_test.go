package verifier_test

import (
	"context"
	"testing"

	"github.com/evidencerec/core/internal/verifier"
)

func TestShellRunner_PassesOnZeroExit(t *testing.T) {
	r := verifier.ShellRunner{}
	res, err := r.Run(context.Background(), verifier.Spec{
		VerifierID: "v1", Kind: "shell", Command: "true",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != verifier.StatusPassed {
		t.Errorf("status = %q, want PASSED", res.Status)
	}
}

func TestShellRunner_FailsOnNonzeroExit(t *testing.T) {
	r := verifier.ShellRunner{}
	res, err := r.Run(context.Background(), verifier.Spec{
		VerifierID: "v1", Kind: "shell", Command: "false",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != verifier.StatusFailed {
		t.Errorf("status = %q, want FAILED", res.Status)
	}
}

func TestShellRunner_RejectsNonShellKind(t *testing.T) {
	r := verifier.ShellRunner{}
	if _, err := r.Run(context.Background(), verifier.Spec{Kind: "http"}); err == nil {
		t.Fatal("expected UNSUPPORTED for non-shell kind")
	}
}

func TestShellRunner_TimesOutOnSlowCommand(t *testing.T) {
	r := verifier.ShellRunner{}
	_, err := r.Run(context.Background(), verifier.Spec{
		VerifierID: "v1", Kind: "shell", Command: "sleep", Args: []string{"5"}, TimeoutSeconds: 1,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestStubRunner_ReturnsFixedResult(t *testing.T) {
	s := verifier.StubRunner{Result: verifier.Result{Status: verifier.StatusPassed}}
	res, err := s.Run(context.Background(), verifier.Spec{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != verifier.StatusPassed {
		t.Errorf("status = %q", res.Status)
	}
}
