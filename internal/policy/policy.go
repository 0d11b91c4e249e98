// Package policy implements the engine's export gates, the network
// allowlist, and permission preconditions, all of which the rest of the
// engine consults rather than re-implements.
package policy

import (
	"strings"
	"sync"

	"github.com/evidencerec/core/internal/coverage"
	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/projections"
)

// GateResult is the outcome of evaluating an export gate.
type GateResult struct {
	Passed  bool
	Reasons []string
}

// CoverageGate requires every generated block to carry at least one
// evidence reference. Both the tutorial and proof gates build on this.
func CoverageGate(steps []projections.Step) GateResult {
	res := coverage.Evaluate(steps)
	if res.Pass() {
		return GateResult{Passed: true}
	}
	reasons := make([]string, 0, len(res.Missing))
	for _, m := range res.Missing {
		reasons = append(reasons, "missing evidence: step="+m.StepID+" block="+m.BlockID)
	}
	return GateResult{Passed: false, Reasons: reasons}
}

// TutorialStrictGate additionally requires no degraded anchors and no
// warnings, on top of the coverage gate.
func TutorialStrictGate(steps []projections.Step, anchors map[string]projections.Anchor, warnings []string) GateResult {
	res := CoverageGate(steps)
	for id, a := range anchors {
		if a.Degraded {
			res.Passed = false
			res.Reasons = append(res.Reasons, "degraded anchor: "+id)
		}
	}
	if len(warnings) > 0 {
		res.Passed = false
		for _, w := range warnings {
			res.Reasons = append(res.Reasons, "warning: "+w)
		}
	}
	return res
}

// ProofGate is the coverage gate alone: warnings and degraded anchors are
// permitted in a proof bundle.
func ProofGate(steps []projections.Step) GateResult {
	return CoverageGate(steps)
}

// CheckExportGate maps a GateResult to the universal error envelope,
// matching the EXPORT_GATE_FAILED shape the specification names.
func CheckExportGate(res GateResult) error {
	if res.Passed {
		return nil
	}
	return errs.NewExportGateFailed("export gate failed: %s", strings.Join(res.Reasons, "; ")).
		WithDetails(map[string]any{"reasons": res.Reasons})
}

// NetworkAllowlist canonicalizes and membership-tests hosts. Canonicalization
// trims whitespace, lowercases, and strips any "scheme://" prefix and
// trailing path.
type NetworkAllowlist struct {
	mu    sync.RWMutex
	hosts map[string]struct{}
}

// NewNetworkAllowlist builds an allowlist from raw host strings, each
// canonicalized and deduplicated.
func NewNetworkAllowlist(raw []string) *NetworkAllowlist {
	a := &NetworkAllowlist{hosts: make(map[string]struct{}, len(raw))}
	for _, h := range raw {
		a.hosts[CanonicalizeHost(h)] = struct{}{}
	}
	return a
}

// CanonicalizeHost trims, lowercases, and strips scheme and path from a raw
// host string.
func CanonicalizeHost(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.ToLower(h)
	if idx := strings.Index(h, "://"); idx != -1 {
		h = h[idx+3:]
	}
	if idx := strings.IndexAny(h, "/?#"); idx != -1 {
		h = h[:idx]
	}
	return h
}

// CheckHost canonicalizes raw and reports whether it is on the allowlist. A
// miss returns NETWORK_BLOCKED with an action hint.
func (a *NetworkAllowlist) CheckHost(raw string) error {
	h := CanonicalizeHost(raw)
	a.mu.RLock()
	_, ok := a.hosts[h]
	a.mu.RUnlock()
	if ok {
		return nil
	}
	return errs.NewNetworkBlocked("host %q is not on the network allowlist", h).
		WithActionHint("add the host to the network allowlist in config and retry")
}

// Set replaces the allowlist contents, canonicalizing each entry. Used by
// config hot-reload.
func (a *NetworkAllowlist) Set(raw []string) {
	hosts := make(map[string]struct{}, len(raw))
	for _, h := range raw {
		hosts[CanonicalizeHost(h)] = struct{}{}
	}
	a.mu.Lock()
	a.hosts = hosts
	a.mu.Unlock()
}

// RequireScreenRecordingPermission enforces the capture-start precondition.
// assumedAllowed models the "assumed-permissions override" operational knob
// used in tests, where a real OS permission prompt cannot run headlessly.
func RequireScreenRecordingPermission(assumedAllowed bool) error {
	if assumedAllowed {
		return nil
	}
	return errs.NewPermissionDenied("screen recording permission has not been granted").
		WithActionHint("grant screen recording permission in System Settings and retry")
}
