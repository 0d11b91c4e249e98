// Package anchor implements the anchor engine: drift detection between two
// locator sequences, vision-provider-backed reacquisition, and the
// confidence penalty formula. Reacquire keeps the anchor's original
// confidence; ConfidencePenalty is a separate function it does not call.
package anchor

import (
	"context"

	"github.com/evidencerec/core/internal/projections"
	"github.com/evidencerec/core/internal/providers"
)

// Drift thresholds, in the [0,10000]-normalized-per-dimension unit the
// locator bbox fields use.
const (
	driftThresholdXY = 250
	driftThresholdWH = 300
)

// DetectDrift compares two locator sequences pairwise, per the
// specification's rule set:
//
//   - different length is drift
//   - a differing locator_type, asset_id, frame_ms, or text_offset at any
//     position is drift
//   - bbox_norm presence mismatch (one has it, the other doesn't) is drift
//   - when both have a bbox_norm, drift iff any delta exceeds its threshold
func DetectDrift(prev, next []projections.Locator) bool {
	if len(prev) != len(next) {
		return true
	}
	for i := range prev {
		a, b := prev[i], next[i]
		if a.LocatorType != b.LocatorType {
			return true
		}
		if !equalStrPtr(a.AssetID, b.AssetID) {
			return true
		}
		if !equalInt64Ptr(a.FrameMS, b.FrameMS) {
			return true
		}
		if !equalInt64Ptr(a.TextOffset, b.TextOffset) {
			return true
		}
		if (a.BBoxNorm == nil) != (b.BBoxNorm == nil) {
			return true
		}
		if a.BBoxNorm != nil && b.BBoxNorm != nil {
			if bboxDrifted(*a.BBoxNorm, *b.BBoxNorm) {
				return true
			}
		}
	}
	return false
}

func bboxDrifted(a, b projections.BBoxNorm) bool {
	return absInt64(a.X-b.X) > driftThresholdXY ||
		absInt64(a.Y-b.Y) > driftThresholdXY ||
		absInt64(a.W-b.W) > driftThresholdWH ||
		absInt64(a.H-b.H) > driftThresholdWH
}

// DriftPixels reports the largest single-dimension delta between two
// bounding boxes, in the same normalized unit the drift thresholds use. It
// feeds the confidence penalty formula.
func DriftPixels(a, b projections.BBoxNorm) int64 {
	m := absInt64(a.X - b.X)
	if d := absInt64(a.Y - b.Y); d > m {
		m = d
	}
	if d := absInt64(a.W - b.W); d > m {
		m = d
	}
	if d := absInt64(a.H - b.H); d > m {
		m = d
	}
	return m
}

// ConfidencePenalty applies score = max(0, confidence - round(drift_px/10)).
func ConfidencePenalty(confidence uint8, driftPx int64) uint8 {
	penalty := (driftPx + 5) / 10 // round-half-up of driftPx/10
	score := int64(confidence) - penalty
	if score < 0 {
		return 0
	}
	if score > 255 {
		return 255
	}
	return uint8(score)
}

func equalStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Reason is a closed set of AnchorDegraded reasons the reacquire path emits.
type Reason string

const (
	ReasonNoKeyframe Reason = "NO_KEYFRAME"
	ReasonNoMatch    Reason = "NO_MATCH"
)

// Outcome is the result of a Reacquire call: exactly one of Resolved or
// Degraded is populated, matching the two events reacquire can emit.
type Outcome struct {
	Resolved bool
	Locators []projections.Locator
	Confidence uint8

	Degraded bool
	Reason   Reason
}

// Reacquire re-grounds anchor's target signature against frame via vp. It
// never mutates anchor; callers translate the returned Outcome into an
// AnchorResolved or AnchorDegraded event themselves, keeping this package
// free of event-log and storage concerns.
//
// frame is nil when no keyframe is available for the session at call time,
// which yields Degraded{Reason: NO_KEYFRAME} without consulting vp at all.
func Reacquire(ctx context.Context, anchor projections.Anchor, frame *providers.Frame, vp providers.VisionProvider) (Outcome, error) {
	if frame == nil {
		return Outcome{Degraded: true, Reason: ReasonNoKeyframe}, nil
	}

	loc, found, err := vp.Locate(ctx, *frame, anchor.TargetSignature)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return Outcome{Degraded: true, Reason: ReasonNoMatch}, nil
	}

	newLocators := []projections.Locator{visionLocatorToLocator(loc)}
	if !DetectDrift(anchor.Locators, newLocators) {
		return Outcome{Degraded: true, Reason: ReasonNoMatch}, nil
	}

	return Outcome{
		Resolved:   true,
		Locators:   newLocators,
		Confidence: anchor.Confidence,
	}, nil
}

// visionLocatorToLocator rescales a provider's [0,1]-normalized locator into
// the engine's [0,10000]-per-dimension locator space.
func visionLocatorToLocator(l providers.VisionLocator) projections.Locator {
	bbox := projections.BBoxNorm{
		X: int64(l.BBoxNorm.X * 10000),
		Y: int64(l.BBoxNorm.Y * 10000),
		W: int64(l.BBoxNorm.W * 10000),
		H: int64(l.BBoxNorm.H * 10000),
	}
	return projections.Locator{
		LocatorType: projections.LocatorAnchorBBox,
		BBoxNorm:    &bbox,
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
