package projections

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
)

// EvidenceNamespace is the fixed namespace UUID evidence ids are derived
// under (I6).
var EvidenceNamespace = uuid.MustParse("d4214da8-7c85-4ff4-84ba-9e6f0bba4a1f")

// EvidenceID computes the deterministic v5 UUID for (sessionID, kind,
// sourceID), per I6: evidence_id = v5(NAMESPACE, "{session_id}:{kind}:{source_id}").
func EvidenceID(sessionID, kind, sourceID string) string {
	name := sessionID + ":" + kind + ":" + sourceID
	return uuid.NewSHA1(EvidenceNamespace, []byte(name)).String()
}

// BuildEvidenceGraph enumerates events and emits evidence items per the
// event -> evidence-kind table in the specification. Each item's id is
// deterministic (I6), so replaying the same log twice yields the same set of
// evidence ids regardless of process, machine, or wall clock.
func BuildEvidenceGraph(sessionID string, events []eventlog.Event) ([]EvidenceItem, error) {
	var items []EvidenceItem

	for _, e := range events {
		switch e.EventType {
		case eventlog.KeyframeCaptured:
			var p keyframeCapturedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode KeyframeCaptured at seq=%d: %v", e.Seq, err)
			}
			frameMS := p.FrameMS
			assetID := p.AssetID
			items = append(items, EvidenceItem{
				EvidenceID: EvidenceID(sessionID, EvidenceKindFrameKeyframe, e.EventID),
				Kind:       EvidenceKindFrameKeyframe,
				SourceID:   e.EventID,
				Locators: []Locator{{
					LocatorType: LocatorFrameBBox,
					AssetID:     &assetID,
					FrameMS:     &frameMS,
				}},
			})

		case eventlog.ClickCaptured:
			var p clickCapturedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode ClickCaptured at seq=%d: %v", e.Seq, err)
			}
			frameMS := p.FrameMS
			bbox := BBoxNorm{X: p.X, Y: p.Y, W: 1, H: 1}
			items = append(items, EvidenceItem{
				EvidenceID: EvidenceID(sessionID, EvidenceKindClick, e.EventID),
				Kind:       EvidenceKindClick,
				SourceID:   e.EventID,
				Locators: []Locator{{
					LocatorType: LocatorTimeline,
					FrameMS:     &frameMS,
					BBoxNorm:    &bbox,
				}},
			})

		case eventlog.WindowMetaCaptured:
			var p windowMetaCapturedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode WindowMetaCaptured at seq=%d: %v", e.Seq, err)
			}
			frameMS := p.FrameMS
			note := "bundle:" + p.BundleID + ":" + p.Title
			items = append(items, EvidenceItem{
				EvidenceID: EvidenceID(sessionID, EvidenceKindWindowMeta, e.EventID),
				Kind:       EvidenceKindWindowMeta,
				SourceID:   e.EventID,
				Locators: []Locator{{
					LocatorType: LocatorTimeline,
					FrameMS:     &frameMS,
					Note:        &note,
				}},
			})

		case eventlog.OcrBlocksPersisted:
			var p ocrBlocksPersistedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode OcrBlocksPersisted at seq=%d: %v", e.Seq, err)
			}
			for _, b := range p.Blocks {
				frameMS := b.FrameMS
				bbox := b.BBoxNorm
				items = append(items, EvidenceItem{
					EvidenceID: EvidenceID(sessionID, EvidenceKindOcrSpan, b.OCRBlockID),
					Kind:       EvidenceKindOcrSpan,
					SourceID:   b.OCRBlockID,
					Locators: []Locator{{
						LocatorType: LocatorOCRBBox,
						FrameMS:     &frameMS,
						BBoxNorm:    &bbox,
					}},
				})
			}
			if p.AssetID != nil {
				items = append(items, EvidenceItem{
					EvidenceID: EvidenceID(sessionID, EvidenceKindOcrProviderOutput, e.EventID),
					Kind:       EvidenceKindOcrProviderOutput,
					SourceID:   e.EventID,
					Locators: []Locator{{
						LocatorType: LocatorOCRBBox,
						AssetID:     p.AssetID,
					}},
				})
			}

		case eventlog.VerifierRunCompleted:
			var p verifierRunCompletedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode VerifierRunCompleted at seq=%d: %v", e.Seq, err)
			}
			items = append(items, EvidenceItem{
				EvidenceID: EvidenceID(sessionID, EvidenceKindVerifierResult, p.RunID),
				Kind:       EvidenceKindVerifierResult,
				SourceID:   p.RunID,
				Locators: []Locator{{
					LocatorType: LocatorVerifierLog,
					AssetID:     p.ResultAssetID,
				}},
			})

		case eventlog.AnchorResolved:
			var p anchorResolvedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode AnchorResolved at seq=%d: %v", e.Seq, err)
			}
			items = append(items, EvidenceItem{
				EvidenceID: EvidenceID(sessionID, EvidenceKindAnchorObservation, p.AnchorID),
				Kind:       EvidenceKindAnchorObservation,
				SourceID:   p.AnchorID,
				Locators:   cloneLocators(p.Locators),
			})

		case eventlog.AnchorDegraded:
			var p anchorDegradedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode AnchorDegraded at seq=%d: %v", e.Seq, err)
			}
			note := "degraded:" + p.Reason
			degraded := cloneLocators(p.Locators)
			for i := range degraded {
				degraded[i].Note = &note
			}
			items = append(items, EvidenceItem{
				EvidenceID: EvidenceID(sessionID, EvidenceKindAnchorDegraded, p.AnchorID),
				Kind:       EvidenceKindAnchorDegraded,
				SourceID:   p.AnchorID,
				Locators:   degraded,
			})

		case eventlog.ExportCreated:
			var p exportCreatedPayload
			if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
				return nil, errs.NewInternal("projections: decode ExportCreated at seq=%d: %v", e.Seq, err)
			}
			assetID := p.ManifestAssetID
			path := p.OutputPath
			items = append(items, EvidenceItem{
				EvidenceID: EvidenceID(sessionID, EvidenceKindExportBundle, p.ExportID),
				Kind:       EvidenceKindExportBundle,
				SourceID:   p.ExportID,
				Locators: []Locator{{
					LocatorType: LocatorFilePath,
					AssetID:     &assetID,
					Note:        &path,
				}},
			})
		}
	}

	return items, nil
}

// IndexEvidenceByID returns evidence items keyed by their evidence_id, for
// coverage checks that need O(1) lookup by the ids recorded in step bodies.
func IndexEvidenceByID(items []EvidenceItem) map[string]EvidenceItem {
	out := make(map[string]EvidenceItem, len(items))
	for _, it := range items {
		out[it.EvidenceID] = it
	}
	return out
}
