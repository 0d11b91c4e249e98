package projections

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
)

// BuildOCRIndex folds OcrBlocksPersisted events into a per-frame index of
// recognized text, recovered here to support text search over a session's
// tutorial/proof output without re-running OCR. It is additive relative to
// the evidence graph: the same blocks that back OcrSpan evidence items are
// also indexed here, keyed by the frame event they were recognized against.
func BuildOCRIndex(events []eventlog.Event) (map[string][]OCRBlockRecord, error) {
	index := make(map[string][]OCRBlockRecord)

	for _, e := range events {
		if e.EventType != eventlog.OcrBlocksPersisted {
			continue
		}
		var p ocrBlocksPersistedPayload
		if err := json.Unmarshal([]byte(e.PayloadCanonJSON), &p); err != nil {
			return nil, errs.NewInternal("projections: decode OcrBlocksPersisted at seq=%d: %v", e.Seq, err)
		}
		for _, b := range p.Blocks {
			index[p.FrameEventID] = append(index[p.FrameEventID], OCRBlockRecord{
				OCRBlockID:   b.OCRBlockID,
				FrameEventID: p.FrameEventID,
				FrameMS:      b.FrameMS,
				Text:         b.Text,
				BBoxNorm:     b.BBoxNorm,
				Confidence:   b.Confidence,
				Language:     b.Language,
			})
		}
	}

	for k := range index {
		sort.SliceStable(index[k], func(i, j int) bool {
			return index[k][i].FrameMS < index[k][j].FrameMS
		})
	}
	return index, nil
}

// SearchOCRIndex returns every block across every frame whose text contains
// needle as a substring (case-sensitive; callers wanting case-insensitive
// search should lowercase both sides before calling).
func SearchOCRIndex(index map[string][]OCRBlockRecord, needle string) []OCRBlockRecord {
	var out []OCRBlockRecord
	for _, blocks := range index {
		for _, b := range blocks {
			if strings.Contains(b.Text, needle) {
				out = append(out, b)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FrameMS < out[j].FrameMS })
	return out
}
