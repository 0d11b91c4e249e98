// Package projections folds a session's event log into the derived views the
// rest of the engine reads: the step list, the anchor set, the evidence
// graph, the OCR index, and the runbook map. Every exported Build* function
// here is a pure function of an []eventlog.Event slice — no database access,
// no clock, no randomness — which is what makes I5 (determinism of
// projections) a property of the code rather than a runtime assumption.
package projections

// Block is one body element of a Step.
type Block struct {
	BlockID      string   `json:"block_id"`
	Text         string   `json:"text"`
	Provenance   string   `json:"provenance"` // "human" | "generated"
	EvidenceRefs []string `json:"evidence_refs"`
}

const (
	ProvenanceHuman     = "human"
	ProvenanceGenerated = "generated"
)

// Step is one entry in the replayed step list.
type Step struct {
	StepID      string  `json:"step_id"`
	OrderIndex  int     `json:"order_index"`
	Title       string  `json:"title"`
	Body        []Block `json:"body"`
	RiskTags    []string `json:"risk_tags"`
	BranchLabel string  `json:"branch_label"`
}

// BBoxNorm is a bounding box normalized to [0,10000] on both axes.
type BBoxNorm struct {
	X, Y, W, H int64
}

// Locator is one EvidenceLocator as defined in the data model.
type Locator struct {
	LocatorType string    `json:"locator_type"`
	AssetID     *string   `json:"asset_id,omitempty"`
	FrameMS     *int64    `json:"frame_ms,omitempty"`
	BBoxNorm    *BBoxNorm `json:"bbox_norm,omitempty"`
	TextOffset  *int64    `json:"text_offset,omitempty"`
	Note        *string   `json:"note,omitempty"`
}

const (
	LocatorTimeline    = "timeline"
	LocatorFrameBBox   = "frame_bbox"
	LocatorOCRBBox     = "ocr_bbox"
	LocatorAnchorBBox  = "anchor_bbox"
	LocatorVerifierLog = "verifier_log"
	LocatorFilePath    = "file_path"
)

// Anchor is one entry in the replayed anchor set.
type Anchor struct {
	AnchorID        string    `json:"anchor_id"`
	StepID          string    `json:"step_id"`
	Kind            string    `json:"kind"` // ui_target | ocr_phrase | vision_anchor
	TargetSignature string    `json:"target_signature"`
	Confidence      uint8     `json:"confidence"`
	Locators        []Locator `json:"locators"`
	Degraded        bool      `json:"degraded"`
	DegradeReason   string    `json:"degrade_reason,omitempty"`
}

const (
	AnchorKindUITarget     = "ui_target"
	AnchorKindOCRPhrase    = "ocr_phrase"
	AnchorKindVisionAnchor = "vision_anchor"
)

// EvidenceItem is one deterministically-identified pointer into the event
// log/assets that backs a generated claim (I6).
type EvidenceItem struct {
	EvidenceID string    `json:"evidence_id"`
	Kind       string    `json:"kind"`
	SourceID   string    `json:"source_id"`
	Locators   []Locator `json:"locators"`
}

const (
	EvidenceKindFrameKeyframe     = "FrameKeyframe"
	EvidenceKindClick             = "Click"
	EvidenceKindWindowMeta        = "WindowMeta"
	EvidenceKindOcrSpan           = "OcrSpan"
	EvidenceKindOcrProviderOutput = "OcrProviderOutput"
	EvidenceKindVerifierResult    = "VerifierResult"
	EvidenceKindAnchorObservation = "AnchorObservation"
	EvidenceKindAnchorDegraded    = "AnchorDegraded"
	EvidenceKindExportBundle      = "ExportBundle"
)

// OCRBlockRecord is one recognized text block persisted against a frame, as
// the OCR index projection keys it.
type OCRBlockRecord struct {
	OCRBlockID    string   `json:"ocr_block_id"`
	FrameEventID  string   `json:"frame_event_id"`
	FrameMS       int64    `json:"frame_ms"`
	Text          string   `json:"text"`
	BBoxNorm      BBoxNorm `json:"bbox_norm"`
	Confidence    float64  `json:"confidence"`
	Language      string   `json:"language"`
}

// Runbook is the replayed state of one runbook: RunbookCreated establishes
// it, RunbookUpdated mutates fields in place. Extra fields the event payload
// carries pass through verbatim via Extra, since the specification leaves the
// runbook body schema open beyond id/title/steps.
type Runbook struct {
	RunbookID string         `json:"runbook_id"`
	Title     string         `json:"title"`
	StepIDs   []string       `json:"step_ids"`
	Extra     map[string]any `json:"extra,omitempty"`
}
