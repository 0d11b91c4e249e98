package projections

// This file defines the JSON shapes event payloads are expected to decode
// into. They are the contract between event producers (capture loop, step
// editor, anchor engine, export pipeline, ...) and the projections that fold
// over them; producers pass payloads with these exact field names to
// eventlog.AppendEvent, which canonicalizes them.

// stepsCandidatesPayload is the StepsCandidatesGenerated event body.
type stepsCandidatesPayload struct {
	Steps []Step `json:"steps"`
}

// stepEditAppliedPayload is the StepEditApplied event body. Op carries one of
// the five operation shapes; OpType discriminates which fields are set.
type stepEditAppliedPayload struct {
	BaseSeq   int64         `json:"base_seq"`
	Op        stepEditOp    `json:"op"`
	AppliedAt string        `json:"applied_at"`
}

type stepEditOp struct {
	Type        string `json:"type"`
	AfterStepID string `json:"after_step_id,omitempty"`
	Step        *Step  `json:"step,omitempty"`
	StepID      string `json:"step_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Body        []Block `json:"body,omitempty"`
	NewIndex    int    `json:"new_index,omitempty"`
}

const (
	stepOpInsertAfter  = "InsertAfter"
	stepOpUpdateTitle  = "UpdateTitle"
	stepOpReplaceBody  = "ReplaceBody"
	stepOpDelete       = "Delete"
	stepOpReorder      = "Reorder"
)

// anchorCandidatesPayload is the AnchorCandidatesGenerated event body.
type anchorCandidatesPayload struct {
	StepID     string            `json:"step_id"`
	Candidates []anchorCandidate `json:"candidates"`
}

type anchorCandidate struct {
	AnchorID        string    `json:"anchor_id"`
	Kind            string    `json:"kind"`
	TargetSignature string    `json:"target_signature"`
	Confidence      uint8     `json:"confidence"`
	Locators        []Locator `json:"locators"`
}

// anchorResolvedPayload is the AnchorResolved event body.
type anchorResolvedPayload struct {
	AnchorID   string    `json:"anchor_id"`
	Locators   []Locator `json:"locators"`
	Confidence uint8     `json:"confidence"`
}

// anchorDegradedPayload is the AnchorDegraded event body. Locators carries
// the anchor's last-verified locator set at the moment it degraded, per the
// evidence table's "last-verified locators, note=degraded:REASON".
type anchorDegradedPayload struct {
	AnchorID string    `json:"anchor_id"`
	Reason   string    `json:"reason"`
	Locators []Locator `json:"locators"`
}

// anchorManuallySetPayload is the AnchorManuallySet event body.
type anchorManuallySetPayload struct {
	AnchorID string    `json:"anchor_id"`
	Locators []Locator `json:"locators"`
}

// keyframeCapturedPayload is the KeyframeCaptured event body.
type keyframeCapturedPayload struct {
	AssetID    string  `json:"asset_id"`
	FrameMS    int64   `json:"frame_ms"`
	WidthPx    int     `json:"width_px"`
	HeightPx   int     `json:"height_px"`
	DisplayID  int     `json:"display_id"`
	PixelScale float64 `json:"pixel_scale"`
}

// clickCapturedPayload is the ClickCaptured event body. X and Y are
// normalized to [0,10000].
type clickCapturedPayload struct {
	FrameMS int64 `json:"frame_ms"`
	X       int64 `json:"x"`
	Y       int64 `json:"y"`
}

// windowMetaCapturedPayload is the WindowMetaCaptured event body.
type windowMetaCapturedPayload struct {
	FrameMS     int64  `json:"frame_ms"`
	BundleID    string `json:"bundle_id"`
	Title       string `json:"title"`
}

// ocrBlocksPersistedPayload is the OcrBlocksPersisted event body.
type ocrBlocksPersistedPayload struct {
	FrameEventID string            `json:"frame_event_id"`
	AssetID      *string           `json:"asset_id,omitempty"`
	Blocks       []ocrBlockPayload `json:"blocks"`
}

type ocrBlockPayload struct {
	OCRBlockID string   `json:"ocr_block_id"`
	FrameMS    int64    `json:"frame_ms"`
	Text       string   `json:"text"`
	BBoxNorm   BBoxNorm `json:"bbox_norm"`
	Confidence float64  `json:"confidence"`
	Language   string   `json:"language"`
}

// verifierRunCompletedPayload is the VerifierRunCompleted event body.
type verifierRunCompletedPayload struct {
	RunID          string  `json:"run_id"`
	Status         string  `json:"status"`
	ResultAssetID  *string `json:"result_asset_id,omitempty"`
	LogsAssetID    *string `json:"logs_asset_id,omitempty"`
}

// exportCreatedPayload is the ExportCreated event body.
type exportCreatedPayload struct {
	ExportID        string `json:"export_id"`
	BundleType      string `json:"bundle_type"`
	OutputPath      string `json:"output_path"`
	ManifestAssetID string `json:"manifest_asset_id"`
}

// RunbookCreated and RunbookUpdated payloads are decoded as raw maps in
// runbooks.go rather than fixed structs, since the runbook body schema is
// intentionally open beyond (runbook_id, title, step_ids).
