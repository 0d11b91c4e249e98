package eventlog

// EventType is a tag from the closed set of event types the log accepts.
// Projections ignore event types outside this set for forward compatibility,
// but AppendEvent itself does not enforce closedness: new types are added
// here as the schema evolves, never invented ad hoc by callers.
type EventType string

const (
	KeyframeCaptured          EventType = "KeyframeCaptured"
	ClickCaptured             EventType = "ClickCaptured"
	WindowMetaCaptured        EventType = "WindowMetaCaptured"
	OcrBlocksPersisted        EventType = "OcrBlocksPersisted"
	StepsCandidatesGenerated  EventType = "StepsCandidatesGenerated"
	StepEditApplied           EventType = "StepEditApplied"
	AnchorCandidatesGenerated EventType = "AnchorCandidatesGenerated"
	AnchorResolved            EventType = "AnchorResolved"
	AnchorDegraded            EventType = "AnchorDegraded"
	AnchorManuallySet         EventType = "AnchorManuallySet"
	VerifierRunCompleted      EventType = "VerifierRunCompleted"
	RunbookCreated            EventType = "RunbookCreated"
	RunbookUpdated            EventType = "RunbookUpdated"
	ExportCreated             EventType = "ExportCreated"
	AgentPipelineRunCompleted EventType = "AgentPipelineRunCompleted"
	ScreenExplained           EventType = "ScreenExplained"
	StorageGcRan              EventType = "StorageGcRan"
	TutorialGenerated         EventType = "TutorialGenerated"
)
