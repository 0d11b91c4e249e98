// Package providers defines the capability interfaces at the engine's
// external seams — screen capture, OCR, and vision-based anchor grounding —
// and a deterministic "stub" implementation of each, driven entirely by the
// operational knobs the specification names for tests and determinism. Real
// implementations (macOS capture/OCR shims, hosted vision models) are
// explicitly out of scope; the core only ever takes these as constructor
// arguments, per the design notes on dynamic dispatch.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/evidencerec/core/internal/errs"
)

// Mode selects which concrete implementation a provider resolves to.
type Mode string

const (
	ModeStub Mode = "stub"
	ModeReal Mode = "real"
	ModeAuto Mode = "auto"
)

// Frame is one captured keyframe: PNG bytes plus its logical timing and pixel
// metadata.
type Frame struct {
	PNG        []byte
	FrameMS    int64
	WidthPx    int
	HeightPx   int
	DisplayID  int
	PixelScale float64
}

// CaptureProvider produces keyframes on demand. Implementations must be safe
// for concurrent use; the capture loop calls CaptureFrame from a single
// background goroutine per session, but tests may call it directly.
type CaptureProvider interface {
	CaptureFrame(ctx context.Context) (Frame, error)
}

// OCRBlock is one recognized text region within a frame.
type OCRBlock struct {
	Text       string
	Confidence float64 // [0,1]
	BBoxNorm   BBoxNorm
	Language   string
}

// BBoxNorm is a bounding box normalized to [0,1] on both axes, as providers
// return it. The engine rescales to the [0,10000] integer space used by
// locators at the point of ingestion.
type BBoxNorm struct {
	X, Y, W, H float64
}

// OCRProvider extracts text blocks from a captured frame.
type OCRProvider interface {
	RecognizeBlocks(ctx context.Context, frame Frame) ([]OCRBlock, error)
}

// VisionLocator is a single candidate location a vision provider reports for
// a target signature, alongside its own confidence for that candidate.
type VisionLocator struct {
	BBoxNorm   BBoxNorm
	Confidence float64 // [0,1]
}

// VisionProvider re-grounds an anchor's target signature against a fresh
// frame, used by the anchor engine's reacquisition path.
type VisionProvider interface {
	Locate(ctx context.Context, frame Frame, targetSignature string) (VisionLocator, bool, error)
}

// ValidateOCRBlock enforces the provider-schema invariants named in the
// specification's error-handling design: confidence must be in [0,1], text
// must be non-empty, and the bbox must lie within [0,1]^2. A provider
// returning otherwise is never swallowed; the caller should wrap this in
// PROVIDER_SCHEMA_INVALID and abort the enclosing job.
func ValidateOCRBlock(b OCRBlock) error {
	if b.Confidence < 0 || b.Confidence > 1 {
		return errs.NewProviderSchemaInvalid("ocr block confidence %v out of range [0,1]", b.Confidence)
	}
	if b.Text == "" {
		return errs.NewProviderSchemaInvalid("ocr block text is empty")
	}
	return validateBBox(b.BBoxNorm)
}

// ValidateVisionLocator enforces the same provider-schema invariants for a
// vision provider's locator result.
func ValidateVisionLocator(l VisionLocator) error {
	if l.Confidence < 0 || l.Confidence > 1 {
		return errs.NewProviderSchemaInvalid("vision locator confidence %v out of range [0,1]", l.Confidence)
	}
	return validateBBox(l.BBoxNorm)
}

func validateBBox(b BBoxNorm) error {
	if b.X < 0 || b.X > 1 || b.Y < 0 || b.Y > 1 || b.W < 0 || b.W > 1 || b.H < 0 || b.H > 1 {
		return errs.NewProviderSchemaInvalid("bbox %+v out of range [0,1]^2", b)
	}
	return nil
}

// StubCaptureConfig drives StubCaptureProvider, sourced from the
// specification's operational knobs (display id, pixel dims, scale, burst
// cap).
type StubCaptureConfig struct {
	DisplayID  int
	WidthPx    int
	HeightPx   int
	PixelScale float64
}

// StubCaptureProvider is a deterministic CaptureProvider: it returns a fixed
// 1x1 PNG payload tagged with incrementing frame timestamps, so tests and
// provider-mode "stub" runs never depend on OS screen-capture permissions.
type StubCaptureProvider struct {
	cfg     StubCaptureConfig
	startMS int64
	frameN  int
	now     func() time.Time
}

// onePixelPNG is a minimal valid 1x1 transparent PNG, used as deterministic
// frame content in stub mode.
var onePixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

// NewStubCaptureProvider constructs a StubCaptureProvider with the given
// config. Defaults fill zero-value fields: 1280x800 at scale 1, display 0.
func NewStubCaptureProvider(cfg StubCaptureConfig) *StubCaptureProvider {
	if cfg.WidthPx <= 0 {
		cfg.WidthPx = 1280
	}
	if cfg.HeightPx <= 0 {
		cfg.HeightPx = 800
	}
	if cfg.PixelScale <= 0 {
		cfg.PixelScale = 1
	}
	return &StubCaptureProvider{cfg: cfg, now: time.Now}
}

func (p *StubCaptureProvider) CaptureFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	default:
	}
	if p.startMS == 0 {
		p.startMS = p.now().UnixMilli()
	}
	frameMS := p.now().UnixMilli() - p.startMS
	p.frameN++

	png := make([]byte, len(onePixelPNG))
	copy(png, onePixelPNG)

	return Frame{
		PNG:        png,
		FrameMS:    frameMS,
		WidthPx:    p.cfg.WidthPx,
		HeightPx:   p.cfg.HeightPx,
		DisplayID:  p.cfg.DisplayID,
		PixelScale: p.cfg.PixelScale,
	}, nil
}

// StubOCRProvider returns a fixed set of OCR blocks for every frame,
// configured via the "fixture-accept mode" knob: when Blocks is empty it
// returns no blocks rather than synthesizing any, so tests can exercise the
// empty-coverage path deliberately.
type StubOCRProvider struct {
	Blocks []OCRBlock
}

func (p *StubOCRProvider) RecognizeBlocks(ctx context.Context, frame Frame) ([]OCRBlock, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	for _, b := range p.Blocks {
		if err := ValidateOCRBlock(b); err != nil {
			return nil, err
		}
	}
	return p.Blocks, nil
}

// RawVisionResult is the shape of the "injected raw vision JSON" operational
// knob: a test or CLI invocation supplies this JSON directly instead of
// calling a real vision model.
type RawVisionResult struct {
	Found      bool    `json:"found"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"`
}

// StubVisionProvider resolves target signatures to raw, test-injected
// results keyed by signature.
type StubVisionProvider struct {
	Results map[string]RawVisionResult
}

// NewStubVisionProviderFromJSON parses a map of target signature to raw JSON
// vision result, matching the "injected raw vision JSON" operational knob.
func NewStubVisionProviderFromJSON(raw map[string]json.RawMessage) (*StubVisionProvider, error) {
	results := make(map[string]RawVisionResult, len(raw))
	for sig, r := range raw {
		var v RawVisionResult
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, errs.NewProviderSchemaInvalid("vision: invalid injected JSON for %q: %v", sig, err)
		}
		results[sig] = v
	}
	return &StubVisionProvider{Results: results}, nil
}

func (p *StubVisionProvider) Locate(ctx context.Context, frame Frame, targetSignature string) (VisionLocator, bool, error) {
	select {
	case <-ctx.Done():
		return VisionLocator{}, false, ctx.Err()
	default:
	}
	r, ok := p.Results[targetSignature]
	if !ok || !r.Found {
		return VisionLocator{}, false, nil
	}
	loc := VisionLocator{
		BBoxNorm:   BBoxNorm{X: r.X, Y: r.Y, W: r.W, H: r.H},
		Confidence: r.Confidence,
	}
	if err := ValidateVisionLocator(loc); err != nil {
		return VisionLocator{}, false, err
	}
	return loc, true, nil
}
