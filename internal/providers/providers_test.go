package providers_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/evidencerec/core/internal/providers"
)

func TestStubCaptureProvider_FillsDefaults(t *testing.T) {
	p := providers.NewStubCaptureProvider(providers.StubCaptureConfig{})
	f, err := p.CaptureFrame(context.Background())
	if err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	if f.WidthPx != 1280 || f.HeightPx != 800 {
		t.Errorf("defaults not applied: got %dx%d", f.WidthPx, f.HeightPx)
	}
	if len(f.PNG) == 0 {
		t.Error("expected non-empty PNG payload")
	}
}

func TestStubCaptureProvider_RespectsContextCancellation(t *testing.T) {
	p := providers.NewStubCaptureProvider(providers.StubCaptureConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.CaptureFrame(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestStubOCRProvider_EmptyBlocksIsValid(t *testing.T) {
	p := &providers.StubOCRProvider{}
	blocks, err := p.RecognizeBlocks(context.Background(), providers.Frame{})
	if err != nil {
		t.Fatalf("RecognizeBlocks: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("expected 0 blocks, got %d", len(blocks))
	}
}

func TestStubOCRProvider_RejectsInvalidConfidence(t *testing.T) {
	p := &providers.StubOCRProvider{Blocks: []providers.OCRBlock{
		{Text: "hi", Confidence: 1.5, BBoxNorm: providers.BBoxNorm{X: 0, Y: 0, W: 0.1, H: 0.1}},
	}}
	if _, err := p.RecognizeBlocks(context.Background(), providers.Frame{}); err == nil {
		t.Fatal("expected PROVIDER_SCHEMA_INVALID for out-of-range confidence")
	}
}

func TestValidateOCRBlock_RejectsEmptyText(t *testing.T) {
	err := providers.ValidateOCRBlock(providers.OCRBlock{
		Text:       "",
		Confidence: 0.9,
		BBoxNorm:   providers.BBoxNorm{X: 0, Y: 0, W: 0.1, H: 0.1},
	})
	if err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestStubVisionProvider_LocatesInjectedTarget(t *testing.T) {
	raw := map[string]json.RawMessage{
		"submit-button": json.RawMessage(`{"found":true,"x":0.1,"y":0.2,"w":0.05,"h":0.03,"confidence":0.92}`),
	}
	vp, err := providers.NewStubVisionProviderFromJSON(raw)
	if err != nil {
		t.Fatalf("NewStubVisionProviderFromJSON: %v", err)
	}

	loc, found, err := vp.Locate(context.Background(), providers.Frame{}, "submit-button")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if loc.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", loc.Confidence)
	}
}

func TestStubVisionProvider_NotFoundForUnknownTarget(t *testing.T) {
	vp, err := providers.NewStubVisionProviderFromJSON(nil)
	if err != nil {
		t.Fatalf("NewStubVisionProviderFromJSON: %v", err)
	}
	_, found, err := vp.Locate(context.Background(), providers.Frame{}, "nope")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if found {
		t.Error("expected found=false for unregistered target")
	}
}

func TestStubVisionProvider_NotFoundWhenInjectedFoundIsFalse(t *testing.T) {
	raw := map[string]json.RawMessage{
		"missing-el": json.RawMessage(`{"found":false}`),
	}
	vp, err := providers.NewStubVisionProviderFromJSON(raw)
	if err != nil {
		t.Fatalf("NewStubVisionProviderFromJSON: %v", err)
	}
	_, found, err := vp.Locate(context.Background(), providers.Frame{}, "missing-el")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if found {
		t.Error("expected found=false")
	}
}
