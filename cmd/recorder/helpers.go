package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/providers"
)

func readFileJSON(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: read %q: %w", path, err)
	}
	return b, nil
}

type keyframePayload struct {
	AssetID    string  `json:"asset_id"`
	FrameMS    int64   `json:"frame_ms"`
	WidthPx    int     `json:"width_px"`
	HeightPx   int     `json:"height_px"`
	DisplayID  int     `json:"display_id"`
	PixelScale float64 `json:"pixel_scale"`
}

// latestFrame finds the last KeyframeCaptured event in events and reads its
// asset back into a providers.Frame. It returns (nil, nil) when the session
// has no keyframe yet, which anchor.Reacquire treats as NO_KEYFRAME.
func latestFrame(ctx context.Context, a *app, events []eventlog.Event) (*providers.Frame, error) {
	var kf *keyframePayload
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EventType != eventlog.KeyframeCaptured {
			continue
		}
		var p keyframePayload
		if err := json.Unmarshal([]byte(events[i].PayloadCanonJSON), &p); err != nil {
			return nil, fmt.Errorf("recorder: decode keyframe payload: %w", err)
		}
		kf = &p
		break
	}
	if kf == nil {
		return nil, nil
	}

	png, err := a.store.Read(ctx, kf.AssetID)
	if err != nil {
		return nil, err
	}
	return &providers.Frame{
		PNG:        png,
		FrameMS:    kf.FrameMS,
		WidthPx:    kf.WidthPx,
		HeightPx:   kf.HeightPx,
		DisplayID:  kf.DisplayID,
		PixelScale: kf.PixelScale,
	}, nil
}
