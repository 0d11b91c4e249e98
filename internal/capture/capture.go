// Package capture implements the single-session keyframe capture loop: a
// synchronous first frame on start, an optional background cadence loop
// persisting KeyframeCaptured/ClickCaptured/WindowMetaCaptured events, and
// conflict-guarded stop signaling. Only one session's loop may be active at
// a time, mirroring the in-memory singleton posture the backend owns.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/evidencerec/core/internal/assets"
	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/policy"
	"github.com/evidencerec/core/internal/providers"
)

// minInterval is the floor the cadence loop clamps interval_ms to.
const minInterval = 100 * time.Millisecond

// Settings configures one capture session.
type Settings struct {
	IntervalMS      int64
	Burst           int // 1 means "single frame only, no background loop"
	SampleClicks    bool
	SampleWindowMeta bool
	AssumedPermission bool // test/headless override for the OS permission prompt
}

// Status is the loop's externally visible lifecycle state.
type Status string

const (
	StatusStopped Status = "Stopped"
	StatusRunning Status = "Running"
)

// StatusHook is notified on every start/stop transition.
type StatusHook interface {
	Notify(sessionID string, status Status)
}

// NullHook discards notifications; the default when no hook is wired.
type NullHook struct{}

func (NullHook) Notify(string, Status) {}

// Loop owns the single active capture session's lifecycle.
type Loop struct {
	mu      sync.Mutex
	active  string // session_id of the active capture, "" if none
	cancel  context.CancelFunc
	stopped chan struct{}

	assetsStore *assets.Store
	log         *eventlog.Log
	capture     providers.CaptureProvider
	hook        StatusHook
}

// New builds a Loop. hook may be nil, in which case notifications are
// discarded.
func New(store *assets.Store, log *eventlog.Log, cp providers.CaptureProvider, hook StatusHook) *Loop {
	if hook == nil {
		hook = NullHook{}
	}
	return &Loop{assetsStore: store, log: log, capture: cp, hook: hook}
}

// Start enforces the permission precondition, rejects a conflicting active
// session, captures one frame synchronously, and — if burst != 1 — spawns
// the background cadence loop.
func (l *Loop) Start(ctx context.Context, sessionID string, s Settings) error {
	if err := policy.RequireScreenRecordingPermission(s.AssumedPermission); err != nil {
		return err
	}

	l.mu.Lock()
	if l.active != "" && l.active != sessionID {
		l.mu.Unlock()
		return errs.NewConflict("capture: session %q already active, cannot start %q", l.active, sessionID)
	}
	l.active = sessionID
	l.mu.Unlock()

	if err := l.captureOneFrame(ctx, sessionID, s); err != nil {
		l.mu.Lock()
		l.active = ""
		l.mu.Unlock()
		return err
	}

	if s.Burst == 1 {
		l.hook.Notify(sessionID, StatusRunning)
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	l.mu.Lock()
	l.cancel = cancel
	l.stopped = stopped
	l.mu.Unlock()

	interval := time.Duration(s.IntervalMS) * time.Millisecond
	if interval < minInterval {
		interval = minInterval
	}

	go l.run(loopCtx, sessionID, s, interval, stopped)

	l.hook.Notify(sessionID, StatusRunning)
	return nil
}

// run is the background cadence loop. It captures up to s.Burst-1
// additional frames (0 means unbounded until Stop), each an independent
// commit, and exits on ctx cancellation or burst exhaustion.
func (l *Loop) run(ctx context.Context, sessionID string, s Settings, interval time.Duration, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	captured := 1 // the synchronous first frame already counted
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.captureOneFrame(context.Background(), sessionID, s); err != nil {
				return
			}
			captured++
			if s.Burst > 1 && captured >= s.Burst {
				return
			}
		}
	}
}

// captureOneFrame runs the provider → assets.put → append_event path for a
// single keyframe, plus optional click/window-meta samples.
func (l *Loop) captureOneFrame(ctx context.Context, sessionID string, s Settings) error {
	frame, err := l.capture.CaptureFrame(ctx)
	if err != nil {
		return err
	}
	assetID, err := l.assetsStore.Put(ctx, frame.PNG)
	if err != nil {
		return err
	}
	if _, err := l.log.AppendEvent(ctx, sessionID, eventlog.KeyframeCaptured, map[string]any{
		"asset_id":    assetID,
		"frame_ms":    frame.FrameMS,
		"display_id":  frame.DisplayID,
		"width_px":    frame.WidthPx,
		"height_px":   frame.HeightPx,
		"pixel_scale": frame.PixelScale,
	}); err != nil {
		return err
	}

	if s.SampleClicks {
		if _, err := l.log.AppendEvent(ctx, sessionID, eventlog.ClickCaptured, map[string]any{
			"frame_ms": frame.FrameMS,
		}); err != nil {
			return err
		}
	}
	if s.SampleWindowMeta {
		if _, err := l.log.AppendEvent(ctx, sessionID, eventlog.WindowMetaCaptured, map[string]any{
			"frame_ms": frame.FrameMS,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Stop signals the loop if it belongs to sessionID, waits for it to exit,
// clears the active slot, and notifies the status hook. Stopping a session
// that is not the active one, or stopping when nothing is active, is a
// no-op: the spec's "clears the slot if it matches" language.
func (l *Loop) Stop(sessionID string) {
	l.mu.Lock()
	if l.active != sessionID {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	stopped := l.stopped
	l.active = ""
	l.cancel = nil
	l.stopped = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopped != nil {
		<-stopped
	}
	l.hook.Notify(sessionID, StatusStopped)
}

// ActiveSession returns the currently active session id, or "" if none.
func (l *Loop) ActiveSession() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
