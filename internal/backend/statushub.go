package backend

import (
	"sync"

	"github.com/evidencerec/core/internal/capture"
)

// CaptureStatus is one notification the capture loop publishes on a
// start/stop transition.
type CaptureStatus struct {
	SessionID string
	Status    capture.Status
}

// StatusHub is a small pub/sub fan-out: every subscriber gets its own
// buffered channel, fed by the capture loop's Notify calls. A slow or absent
// subscriber never blocks the capture loop — sends are non-blocking and
// drop when a subscriber's buffer is full.
type StatusHub struct {
	mu          sync.Mutex
	subscribers []chan CaptureStatus
}

// NewStatusHub constructs an empty hub.
func NewStatusHub() *StatusHub {
	return &StatusHub{}
}

// Subscribe registers a new listener and returns its receive-only channel.
func (h *StatusHub) Subscribe() <-chan CaptureStatus {
	ch := make(chan CaptureStatus, 8)
	h.mu.Lock()
	h.subscribers = append(h.subscribers, ch)
	h.mu.Unlock()
	return ch
}

// Notify implements capture.StatusHook, fanning sessionID/status out to
// every subscriber.
func (h *StatusHub) Notify(sessionID string, status capture.Status) {
	cs := CaptureStatus{SessionID: sessionID, Status: status}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- cs:
		default:
		}
	}
}
