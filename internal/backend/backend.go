// Package backend implements the process-wide singleton described by the
// specification's concurrency model: one value owning the storage handle,
// the asset store root, a settings/policy cell, capture status, capture-loop
// control, and the job manager, all behind exclusive locks. A panic inside a
// withLock section poisons the backend (mirrors a poisoned mutex): after
// that, Settings, ApplySettings and StartCapture return errs.Internal. The
// accessors (DB, Store, Log, Jobs, Allowlist, Hub), StopCapture and
// ActiveCaptureSession do not check the poisoned flag.
package backend

import (
	"context"
	"database/sql"
	"sync"

	"github.com/evidencerec/core/internal/assets"
	"github.com/evidencerec/core/internal/capture"
	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/eventlog"
	"github.com/evidencerec/core/internal/jobs"
	"github.com/evidencerec/core/internal/policy"
	"github.com/evidencerec/core/internal/providers"
)

// Settings is the mutable configuration cell capture and export consult on
// every call. Hot-reload (config's fsnotify watcher) replaces it wholesale.
type Settings struct {
	NetworkAllowlist  []string
	CaptureInterval   int64
	CaptureBurst      int
	SampleClicks      bool
	SampleWindowMeta  bool
	AssumedPermission bool
}

// Backend is the process-wide singleton.
type Backend struct {
	mu       sync.RWMutex
	poisoned bool

	db         *sql.DB
	assetsRoot string
	store      *assets.Store
	log        *eventlog.Log
	allowlist  *policy.NetworkAllowlist
	settings   Settings

	captureLoop *capture.Loop
	jobManager  *jobs.Manager
	hub         *StatusHub
}

// New constructs the backend singleton over an already-open database and
// asset root, wiring the capture loop to the given provider and the job
// manager to the shared database handle.
func New(db *sql.DB, assetsRoot string, store *assets.Store, cp providers.CaptureProvider, settings Settings) *Backend {
	hub := NewStatusHub()
	b := &Backend{
		db:         db,
		assetsRoot: assetsRoot,
		store:      store,
		log:        eventlog.New(db),
		allowlist:  policy.NewNetworkAllowlist(settings.NetworkAllowlist),
		settings:   settings,
		jobManager: jobs.New(db),
		hub:        hub,
	}
	b.captureLoop = capture.New(store, b.log, cp, hub)
	return b
}

// withLock runs fn holding the write lock, converting any panic into a
// poisoned backend and an errs.Internal return, matching the specification's
// "poisoned lock surfaces INTERNAL" guarantee.
func (b *Backend) withLock(fn func() error) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poisoned {
		return errs.NewInternal("backend: poisoned after a prior internal failure")
	}
	defer func() {
		if r := recover(); r != nil {
			b.poisoned = true
			err = errs.NewInternal("backend: recovered from panic: %v", r)
		}
	}()
	return fn()
}

func (b *Backend) withRLock(fn func() error) (err error) {
	b.mu.RLock()
	poisoned := b.poisoned
	b.mu.RUnlock()
	if poisoned {
		return errs.NewInternal("backend: poisoned after a prior internal failure")
	}
	return fn()
}

// DB returns the shared database handle.
func (b *Backend) DB() *sql.DB { return b.db }

// Store returns the shared asset store.
func (b *Backend) Store() *assets.Store { return b.store }

// Log returns the shared event log.
func (b *Backend) Log() *eventlog.Log { return b.log }

// Jobs returns the shared job manager.
func (b *Backend) Jobs() *jobs.Manager { return b.jobManager }

// Allowlist returns the shared network allowlist cell.
func (b *Backend) Allowlist() *policy.NetworkAllowlist { return b.allowlist }

// Hub returns the capture status pub/sub hub.
func (b *Backend) Hub() *StatusHub { return b.hub }

// Settings returns a copy of the current settings cell.
func (b *Backend) Settings() (Settings, error) {
	var s Settings
	err := b.withRLock(func() error {
		s = b.settings
		return nil
	})
	return s, err
}

// ApplySettings replaces the settings cell and the network allowlist in one
// locked step, the target of config hot-reload.
func (b *Backend) ApplySettings(s Settings) error {
	return b.withLock(func() error {
		b.settings = s
		b.allowlist.Set(s.NetworkAllowlist)
		return nil
	})
}

// StartCapture starts the capture loop for sessionID using the current
// settings cell.
func (b *Backend) StartCapture(ctx context.Context, sessionID string) error {
	settings, err := b.Settings()
	if err != nil {
		return err
	}
	return b.captureLoop.Start(ctx, sessionID, capture.Settings{
		IntervalMS:        settings.CaptureInterval,
		Burst:             settings.CaptureBurst,
		SampleClicks:      settings.SampleClicks,
		SampleWindowMeta:  settings.SampleWindowMeta,
		AssumedPermission: settings.AssumedPermission,
	})
}

// StopCapture stops the capture loop for sessionID, if active.
func (b *Backend) StopCapture(sessionID string) {
	b.captureLoop.Stop(sessionID)
}

// ActiveCaptureSession returns the currently capturing session id, or "".
func (b *Backend) ActiveCaptureSession() string {
	return b.captureLoop.ActiveSession()
}
