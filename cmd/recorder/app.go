package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/evidencerec/core/internal/assets"
	"github.com/evidencerec/core/internal/backend"
	"github.com/evidencerec/core/internal/config"
	"github.com/evidencerec/core/internal/providers"
	"github.com/evidencerec/core/internal/schema"
)

// app holds the process-wide dependencies every subcommand operates
// against. It is constructed once by the root command's PersistentPreRunE
// and torn down in PersistentPostRun.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	store   *assets.Store
	backend *backend.Backend
}

// init loads configuration from configPath, opens the SQLite store and
// asset directory beneath cfg.DataDir, and constructs the backend
// singleton. Capture, OCR, and vision providers all run in stub mode —
// §1/§2's Non-goals exclude real screen-capture and model integrations from
// this repo.
func (a *app) init(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.LogLevel)
	slog.SetDefault(a.logger)

	dbPath := filepath.Join(cfg.DataDir, "state.db")
	db, err := schema.Open(dbPath)
	if err != nil {
		return fmt.Errorf("recorder: open database: %w", err)
	}
	a.db = db

	assetsRoot := filepath.Join(cfg.DataDir, "assets")
	store, err := assets.New(assetsRoot, db)
	if err != nil {
		return fmt.Errorf("recorder: open asset store: %w", err)
	}
	a.store = store

	cp := providers.NewStubCaptureProvider(providers.StubCaptureConfig{
		DisplayID:  cfg.Capture.DisplayID,
		WidthPx:    cfg.Capture.WidthPx,
		HeightPx:   cfg.Capture.HeightPx,
		PixelScale: cfg.Capture.PixelScale,
	})

	a.backend = backend.New(db, assetsRoot, store, cp, backend.Settings{
		NetworkAllowlist:  cfg.NetworkAllowlist,
		CaptureInterval:   cfg.Capture.IntervalMS,
		CaptureBurst:      cfg.Capture.Burst,
		SampleClicks:      cfg.Capture.SampleClicks,
		SampleWindowMeta:  cfg.Capture.SampleWindowMeta,
		AssumedPermission: cfg.AssumedPermission,
	})

	a.logger.Info("recorder initialized",
		slog.String("config_path", configPath),
		slog.String("data_dir", cfg.DataDir),
	)
	return nil
}

// close releases the database handle. Safe to call even if init failed
// partway through.
func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
