package config_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/evidencerec/core/internal/config"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeTemp(t, "data_dir: \"/var/lib/recorder\"\nlog_level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *config.Config, 4)
	go func() {
		_ = config.Watch(ctx, path, func(c *config.Config) { changes <- c })
	}()

	// Give the watcher time to register before mutating the file.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("data_dir: \"/var/lib/recorder\"\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case c := <-changes:
		if c.LogLevel != "debug" {
			t.Errorf("reloaded LogLevel = %q, want debug", c.LogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatch_SkipsBrokenReload(t *testing.T) {
	path := writeTemp(t, "data_dir: \"/var/lib/recorder\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *config.Config, 4)
	go func() {
		_ = config.Watch(ctx, path, func(c *config.Config) { changes <- c })
	}()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(":::invalid yaml:::"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case c := <-changes:
		t.Fatalf("expected no reload for broken config, got %+v", c)
	case <-time.After(500 * time.Millisecond):
		// No change delivered, as expected.
	}
}
