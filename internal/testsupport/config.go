package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"ytmusicdl/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// TestKey is the worker creation secret used by NewConfig.
const TestKey = "testkeytestkeytestkeytestkeytest"

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ledger.Path = filepath.Join(base, "ledger.db")
	cfgVal.Manager.Bind = "127.0.0.1:0"
	cfgVal.Manager.WorkerKey = TestKey
	cfgVal.Downloader.Key = TestKey
	cfgVal.Downloader.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRecoveryTimeout overrides the session recovery window in seconds.
func WithRecoveryTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Manager.SessionRecoveryTimeout = seconds
	}
}

// WithAdminToken sets the admin API and restart token.
func WithAdminToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Manager.AdminToken = token
	}
}

// WithDuplicateVideos lets one session request the same video repeatedly.
func WithDuplicateVideos() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Manager.AllowSameVideoMultipleTimes = true
	}
}

// WithWakeURLs sets the urls pinged when a client asks to wake downloaders.
func WithWakeURLs(urls ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Manager.WakeURLs = urls
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, yt-dlp and ffmpeg are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DownloadDir)
}
