package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ytmusicdl/internal/config"
	"ytmusicdl/internal/downloader"
	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/testsupport"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeConfig persists cfg so commands can load it with --config.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOWNLOADER_CREATION_KEY", "")
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}

	out, _, err = runCLI(t, "config", "validate", "--config", target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	if _, _, err := runCLI(t, "config", "validate", "--config", target, "--role", "manager"); err == nil {
		t.Fatal("expected manager role validation to fail without a worker key")
	}
}

func TestHistoryReadsLocalLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()
	events := []ledger.Event{
		{Kind: ledger.JobCreated, SessionID: "s1", JobID: "j1", VideoID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", CreatedAt: time.Now()},
		{Kind: ledger.JobFailed, SessionID: "s1", JobID: "j1", VideoID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Detail: "Video unavailable", CreatedAt: time.Now()},
	}
	for _, ev := range events {
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	path := writeConfig(t, cfg)

	out, _, err := runCLI(t, "history", "--config", path, "--kind", "job_failed")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "job_failed")
	requireContains(t, out, "Video unavailable")
	if strings.Contains(out, "job_created") {
		t.Fatalf("kind filter ignored:\n%s", out)
	}

	out, _, err = runCLI(t, "history", "--config", path, "--json")
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var decoded []ledger.Event
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(decoded) != 2 || decoded[0].Kind != ledger.JobFailed {
		t.Fatalf("unexpected events %+v", decoded)
	}
}

func TestHistoryWithDisabledLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ledger.Enabled = false
	path := writeConfig(t, cfg)
	if _, _, err := runCLI(t, "history", "--config", path); err == nil || !strings.Contains(err.Error(), "ledger is disabled") {
		t.Fatalf("expected disabled ledger error, got %v", err)
	}
}

func TestDepsReportsMissingTools(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("yt-dlp"))
	cfg.Downloader.FFmpegBinary = "ffmpeg-not-installed"
	path := writeConfig(t, cfg)

	out, _, err := runCLI(t, "deps", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "FFmpeg") {
		t.Fatalf("expected missing FFmpeg, got %v", err)
	}
	requireContains(t, out, "yt-dlp")
	requireContains(t, out, "[OK]")
	requireContains(t, out, "[ERROR]")
}

func TestDepsPassesWithStubs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	path := writeConfig(t, cfg)
	if _, _, err := runCLI(t, "deps", "--config", path); err != nil {
		t.Fatalf("deps: %v", err)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeConfig(t, cfg)
	out, _, err := runCLI(t, "test-notify", "--config", path)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"restart", fmt.Errorf("link: %w", downloader.ErrRestartRequested), exitRestart},
		{"interrupted", context.Canceled, 1},
		{"failure", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestHistoryTrimsLongReasons(t *testing.T) {
	rows := historyRows([]ledger.Event{{
		Kind:      ledger.JobFailed,
		Title:     "Simon & Garfunkel",
		Detail:    "ERROR: " + strings.Repeat("x", 500),
		CreatedAt: time.Now(),
	}})
	out := renderTable("", historyColumns, rows)
	for _, line := range strings.Split(out, "\n") {
		if strings.Count(line, "x") > 60 {
			t.Fatalf("reason not trimmed: %q", line)
		}
	}
	if !strings.Contains(out, "Simon & Garfunkel") {
		t.Fatalf("title missing from %q", out)
	}
}
