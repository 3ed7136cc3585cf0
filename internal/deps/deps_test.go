package deps

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present", "exit 0")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestCheckBinariesProbesVersion(t *testing.T) {
	binDir := t.TempDir()
	ytdlp := writeStub(t, binDir, "yt-dlp", "echo\necho 2025.10.22")
	broken := writeStub(t, binDir, "broken", "exit 3")

	results := CheckBinaries(context.Background(), []Requirement{
		{Name: "yt-dlp", Command: ytdlp, VersionArgs: []string{"--version"}},
		{Name: "broken", Command: broken, VersionArgs: []string{"--version"}},
	})
	if results[0].Version != "2025.10.22" {
		t.Fatalf("unexpected version %q", results[0].Version)
	}
	if !results[1].Available || results[1].Detail == "" {
		t.Fatalf("failed probe should keep binary available with a detail, got %#v", results[1])
	}
}

func TestMissingIgnoresOptional(t *testing.T) {
	statuses := []Status{
		{Name: "yt-dlp", Available: false},
		{Name: "ffmpeg", Available: true},
		{Name: "extra", Available: false, Optional: true},
	}
	if got := Missing(statuses); !slices.Equal(got, []string{"yt-dlp"}) {
		t.Fatalf("Missing = %v", got)
	}
}
