package downloader_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ytmusicdl/internal/downloader"
)

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.mp3")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestArtifactStoreServesOnce(t *testing.T) {
	store := downloader.NewArtifactStore(time.Minute, nil)
	t.Cleanup(store.Close)
	store.Add("job-1", writeArtifact(t, "mp3-bytes"))

	server := httptest.NewServer(store.Handler())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/job-1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "mp3-bytes" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if store.Pending() != 0 {
		t.Fatalf("expected artifact to be claimed, pending=%d", store.Pending())
	}

	resp, err = http.Get(server.URL + "/job-1")
	if err != nil {
		t.Fatalf("second GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second fetch status %d, want 404", resp.StatusCode)
	}
}

func TestArtifactStoreWakeEndpoint(t *testing.T) {
	store := downloader.NewArtifactStore(time.Minute, nil)
	t.Cleanup(store.Close)
	server := httptest.NewServer(store.Handler())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("wake status %d, want 204", resp.StatusCode)
	}
}

func TestArtifactStoreExpiresUnclaimed(t *testing.T) {
	store := downloader.NewArtifactStore(20*time.Millisecond, nil)
	t.Cleanup(store.Close)
	path := writeArtifact(t, "x")
	store.Add("job-1", path)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("artifact was not removed after expiry")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := store.Take("job-1"); ok {
		t.Fatal("expired artifact should not be claimable")
	}
}

func TestArtifactStoreCloseRemovesFiles(t *testing.T) {
	store := downloader.NewArtifactStore(time.Minute, nil)
	path := writeArtifact(t, "x")
	store.Add("job-1", path)
	store.Close()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file removed on close, stat err=%v", err)
	}
	late := writeArtifact(t, "y")
	store.Add("job-2", late)
	if _, err := os.Stat(late); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected add after close to discard the file, stat err=%v", err)
	}
}
