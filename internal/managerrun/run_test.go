package managerrun_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/gorilla/websocket"

	"ytmusicdl/internal/managerrun"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/testsupport"
)

func TestServeClearsDownloadsAndWelcomesClients(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stale := filepath.Join(cfg.Paths.DownloadDir, "old-session", "track.mp3")
	testsupport.WriteFile(t, stale, 1)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- managerrun.Serve(ctx, cfg, nil, listener) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+listener.Addr().String()+"/", nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if packet, err := protocol.DecodeServer(data); err != nil || packet.PacketID() != protocol.IDWelcome {
		t.Fatalf("expected welcome, got %s (err=%v)", data, err)
	}

	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale download survived start-up: %v", err)
	}
	second := flock.New(filepath.Join(cfg.Paths.DownloadDir, ".manager.lock"))
	if locked, _ := second.TryLock(); locked {
		_ = second.Unlock()
		t.Fatal("manager lock was not held")
	}
	if _, err := os.Stat(cfg.Ledger.Path); err != nil {
		t.Fatalf("ledger not opened: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestServeRefusesSecondManager(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.DownloadDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(filepath.Join(cfg.Paths.DownloadDir, ".manager.lock"))
	if locked, err := held.TryLock(); err != nil || !locked {
		t.Fatalf("take lock: %v", err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	err = managerrun.Serve(context.Background(), cfg, nil, listener)
	if err == nil || !strings.Contains(err.Error(), "already using") {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestRunRequiresWorkerKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Manager.WorkerKey = ""
	if err := managerrun.Run(context.Background(), cfg, managerrun.Options{}); err == nil {
		t.Fatal("expected missing worker key to fail")
	}
}
