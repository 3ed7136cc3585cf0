package downloader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ytmusicdl/internal/downloader"
	"ytmusicdl/internal/protocol"
)

type fakeManager struct {
	server    *httptest.Server
	conns     chan *websocket.Conn
	protocols chan []string
}

func newFakeManager(t *testing.T) *fakeManager {
	t.Helper()
	m := &fakeManager{conns: make(chan *websocket.Conn, 1), protocols: make(chan []string, 1)}
	upgrader := websocket.Upgrader{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.protocols <- websocket.Subprotocols(r)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.conns <- ws
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *fakeManager) wsURL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

func (m *fakeManager) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-m.conns:
		t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(waitTimeout):
		t.Fatal("downloader never connected")
		return nil
	}
}

func sendManager(t *testing.T, ws *websocket.Conn, p protocol.ManagerPacket) {
	t.Helper()
	data, err := protocol.Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %s: %v", p.PacketID(), err)
	}
}

func readWorker(t *testing.T, ws *websocket.Conn) protocol.WorkerPacket {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	packet, err := protocol.DecodeWorker(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return packet
}

func newTestClient(t *testing.T, managerURL string, tools *fakeTools) *downloader.Client {
	t.Helper()
	sup, _, _ := newSupervisor(t, tools)
	return downloader.NewClient(downloader.ClientOptions{
		ManagerURL: managerURL,
		ContactURL: "http://worker.example.com:8081",
		Key:        "secret",
	}, sup)
}

func TestClientRunsJobAndHonorsRestart(t *testing.T) {
	manager := newFakeManager(t)
	client := newTestClient(t, manager.wsURL(), &fakeTools{stdout: []string{"1/2", "2/2"}})

	result := make(chan error, 1)
	go func() { result <- client.Run(context.Background()) }()

	ws := manager.accept(t)
	protocols := <-manager.protocols
	if len(protocols) != 2 || protocols[0] != "key.secret" || protocols[1] != "contact.http://worker.example.com:8081" {
		t.Fatalf("unexpected subprotocols %v", protocols)
	}

	sendManager(t, ws, protocol.Init{MaxAudioLength: 600})
	sendManager(t, ws, startPacket("job-1", ""))

	var ids []string
	for {
		packet := readWorker(t, ws)
		ids = append(ids, packet.PacketID())
		if packet.PacketID() == protocol.IDDownloadFinish {
			break
		}
	}
	if ids[0] != protocol.IDDownloadStartConfirm {
		t.Fatalf("expected confirm first, got %v", ids)
	}

	sendManager(t, ws, protocol.Restart{})
	select {
	case err := <-result:
		if !errors.Is(err, downloader.ErrRestartRequested) {
			t.Fatalf("Run returned %v, want ErrRestartRequested", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after restart")
	}

	_ = ws.SetReadDeadline(time.Now().Add(waitTimeout))
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal close from downloader, got %v", err)
	}
}

func TestClientReturnsWhenConnectionDrops(t *testing.T) {
	manager := newFakeManager(t)
	client := newTestClient(t, manager.wsURL(), &fakeTools{})

	result := make(chan error, 1)
	go func() { result <- client.Run(context.Background()) }()

	ws := manager.accept(t)
	ws.Close()

	select {
	case err := <-result:
		if err == nil || errors.Is(err, downloader.ErrRestartRequested) {
			t.Fatalf("unexpected Run result %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after disconnect")
	}
}

func TestClientStopsWithContext(t *testing.T) {
	manager := newFakeManager(t)
	client := newTestClient(t, manager.wsURL(), &fakeTools{})
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() { result <- client.Run(ctx) }()
	manager.accept(t)
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientDialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)
	client := newTestClient(t, "ws"+strings.TrimPrefix(server.URL, "http"), &fakeTools{})

	err := client.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 dial error, got %v", err)
	}
}
