package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/protocol"
)

// ErrRestartRequested is returned by Run when the manager asked every
// downloader to restart.
var ErrRestartRequested = errors.New("manager requested restart")

const (
	clientWriteWait = 10 * time.Second
	defaultReadWait = 60 * time.Second
)

// ClientOptions describe how to reach the manager.
type ClientOptions struct {
	ManagerURL string
	ContactURL string
	Key        string
	// ReadWait bounds the silence tolerated between manager pings.
	ReadWait time.Duration
	Logger   *slog.Logger
}

// Client holds the control connection to the manager and feeds jobs to a
// Supervisor.
type Client struct {
	opts       ClientOptions
	supervisor *Supervisor
	logger     *slog.Logger
	dialer     *websocket.Dialer
}

// NewClient builds a client for one downloader process.
func NewClient(opts ClientOptions, supervisor *Supervisor) *Client {
	if opts.ReadWait <= 0 {
		opts.ReadWait = defaultReadWait
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		opts:       opts,
		supervisor: supervisor,
		logger:     logging.NewComponentLogger(logger, "manager-link"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			Subprotocols:     []string{"key." + opts.Key, "contact." + opts.ContactURL},
		},
	}
}

// Run serves one connection until it drops, ctx ends, or the manager asks
// for a restart. In-flight jobs are cancelled before Run returns.
func (c *Client) Run(ctx context.Context) error {
	ws, resp, err := c.dialer.DialContext(ctx, c.opts.ManagerURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial manager: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial manager: %w", err)
	}
	c.logger.Info("connected to manager",
		logging.String(logging.FieldEventType, "manager_connected"),
		logging.String("manager_url", c.opts.ManagerURL),
		logging.String("contact_url", c.opts.ContactURL),
	)

	connCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.supervisor.Wait()
	}()

	link := &managerLink{ws: ws, logger: c.logger}
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadWait))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadWait))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(clientWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("manager connection lost: %w", err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadWait))
		if messageType != websocket.TextMessage {
			continue
		}
		packet, err := protocol.DecodeManager(data)
		if err != nil {
			c.logger.Warn("ignoring manager packet",
				logging.Error(err),
				logging.String(logging.FieldEventType, "packet_invalid"),
			)
			continue
		}
		switch p := packet.(type) {
		case *protocol.Init:
			c.supervisor.SetMaxAudioLength(p.MaxAudioLength)
			c.logger.Debug("init received", logging.Int("max_audio_length", p.MaxAudioLength))
		case *protocol.DownloadStart:
			c.supervisor.Start(connCtx, *p, link)
		case *protocol.Restart:
			c.logger.Info("manager requested restart",
				logging.String(logging.FieldEventType, "restart_requested"),
			)
			message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Server requested restart")
			_ = ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(clientWriteWait))
			return ErrRestartRequested
		}
	}
}

// managerLink serializes writes from the supervisor goroutine.
type managerLink struct {
	ws     *websocket.Conn
	logger *slog.Logger
	mu     sync.Mutex
}

func (l *managerLink) Send(p protocol.WorkerPacket) {
	data, err := protocol.Encode(p)
	if err != nil {
		l.logger.Error("encode packet failed", logging.String("packet", p.PacketID()), logging.Error(err))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.ws.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := l.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		l.logger.Debug("send to manager failed", logging.String("packet", p.PacketID()), logging.Error(err))
	}
}
