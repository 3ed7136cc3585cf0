package broker

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	closeGrace     = time.Second
	sendBufferSize = 256

	// CloseAbnormal is reported when the peer vanished without a close frame.
	CloseAbnormal protocol.CloseCode = websocket.CloseAbnormalClosure
)

type closeFrame struct {
	code   protocol.CloseCode
	reason string
}

// wsConn adapts a websocket to registry.Conn. Send and Close never block.
type wsConn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	send      chan []byte
	closeReq  chan closeFrame
	closeOnce sync.Once
	readDone  chan struct{}
	done      chan struct{}

	pingInterval time.Duration
	jsonPing     bool

	mu       sync.Mutex
	sentCode protocol.CloseCode
}

func newConn(ws *websocket.Conn, logger *slog.Logger, pingInterval time.Duration, jsonPing bool) *wsConn {
	return &wsConn{
		ws:           ws,
		logger:       logger,
		send:         make(chan []byte, sendBufferSize),
		closeReq:     make(chan closeFrame, 1),
		readDone:     make(chan struct{}),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		jsonPing:     jsonPing,
	}
}

// Send queues p. A peer that cannot keep up is disconnected.
func (c *wsConn) Send(p protocol.Packet) {
	data, err := protocol.Encode(p)
	if err != nil {
		c.logger.Error("encode packet failed", logging.String("packet", p.PacketID()), logging.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		logging.WarnWithContext(c.logger, "outbound buffer full; closing connection", "send_overflow",
			logging.String("packet", p.PacketID()),
			logging.String(logging.FieldImpact, "peer disconnected"),
		)
		c.Close(protocol.CloseDefault, "Connection too slow")
	}
}

// Close asks the write pump to flush queued packets and send a close frame.
// Only the first call has an effect.
func (c *wsConn) Close(code protocol.CloseCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.sentCode = code
		c.mu.Unlock()
		c.closeReq <- closeFrame{code: code, reason: reason}
	})
}

// writePump owns all writes to the socket.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		close(c.done)
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
			if c.jsonPing {
				if data, err := protocol.Encode(protocol.Ping{}); err == nil {
					if err := c.write(data); err != nil {
						return
					}
				}
			}
		case frame := <-c.closeReq:
			c.flush()
			message := websocket.FormatCloseMessage(int(frame.code), frame.reason)
			if err := c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait)); err != nil {
				return
			}
			select {
			case <-c.readDone:
			case <-time.After(closeGrace):
			}
			return
		case <-c.readDone:
			return
		}
	}
}

// flush writes whatever is already queued so packets sent before Close
// reach the peer ahead of the close frame.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// frameHandler consumes one inbound message.
type frameHandler func(messageType int, data []byte)

// readLoop reads until the socket fails and returns the close code the
// session should be judged by: the peer's code when it sent one, else the
// code we sent, else CloseAbnormal.
//
// At most maxLength+1 bytes of a message are buffered, so handlers see an
// oversized message as one longer than maxLength and pick the close code
// themselves. Zero means no limit.
func (c *wsConn) readLoop(maxLength int64, handle frameHandler) protocol.CloseCode {
	defer close(c.readDone)

	timeout := 3 * c.pingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(timeout))
	})

	for {
		messageType, data, err := c.readMessage(maxLength)
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseNoStatusReceived {
				return protocol.CloseCode(closeErr.Code)
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.sentCode != 0 {
				return c.sentCode
			}
			return CloseAbnormal
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
		if c.closing() {
			continue
		}
		handle(messageType, data)
	}
}

// readMessage returns the next message truncated to maxLength+1 bytes. The
// unread remainder is discarded by the following NextReader call.
func (c *wsConn) readMessage(maxLength int64) (int, []byte, error) {
	messageType, r, err := c.ws.NextReader()
	if err != nil {
		return 0, nil, err
	}
	if maxLength > 0 {
		r = io.LimitReader(r, maxLength+1)
	}
	data, err := io.ReadAll(r)
	return messageType, data, err
}

// closing reports whether Close was requested; frames that arrive during the
// close handshake are dropped.
func (c *wsConn) closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sentCode != 0
}
