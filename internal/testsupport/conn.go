package testsupport

import (
	"sync"
	"testing"
	"time"

	"ytmusicdl/internal/protocol"
)

// Conn records packets and closes for assertions. It satisfies
// registry.Conn.
type Conn struct {
	mu          sync.Mutex
	packets     []protocol.Packet
	closed      bool
	closeCode   protocol.CloseCode
	closeReason string
	notify      chan struct{}
}

func NewConn() *Conn {
	return &Conn{notify: make(chan struct{}, 1)}
}

func (c *Conn) Send(p protocol.Packet) {
	c.mu.Lock()
	c.packets = append(c.packets, p)
	c.mu.Unlock()
	c.signal()
}

func (c *Conn) Close(code protocol.CloseCode, reason string) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.closeReason = reason
	}
	c.mu.Unlock()
	c.signal()
}

func (c *Conn) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Packets returns a copy of everything sent so far.
func (c *Conn) Packets() []protocol.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Packet(nil), c.packets...)
}

// IDs returns the packet ids in send order.
func (c *Conn) IDs() []string {
	packets := c.Packets()
	ids := make([]string, len(packets))
	for i, p := range packets {
		ids[i] = p.PacketID()
	}
	return ids
}

// Reset forgets recorded packets.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.packets = nil
	c.mu.Unlock()
}

// Closed reports whether Close was called and with which code.
func (c *Conn) Closed() (bool, protocol.CloseCode, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeReason
}

// Find returns the packets with the given id.
func (c *Conn) Find(id string) []protocol.Packet {
	var out []protocol.Packet
	for _, p := range c.Packets() {
		if p.PacketID() == id {
			out = append(out, p)
		}
	}
	return out
}

// WaitFor blocks until a packet with id arrives or the timeout passes.
func (c *Conn) WaitFor(t testing.TB, id string, timeout time.Duration) protocol.Packet {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if found := c.Find(id); len(found) > 0 {
			return found[len(found)-1]
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %s; got %v", id, c.IDs())
			return nil
		}
	}
}

// WaitClosed blocks until Close is called or the timeout passes.
func (c *Conn) WaitClosed(t testing.TB, timeout time.Duration) protocol.CloseCode {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if closed, code, _ := c.Closed(); closed {
			return code
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatal("timed out waiting for close")
			return 0
		}
	}
}
