package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"socialgw/internal/services/identity"
)

const writeWait = 10 * time.Second

// Conn is one live gateway connection. Outbound frames go through a
// bounded channel drained by writePump; a full channel means the client
// is too slow and that delivery is dropped.
type Conn struct {
	id        string
	rawConn   *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	createdAt time.Time

	mu       sync.Mutex
	identity *identity.Identity  // nil while anonymous; write-once
	rooms    map[string]struct{} // rooms this connection is a member of
}

func newConn(id string, rawConn *websocket.Conn, sendBufferSize int) *Conn {
	return &Conn{
		id:        id,
		rawConn:   rawConn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		createdAt: time.Now(),
		rooms:     map[string]struct{}{},
	}
}

func (c *Conn) ID() string { return c.id }

// Identity returns the principal bound at handshake, or nil for an
// anonymous connection.
func (c *Conn) Identity() *identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// setIdentity binds the principal once; later calls are no-ops.
func (c *Conn) setIdentity(ident *identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		c.identity = ident
	}
}

func (c *Conn) markJoined(roomName string) {
	c.mu.Lock()
	c.rooms[roomName] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) markLeft(roomName string) {
	c.mu.Lock()
	delete(c.rooms, roomName)
	c.mu.Unlock()
}

func (c *Conn) roomSnapshot() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		names = append(names, name)
	}
	c.mu.Unlock()
	return names
}

// enqueue hands a frame to the write pump without blocking. It reports
// false when the connection is shut down or the outbound buffer is full.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) sendJSON(event string, payload any) error {
	msg, err := encodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.enqueue(msg)
	return nil
}

// writePump serialises all writes to the socket and keeps the heartbeat
// going. It owns the raw connection: when the pump exits the socket is
// closed, which also unblocks the reader.
func (c *Conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.rawConn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}
