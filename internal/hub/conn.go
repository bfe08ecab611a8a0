package hub

import (
	"sync"
	"time"
)

// Conn is the relay's view of one live socket: an identity plus a bounded
// outbound queue drained by the socket's writer.
type Conn struct {
	ID        string
	UserID    string
	Connected time.Time

	mu     sync.RWMutex
	send   chan []byte
	closed bool
}

func NewConn(id, userID string, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 256
	}
	return &Conn{
		ID:        id,
		UserID:    userID,
		Connected: time.Now().UTC(),
		send:      make(chan []byte, buffer),
	}
}

// Enqueue never blocks. It reports false when the frame was dropped because
// the queue is full or the connection is closed.
func (c *Conn) Enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Send is the outbound queue. It is closed by Close.
func (c *Conn) Send() <-chan []byte { return c.send }

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
