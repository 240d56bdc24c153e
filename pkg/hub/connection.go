package hub

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrConnectionClosed is returned for operations on a closed
// connection.
var ErrConnectionClosed = errors.New("connection closed")

// outboxSize bounds the per-connection delivery queue. A subscriber
// that cannot drain this many frames is dropped as slow.
const outboxSize = 64

// Connection is one live subscriber. Frames queue into a bounded
// outbox drained by a single writer goroutine, so every subscriber
// sees events in publish order.
type Connection struct {
	id        string
	serviceID *int
	conn      *ws.Conn
	outbox    chan []byte

	connectedAt time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	closed      atomic.Bool
}

func newConnection(conn *ws.Conn, serviceID *int) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:          uuid.NewString(),
		serviceID:   serviceID,
		conn:        conn,
		outbox:      make(chan []byte, outboxSize),
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the unique connection id.
func (c *Connection) ID() string {
	return c.id
}

// ServiceID returns the service filter, nil for global subscribers.
func (c *Connection) ServiceID() *int {
	return c.serviceID
}

// ConnectedAt returns the registration time.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// enqueue queues a frame for delivery. A full outbox fails the
// connection rather than blocking the publisher.
func (c *Connection) enqueue(frame []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.outbox <- frame:
		return nil
	default:
		return errors.New("subscriber outbox full")
	}
}

// writePump drains the outbox until the connection dies.
func (c *Connection) writePump() error {
	for {
		select {
		case frame := <-c.outbox:
			if err := c.conn.Write(c.ctx, ws.MessageText, frame); err != nil {
				return err
			}
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

// readPump reads and discards client frames (heartbeats and the like);
// a receive failure is the disconnect signal.
func (c *Connection) readPump() error {
	for {
		if _, _, err := c.conn.Read(c.ctx); err != nil {
			return err
		}
	}
}

// close tears the connection down. Safe to call more than once.
func (c *Connection) close(code ws.StatusCode, reason string) {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
	_ = c.conn.Close(code, reason)
}
