// Package hub fans request-log events out to live WebSocket
// subscribers, globally or filtered by mock-service id.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/mockgate/mockgate/pkg/logging"
	"github.com/mockgate/mockgate/pkg/requestlog"
)

// Frame is the live-event wire format.
type Frame struct {
	Type      string            `json:"type"`
	Data      *requestlog.Entry `json:"data"`
	Timestamp string            `json:"timestamp"`
}

// Hub keeps the subscriber registries. Registry mutation (connect,
// disconnect, publish snapshot) is serialized by a mutex; delivery
// itself happens outside the lock on per-connection writer goroutines.
type Hub struct {
	log *slog.Logger

	mu        sync.Mutex
	global    map[string]*Connection
	byService map[int]map[string]*Connection
}

// New creates an empty Hub.
func New(log *slog.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		log:       log,
		global:    make(map[string]*Connection),
		byService: make(map[int]map[string]*Connection),
	}
}

// Serve registers the websocket as a subscriber and blocks until it
// disconnects. A nil serviceID subscribes to every record; otherwise
// only records of that service are delivered.
func (h *Hub) Serve(conn *ws.Conn, serviceID *int) {
	c := newConnection(conn, serviceID)
	h.add(c)
	h.log.Debug("subscriber connected", "connection", c.ID(), "service_id", serviceID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.writePump(); err != nil {
			h.log.Debug("subscriber send failed", "connection", c.ID(), "error", err)
		}
		c.close(ws.StatusNormalClosure, "")
	}()

	// Client frames are read and discarded; the read error is the
	// disconnect signal.
	if err := c.readPump(); err != nil {
		h.log.Debug("subscriber disconnected", "connection", c.ID(), "error", err)
	}
	c.close(ws.StatusNormalClosure, "")
	<-done
	h.remove(c)
}

// Publish serializes the record once and delivers it to every global
// subscriber, plus the subscribers of the record's service. Delivery
// is best-effort: a failed or slow subscriber is dropped without
// affecting the others.
func (h *Hub) Publish(entry *requestlog.Entry) {
	frame, err := json.Marshal(Frame{
		Type:      "log",
		Data:      entry,
		Timestamp: time.Now().Format("2006-01-02T15:04:05.999999"),
	})
	if err != nil {
		h.log.Error("event serialization failed", "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*Connection, 0, len(h.global))
	for _, c := range h.global {
		targets = append(targets, c)
	}
	if entry.MockServiceID != nil {
		for _, c := range h.byService[*entry.MockServiceID] {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.enqueue(frame); err != nil {
			h.log.Warn("dropping subscriber", "connection", c.ID(), "error", err)
			c.close(ws.StatusPolicyViolation, "delivery failed")
			h.remove(c)
		}
	}
}

// Counts returns the number of global and per-service subscribers.
func (h *Hub) Counts() (global int, perService int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.byService {
		perService += len(conns)
	}
	return len(h.global), perService
}

func (h *Hub) add(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.serviceID == nil {
		h.global[c.id] = c
		return
	}
	conns := h.byService[*c.serviceID]
	if conns == nil {
		conns = make(map[string]*Connection)
		h.byService[*c.serviceID] = conns
	}
	conns[c.id] = c
}

func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.serviceID == nil {
		delete(h.global, c.id)
		return
	}
	conns := h.byService[*c.serviceID]
	delete(conns, c.id)
	if len(conns) == 0 {
		delete(h.byService, *c.serviceID)
	}
}
