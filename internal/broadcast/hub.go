// Package broadcast fans derived records out to websocket subscribers.
// Every published value is marshalled once and pushed to each client's
// buffered queue; clients that cannot keep up are dropped rather than
// allowed to stall the pipeline.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signalflow/internal/model"
	"signalflow/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 54 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// SnapshotFunc supplies the current record set used to seed a new
// subscriber before live updates start flowing.
type SnapshotFunc func() []*model.Record

// Hub tracks connected subscribers.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	snapshot SnapshotFunc
	log      *logger.Log
}

// NewHub creates a hub. snapshot may be nil, in which case new
// subscribers start empty.
func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		clients:  make(map[string]*client),
		snapshot: snapshot,
		log:      logger.GetLogger(),
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish marshals v and queues it for every subscriber. A full queue
// disconnects that subscriber.
func (h *Hub) Publish(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.WithComponent("broadcast").WithError(err).Error("failed to marshal broadcast payload")
		return
	}

	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.WithComponent("broadcast").WithFields(logger.Fields{"client": c.id}).Warn("dropping slow subscriber")
		h.remove(c)
	}
}

// HandleConnection upgrades the request and runs the subscriber until it
// disconnects.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithComponent("broadcast").WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.log.WithComponent("broadcast").WithFields(logger.Fields{
		"client":  c.id,
		"clients": h.ClientCount(),
	}).Info("subscriber connected")

	if !h.seed(c) {
		h.remove(c)
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// seed pushes the current cache contents so the subscriber does not wait
// a full cycle for its first data. It writes straight to the connection
// before the write pump starts: the snapshot is not bounded by the send
// queue, and a publish-side eviction closing the queue mid-seed cannot
// be hit because the seeder never touches it. Live updates published
// while seeding queue up in c.send and flow once the pump takes over.
func (h *Hub) seed(c *client) bool {
	if h.snapshot == nil {
		return true
	}
	for _, record := range h.snapshot() {
		payload, err := json.Marshal(record)
		if err != nil {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return false
		}
	}
	return true
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
