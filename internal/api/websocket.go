package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentience/sentience/internal/journal"
	"github.com/sentience/sentience/internal/logging"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 30 * time.Second
	wsSendBuffer  = 64
	wsHistorySize = 50
)

// WebSocketMessage is the envelope pushed to clients
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
}

// WebSocketHub pushes system journal entries to connected clients.
// A client that falls behind misses entries instead of slowing others.
type WebSocketHub struct {
	journal  *journal.Journal
	log      *logging.Logger
	upgrader websocket.Upgrader

	clients map[*wsClient]struct{}
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebSocketHub creates a hub fed by j
func NewWebSocketHub(j *journal.Journal, log *logging.Logger) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		journal: j,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*wsClient]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run forwards journal entries to every client until Close
func (h *WebSocketHub) Run() {
	entries, unsubscribe := h.journal.Subscribe(wsSendBuffer)
	defer unsubscribe()

	for {
		select {
		case <-h.ctx.Done():
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			h.Broadcast(WebSocketMessage{Type: "log", Data: e, Timestamp: e.Time})
		}
	}
}

// Broadcast queues msg for every connected client
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Count returns the number of connected clients
func (h *WebSocketHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and replays recent history
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan WebSocketMessage, wsSendBuffer)}
	c.send <- WebSocketMessage{Type: "history", Data: h.history(), Timestamp: time.Now()}

	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		h.writePump(c)
	}()
	go func() {
		defer h.wg.Done()
		h.readPump(c)
	}()
}

// Close disconnects every client and waits for their goroutines
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	h.cancel()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
}

// history returns the retained journal, oldest first
func (h *WebSocketHub) history() []journal.Entry {
	recent := h.journal.Recent(wsHistorySize)
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent
}

// readPump discards client input and notices disconnects
func (h *WebSocketHub) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
