package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agora-dev/agora/pkg/livefeed"
)

// Hub broadcasts change events to connected websocket clients.
type Hub struct {
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
	writeMu  sync.Mutex
	upgrader websocket.Upgrader
	logger   *slog.Logger
	ping     time.Duration
}

// NewHub creates a Hub that pings clients every ping interval.
func NewHub(logger *slog.Logger, ping time.Duration) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
		logger: logger,
		ping:   ping,
	}
}

// HandleWebSocket upgrades the request and keeps the connection until the
// client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	done := make(chan struct{})
	if h.ping > 0 {
		go h.pingLoop(conn, done)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.remove(conn)
}

func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(h.ping)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			h.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			h.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Publish sends ev to all clients.
func (h *Hub) Publish(ev livefeed.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, client := range clients {
		client.SetWriteDeadline(time.Now().Add(time.Second))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("event client dropped", "error", err)
			h.remove(client)
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
