package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gateway-fm/walletpulse/internal/txlog"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // same-origin or non-browser client
		}

		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if originURL.Host == r.Host {
			return true
		}
		return originURL.Hostname() == "localhost" || originURL.Hostname() == "127.0.0.1"
	},
}

// FlushMessage is the websocket payload sent for every flushed batch.
type FlushMessage struct {
	Type    string        `json:"type"`
	Entries []txlog.Entry `json:"entries"`
}

// Hub streams flushed transaction log entries to websocket clients.
// It is a txlog.Sink.
type Hub struct {
	logger *slog.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
}

var _ txlog.Sink = (*Hub)(nil)

// NewHub creates a hub with no clients.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Handler returns the websocket HTTP handler.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		h.clientsMu.Lock()
		h.clients[conn] = true
		total := len(h.clients)
		h.clientsMu.Unlock()

		h.logger.Debug("WebSocket client connected", slog.Int("total_clients", total))

		defer func() {
			h.clientsMu.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.clientsMu.Unlock()
			conn.Close()

			h.logger.Debug("WebSocket client disconnected", slog.Int("total_clients", total))
		}()

		// Read until the client goes away; this also services ping/pong.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("WebSocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

// Name implements txlog.Sink.
func (h *Hub) Name() string { return "websocket" }

// Write implements txlog.Sink. Slow or broken clients are skipped; they are
// removed by their read loop.
func (h *Hub) Write(entries []txlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := json.Marshal(FlushMessage{Type: "flush", Entries: entries})
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("Failed to write to WebSocket", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
