// internal/server/hub.go
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// upgrader is used to upgrade HTTP connections to WebSocket connections.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local dev server: any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message types sent to live-reload clients.
const (
	MessageReload  = "reload"
	MessageCSS     = "css"
	MessageError   = "error"
	MessageWarning = "warning"
)

type Message struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients map[*websocket.Conn]bool
	// state is replayed to clients as they connect, so a page reloaded
	// after a broken build still shows the overlay.
	state *Message
	mu    sync.Mutex
	log   zerolog.Logger
}

func newHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		log:     log,
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	h.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Live-reload client connected")
	if h.state != nil {
		if data, err := json.Marshal(h.state); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}
}

// SetState sets the message replayed to new clients. nil clears it.
func (h *Hub) SetState(msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = msg
}

// State returns the message replayed to new clients, if any.
func (h *Hub) State() *Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		h.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Live-reload client disconnected")
	}
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client, dropping clients that fail.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode live-reload message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug().Err(err).Msg("Error writing to live-reload client")
			client.Close()
			delete(h.clients, client)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

func (h *Hub) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	h.register(conn)

	// Clients never send; reading only detects the close.
	defer h.unregister(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
