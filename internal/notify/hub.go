// Package notify delivers one-shot confirmation events to a patient's
// connected websocket. One connection per patient; no acknowledgement, no
// retry, no queueing of missed notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/usafa/appointment-intake/internal/intake"
)

// Conn abstracts the websocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one patient's live connection.
type Client struct {
	patientID string
	Send      chan []byte
	conn      Conn
}

// Hub tracks the single live connection per patient id. All operations are
// safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Register adds the patient's connection, displacing any previous one.
func (h *Hub) Register(patientID string, conn Conn) *Client {
	client := &Client{
		patientID: patientID,
		Send:      make(chan []byte, 16),
		conn:      conn,
	}

	h.mu.Lock()
	if old := h.clients[patientID]; old != nil {
		close(old.Send)
	}
	h.clients[patientID] = client
	h.mu.Unlock()

	h.log.Info().Str("patient_id", patientID).Msg("patient connected")
	return client
}

// Unregister removes the client if it is still the patient's current
// connection and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.patientID]
	removed := ok && current == client
	if removed {
		delete(h.clients, client.patientID)
		close(client.Send)
	}
	h.mu.Unlock()

	if removed {
		h.log.Info().Str("patient_id", client.patientID).Msg("patient disconnected")
	}
}

// Connected reports whether the patient currently has a live channel.
func (h *Hub) Connected(patientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[patientID]
	return ok
}

// Notify pushes the summary to the patient's channel if one exists. A
// disconnected patient is not an error: the durable record remains
// retrievable through the ordinary read path.
func (h *Hub) Notify(_ context.Context, patientID string, summary intake.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	// Send channels are closed only under the write lock, so holding the
	// read lock across the send keeps it from racing a disconnect.
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[patientID]
	if !ok {
		h.log.Debug().Str("patient_id", patientID).Msg("no active channel, notification dropped")
		return nil
	}

	select {
	case client.Send <- data:
	default:
		// Client buffer full; skip to avoid blocking the pipeline.
		h.log.Warn().Str("patient_id", patientID).Msg("notification buffer full, dropped")
	}

	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades the request to a websocket and binds it to the
// authenticated patient. identity resolves the caller from the request;
// an unresolvable caller is refused before the upgrade.
func Handler(hub *Hub, identity func(*http.Request) (string, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := identity(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := hub.Register(patientID, ws)

		go writePump(client, hub)
		go readPump(client, hub)
	}
}

// readPump drains inbound frames so pings and closes are handled; the
// client has nothing to say on this channel.
func readPump(client *Client, hub *Hub) {
	defer func() {
		hub.Unregister(client)
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(client *Client, hub *Hub) {
	defer client.conn.Close()

	for message := range client.Send {
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
