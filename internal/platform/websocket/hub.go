// Package websocket pushes queue-change notifications to connected
// clients. Connections are grouped by doctor id; the single outbound
// event is an invalidation carrying only the doctor whose queue changed,
// never queue contents — receivers re-fetch the queue themselves.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// EventQueueUpdated is the only event type the hub emits.
const EventQueueUpdated = "QueueUpdated"

// Event is the outbound invalidation message.
type Event struct {
	Type      string    `json:"type"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one live connection. It belongs to exactly one doctor group
// for its whole lifetime.
type Client struct {
	ID       string
	DoctorID uuid.UUID
	Send     chan []byte
}

// Hub tracks live connections grouped by doctor id. A group is created
// when its first client joins and discarded when its last client leaves;
// groups are never persisted. All operations are safe under concurrent
// joins, leaves, and broadcasts.
type Hub struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]map[*Client]struct{}
	logger zerolog.Logger
}

// NewHub creates a Hub ready to manage queue subscribers.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		groups: make(map[uuid.UUID]map[*Client]struct{}),
		logger: logger,
	}
}

// Register joins a client to its doctor's group, creating the group on
// first use.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.groups[client.DoctorID]
	if group == nil {
		group = make(map[*Client]struct{})
		h.groups[client.DoctorID] = group
	}
	group[client] = struct{}{}
}

// Unregister removes a client from its group, discards the group when it
// becomes empty, and closes the client's Send channel. Safe to call more
// than once for the same client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[client.DoctorID]
	if !ok {
		return
	}
	if _, ok := group[client]; !ok {
		return
	}

	delete(group, client)
	if len(group) == 0 {
		delete(h.groups, client.DoctorID)
	}
	close(client.Send)
}

// NotifyQueueUpdate broadcasts a QueueUpdated event to every connection
// currently in the doctor's group, as a snapshot at broadcast time.
// Delivery is fire-and-forget, at most once per connection: a slow
// consumer's full buffer drops the event rather than block, and an empty
// or absent group is not an error.
func (h *Hub) NotifyQueueUpdate(doctorID uuid.UUID) {
	data, err := json.Marshal(Event{
		Type:      EventQueueUpdated,
		DoctorID:  doctorID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal queue event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.groups[doctorID] {
		select {
		case client.Send <- data:
		default:
			// Slow consumer; a missed event self-heals on the next re-fetch.
		}
	}
}

// GroupSize returns the number of connections in a doctor's group.
func (h *Hub) GroupSize(doctorID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[doctorID])
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, group := range h.groups {
		n += len(group)
	}
	return n
}

// ---------------------------------------------------------------------------
// Handler — Echo HTTP handler for WebSocket connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler handles HTTP-to-WebSocket upgrades and binds each connection to
// a doctor group.
type Handler struct {
	hub *Hub
}

// NewHandler creates a new Handler bound to the given Hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/queue", h.HandleConnect)
}

// HandleConnect upgrades the connection and joins it to the group named
// by the doctor_id query parameter. A missing or malformed doctor id is
// rejected before the upgrade, never silently grouped.
func (h *Handler) HandleConnect(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:       uuid.New().String(),
		DoctorID: doctorID,
		Send:     make(chan []byte, 256),
	}

	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)

	return nil
}

// readPump discards inbound frames; it exists to detect disconnects,
// graceful or abrupt, and remove the client from its group.
func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump writes events from the Send channel to the connection. Write
// failures only end this connection; they never propagate to the rest of
// the group.
func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
