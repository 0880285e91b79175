package messaging

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

const (
	EventMessageNew   = "message_new"
	EventMessageRead  = "message_read"
	EventPresenceJoin = "presence_join"
	EventPresenceExit = "presence_leave"

	writeWait = 10 * time.Second
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	identity string
	conn     *websocket.Conn
	mu       sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans out thread events to the websocket clients watching a listing.
// A client only receives events for messages it sent or received.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Hub) register(listingID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[listingID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[listingID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) unregister(listingID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[listingID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, listingID)
	}
}

// Connections reports how many clients are watching listingID.
func (h *Hub) Connections(listingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[listingID])
}

// Broadcast sends evt to clients on listingID whose identity is in to.
// An empty to reaches every client on the listing.
func (h *Hub) Broadcast(listingID string, evt Event, to ...string) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("ws event marshal failed", zap.String("type", evt.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[listingID]))
	for c := range h.rooms[listingID] {
		if len(to) == 0 || contains(to, c.identity) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(payload); err != nil {
			h.logger.Debug("ws write failed",
				zap.String("listing_id", listingID),
				zap.String("identity", c.identity),
				zap.Error(err))
		}
	}
}

// serve upgrades the request and blocks until the client disconnects.
// Client frames are discarded; the protocol is server push only. Presence
// events reach only the listing participants.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, l *marketplace.Listing, identity string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	listingID := l.ID
	participants := []string{l.OwnerIdentity}
	if l.CounterpartIdentity != "" {
		participants = append(participants, l.CounterpartIdentity)
	}

	c := &client{identity: identity, conn: conn}
	h.register(listingID, c)
	h.Broadcast(listingID, Event{Type: EventPresenceJoin, Data: map[string]string{"identity": identity}}, participants...)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(listingID, c)
	_ = conn.Close()
	h.Broadcast(listingID, Event{Type: EventPresenceExit, Data: map[string]string{"identity": identity}}, participants...)
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
