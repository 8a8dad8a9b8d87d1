package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type    string `json:"type"`
	Payload Change `json:"payload"`
	RoomID  string `json:"room_id,omitempty"`
}

const MessageTypeChange = "change"

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	Room   string
	Filter Filter
}

func NewClient(hub *Hub, conn *websocket.Conn, room string, filter Filter) *Client {
	filter.RaceID = room
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBuffer), Room: room, Filter: filter}
}

type room struct {
	clients map[*Client]bool
	sub     Subscription
}

// Hub groups websocket clients into rooms, one per race. A room holds a
// single bus subscription from its first client until its last one leaves.
type Hub struct {
	bus        Bus
	logger     *slog.Logger
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]*room
	mu         sync.RWMutex
	done       chan struct{}
	onClients  func(delta int)
}

func NewHub(bus Bus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		logger:     logger,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]*room),
		done:       make(chan struct{}),
	}
}

// OnClientsChanged installs a callback invoked with +1/-1 as clients come and
// go. Used for the connected-clients gauge.
func (h *Hub) OnClientsChanged(fn func(delta int)) {
	h.onClients = fn
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[client.Room]
	if !ok {
		roomID := client.Room
		sub, err := h.bus.Subscribe("race:"+roomID, Filter{RaceID: roomID}, func(c Change) {
			h.deliver(roomID, c)
		})
		if err != nil {
			h.logger.Error("failed to subscribe room", slog.String("room", roomID), slog.Any("error", err))
			close(client.Send)
			return
		}
		r = &room{clients: make(map[*Client]bool), sub: sub}
		h.rooms[roomID] = r
	}
	r.clients[client] = true
	if h.onClients != nil {
		h.onClients(1)
	}
	h.logger.Debug("client registered", slog.String("room", client.Room), slog.Int("clients", len(r.clients)))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[client.Room]
	if !ok || !r.clients[client] {
		return
	}
	delete(r.clients, client)
	close(client.Send)
	if h.onClients != nil {
		h.onClients(-1)
	}

	if len(r.clients) == 0 {
		if err := r.sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe room", slog.String("room", client.Room), slog.Any("error", err))
		}
		delete(h.rooms, client.Room)
		h.logger.Debug("room closed", slog.String("room", client.Room))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.rooms {
		for client := range r.clients {
			close(client.Send)
			if h.onClients != nil {
				h.onClients(-1)
			}
		}
		_ = r.sub.Unsubscribe()
		delete(h.rooms, id)
	}
}

// deliver sends c to the room's clients whose filter matches. Slow clients
// drop messages instead of stalling the publisher.
func (h *Hub) deliver(roomID string, c Change) {
	data, err := json.Marshal(Message{Type: MessageTypeChange, Payload: c, RoomID: roomID})
	if err != nil {
		h.logger.Error("failed to marshal change", slog.String("room", roomID), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for client := range r.clients {
		if !client.Filter.Matches(c) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping change", slog.String("room", roomID))
		}
	}
}

// Stats returns the number of open rooms and connected clients.
func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.rooms {
		clients += len(r.clients)
	}
	return len(h.rooms), clients
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read error", slog.String("room", c.Room), slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("websocket write failed", slog.String("room", c.Room), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
