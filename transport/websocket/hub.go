package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Queued broadcasts before snapshots are dropped.
	broadcastBuffer = 256

	// Time an inbound input message may spend in the handler.
	inputTimeout = 2 * time.Second
)

// Outbound events
const (
	EventSnapshot = "snapshot"
	EventInputAck = "input_ack"
	EventError    = "error"
	EventPong     = "pong"
)

// Inbound message types
const (
	TypeInput = "input"
	TypePing  = "ping"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is what the hub sends to clients
type Message struct {
	RaceID   string           `json:"race_id"`
	Event    string           `json:"event"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Data     interface{}      `json:"data,omitempty"`
}

// ClientMessage is what drivers send to the hub
type ClientMessage struct {
	Type  string             `json:"type"`
	Input *engine.InputFlags `json:"input,omitempty"`
}

// InputHandler applies held keys sent by a driver to a race
type InputHandler func(ctx context.Context, raceID string, input engine.InputFlags) error

// Client represents a WebSocket client
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	raceID string
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active clients per race and broadcasts messages
type Hub struct {
	logger  zerolog.Logger
	onInput InputHandler

	// Registered clients by race ID. Written only by Run.
	races map[string]map[*Client]bool
	mu    sync.RWMutex

	broadcast  chan *Message
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		races:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, broadcastBuffer),
		direct:     make(chan directMessage, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnInput sets the handler for inbound input messages. Call before Run.
func (h *Hub) OnInput(fn InputHandler) {
	h.onInput = fn
}

// Run starts the hub's event loop and closes every client when ctx ends
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case dm := <-h.direct:
			h.sendDirect(dm)
		}
	}
}

// ServeWS upgrades the request and attaches the connection to a race
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, raceID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("race_id", raceID).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		raceID: raceID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastSnapshot queues a snapshot for every client of the race. It has
// the service tick listener signature and never blocks the caller.
func (h *Hub) BroadcastSnapshot(raceID string, snap engine.Snapshot) {
	h.enqueue(&Message{RaceID: raceID, Event: EventSnapshot, Snapshot: &snap})
}

// BroadcastEvent queues a custom event for every client of the race
func (h *Hub) BroadcastEvent(raceID string, event string, data interface{}) {
	h.enqueue(&Message{RaceID: raceID, Event: event, Data: data})
}

// ClientCount returns the number of clients watching the race
func (h *Hub) ClientCount(raceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.races[raceID])
}

func (h *Hub) enqueue(m *Message) {
	select {
	case h.broadcast <- m:
	default:
		h.logger.Debug().Str("race_id", m.RaceID).Str("event", m.Event).Msg("broadcast queue full, dropping message")
	}
}

// registerClient adds a client to a race
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.races[client.raceID] == nil {
		h.races[client.raceID] = make(map[*Client]bool)
	}
	h.races[client.raceID][client] = true
	total := len(h.races[client.raceID])
	h.mu.Unlock()

	h.logger.Debug().Str("race_id", client.raceID).Int("clients", total).Msg("client registered")
}

// unregisterClient removes a client from a race
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.races[client.raceID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)

			if len(clients) == 0 {
				delete(h.races, client.raceID)
			}

			h.logger.Debug().Str("race_id", client.raceID).Int("clients", len(clients)).Msg("client unregistered")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for raceID, clients := range h.races {
		for client := range clients {
			close(client.send)
		}
		delete(h.races, raceID)
	}
}

// broadcastMessage sends a message to all clients of a race
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.races[message.RaceID] {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.unregisterClient(client)
	}
}

// sendDirect replies to one client if it is still registered
func (h *Hub) sendDirect(dm directMessage) {
	h.mu.RLock()
	registered := h.races[dm.client.raceID][dm.client]
	full := false
	if registered {
		select {
		case dm.client.send <- dm.data:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		h.unregisterClient(dm.client)
	}
}

func (c *Client) reply(event string, data interface{}) {
	payload, err := json.Marshal(&Message{RaceID: c.raceID, Event: event, Data: data})
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directMessage{client: c, data: payload}:
	default:
	}
}

// handle applies one inbound message
func (c *Client) handle(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(EventError, "invalid message")
		return
	}

	switch msg.Type {
	case TypePing:
		c.reply(EventPong, nil)

	case TypeInput:
		if msg.Input == nil {
			c.reply(EventError, "input is required")
			return
		}
		if c.hub.onInput == nil {
			c.reply(EventError, "input is not accepted on this connection")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), inputTimeout)
		err := c.hub.onInput(ctx, c.raceID, *msg.Input)
		cancel()
		if err != nil {
			c.reply(EventError, err.Error())
			return
		}
		c.reply(EventInputAck, msg.Input)

	default:
		c.reply(EventError, "unknown message type: "+msg.Type)
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str("race_id", c.raceID).Msg("websocket read error")
			}
			break
		}
		c.handle(data)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame so clients can decode each message
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
