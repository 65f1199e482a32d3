package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/boardstack/boardstack/database"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client represents a connected WebSocket session receiving change events.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string
}

// ReadPump drains the WebSocket connection. Clients never push state over the
// socket (mutations go through HTTP); the read loop exists for pong handling
// and disconnect detection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// WritePump pumps change events from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// subscriber is an in-process listener (the store's realtime listener when it
// runs in the same process as the service).
type subscriber struct {
	userID string
	events chan database.ChangeEvent
}

type publication struct {
	event    database.ChangeEvent
	audience map[string]bool
	toAll    bool
}

// Hub fans change events out to WebSocket clients and in-process
// subscribers, scoped to the users that can see the affected board.
type Hub struct {
	clients     map[*Client]bool
	subscribers map[*subscriber]bool

	publish     chan publication
	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscriber
	unsubscribe chan *subscriber
}

// NewHub creates a new hub instance. Run must be started in its own
// goroutine before any client connects.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		subscribers: make(map[*subscriber]bool),
		publish:     make(chan publication, 64),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *subscriber),
		unsubscribe: make(chan *subscriber),
	}
}

// Register adds a WebSocket client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a WebSocket client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe attaches an in-process listener for a user's change events. The
// returned cancel func detaches it and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan database.ChangeEvent, func()) {
	sub := &subscriber{
		userID: userID,
		events: make(chan database.ChangeEvent, 16),
	}
	h.subscribe <- sub
	return sub.events, func() { h.unsubscribe <- sub }
}

// Publish fans an event out to the given audience. If toAll is set (public
// board) every connected session receives it.
func (h *Hub) Publish(event database.ChangeEvent, audience []string, toAll bool) {
	users := make(map[string]bool, len(audience))
	for _, id := range audience {
		users[id] = true
	}
	h.publish <- publication{event: event, audience: users, toAll: toAll}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("Client connected: %s", client.UserID)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Printf("Client disconnected: %s", client.UserID)
			}
		case sub := <-h.subscribe:
			h.subscribers[sub] = true
		case sub := <-h.unsubscribe:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.events)
			}
		case pub := <-h.publish:
			message, err := json.Marshal(pub.event)
			if err != nil {
				log.Printf("Error marshalling change event: %v", err)
				continue
			}

			for client := range h.clients {
				if !pub.toAll && !pub.audience[client.UserID] {
					continue
				}
				select {
				case client.Send <- message:
				default:
					// Client's send buffer is full, assume disconnected
					log.Printf("Client send buffer full, removing client: %s", client.UserID)
					close(client.Send)
					delete(h.clients, client)
				}
			}

			for sub := range h.subscribers {
				if !pub.toAll && !pub.audience[sub.userID] {
					continue
				}
				select {
				case sub.events <- pub.event:
				default:
					// Subscriber is not draining; drop rather than block the
					// hub. The listener refetches on the next event anyway.
				}
			}
		}
	}
}
