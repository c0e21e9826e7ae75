// Package hub pushes live readings, zones, alerts and notices to
// websocket subscribers.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Envelope types.
const (
	TypeReading  = "reading"
	TypeZones    = "zones"
	TypeAlert    = "alert"
	TypeNotice   = "notice"
	TypeSettings = "settings"
	TypeSnapshot = "snapshot"
)

type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Snapshot, se impostato, produce i messaggi iniziali per un nuovo client.
	Snapshot func() []Envelope
}

func New() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			log.Printf("hub: client registered: %s", c.conn.RemoteAddr())

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				log.Printf("hub: client unregistered: %s", c.conn.RemoteAddr())
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					log.Printf("hub: client %s send buffer full, removing", c.conn.RemoteAddr())
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(kind string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: kind, Payload: payload, SentAt: time.Now().UTC()})
}

// Broadcast queues payload for every client. When the queue is full the
// message is dropped.
func (h *Hub) Broadcast(kind string, payload interface{}) {
	b, err := encode(kind, payload)
	if err != nil {
		log.Printf("hub: marshal %s: %v", kind, err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		log.Printf("hub: broadcast queue full, dropping %s", kind)
	}
}

// ServeWS upgrades the connection and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: upgrade error: %v", err)
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}

	if h.Snapshot != nil {
		for _, env := range h.Snapshot() {
			if len(c.send) == cap(c.send) {
				break
			}
			if b, err := encode(env.Type, env.Payload); err == nil {
				c.send <- b
			}
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
