package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/playmatatu/pairrooms/internal/rooms"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are checked by middleware.WebSocketCORSCheck
	},
}

// Client is one subscribed WebSocket connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	region string
	send   chan []byte
	ready  chan struct{}
}

// Hub keeps the connections of this process grouped by region. Events from
// the broker are fanned out to every connection of the event's region.
type Hub struct {
	regions    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	keepalive  time.Duration
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(keepalive time.Duration) *Hub {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Hub{
		regions:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		keepalive:  keepalive,
	}
}

// Run processes registrations until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.regions {
				for c := range clients {
					close(c.send)
				}
			}
			h.regions = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if _, ok := h.regions[c.region]; !ok {
				h.regions[c.region] = make(map[*Client]bool)
			}
			h.regions[c.region][c] = true
			size := len(h.regions[c.region])
			h.mu.Unlock()
			close(c.ready)
			log.Debug().Str("module", "ws").Str("region", c.region).Int("clients", size).Msg("subscriber connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.regions[c.region]; ok && clients[c] {
				delete(clients, c)
				close(c.send)
				if len(clients) == 0 {
					delete(h.regions, c.region)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("module", "ws").Str("region", c.region).Msg("subscriber disconnected")
		}
	}
}

// Register adds a client; it reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		<-c.ready
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send queue
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastToRegion sends a raw frame to every subscriber of region. Slow
// clients drop frames instead of blocking the broadcast.
func (h *Hub) BroadcastToRegion(region string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.regions[region] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("module", "ws").Str("region", region).Msg("send buffer full, dropping frame")
		}
	}
}

// ClientCount returns the number of subscribers of region
func (h *Hub) ClientCount(region string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.regions[region])
}

func newClient(h *Hub, conn *websocket.Conn, region string) *Client {
	return &Client{hub: h, conn: conn, region: region, send: make(chan []byte, sendBuffer), ready: make(chan struct{})}
}

// sendEvent queues an event for this client only
func (c *Client) sendEvent(ev rooms.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Str("module", "ws").Err(err).Msg("encode event")
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.regions[c.region][c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump writes queued frames, WebSocket pings and keep-alive frames
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	keepalive := time.NewTicker(c.hub.keepalive)
	defer func() {
		ping.Stop()
		keepalive.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Str("module", "ws").Err(err).Msg("write failed")
				return
			}

		case <-keepalive.C:
			data, _ := json.Marshal(rooms.KeepaliveEvent(c.region))
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to notice disconnects; clients never send anything
// the server acts on.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Str("module", "ws").Err(err).Msg("unexpected close")
			}
			return
		}
	}
}
