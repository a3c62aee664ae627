package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"droidagent/logger"
	"droidagent/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // 54 seconds
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 512 * 1024, // JPEG frames
}

// Client is one dashboard connection with its device subscriptions
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
	sessions   *service.SessionManager // frame replay for fresh subscribers
}

// Hub fans session events and screen frames out to dashboard clients
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.Debugf("🔗 Dashboard client connected (total: %d)", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Debugf("🔗 Dashboard client disconnected (total: %d)", total)
		}
	}
}

// BroadcastToDevice sends a message to clients subscribed to a device.
// message can be []byte (a framed JPEG packet) or any JSON-marshalable
// value (control events).
func (h *Hub) BroadcastToDevice(deviceID string, message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	messageBytes, ok := encodeMessage(message)
	if !ok {
		return
	}

	for client := range h.clients {
		if !client.subscribed[deviceID] && !client.subscribed["all"] {
			continue
		}
		select {
		case client.send <- messageBytes:
		default:
			// Channel full - drop the oldest entry and retry once
			select {
			case <-client.send:
			default:
			}
			select {
			case client.send <- messageBytes:
			default:
				logger.Debugf("⚠️ Dashboard client backed up, dropping message")
			}
		}
	}
}

// BroadcastToAll sends a JSON message to every connected client
func (h *Hub) BroadcastToAll(message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	messageBytes, ok := encodeMessage(message)
	if !ok {
		return
	}
	for client := range h.clients {
		select {
		case client.send <- messageBytes:
		default:
			logger.Debugf("⚠️ Dashboard client backed up, dropping message")
		}
	}
}

func encodeMessage(message interface{}) ([]byte, bool) {
	if raw, isBinary := message.([]byte); isBinary {
		return raw, true
	}
	encoded, err := json.Marshal(message)
	if err != nil {
		logger.Warnf("⚠️ Failed to marshal hub message: %v", err)
		return nil, false
	}
	return encoded, true
}

// HandleWebSocket upgrades a dashboard connection and starts its pumps
func HandleWebSocket(hub *Hub, sessions *service.SessionManager, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 64),
		subscribed: make(map[string]bool),
		sessions:   sessions,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump handles subscription messages from the client
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debugf("⚠️ Dashboard read error: %v", err)
			}
			break
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		msgType, _ := msg["type"].(string)
		deviceID, _ := msg["device_id"].(string)
		if deviceID == "" {
			continue
		}

		switch msgType {
		case "subscribe":
			c.subscribed[deviceID] = true
			logger.Debugf("📺 Client subscribed to device %s", deviceID)

			// Hand the newest frame to the subscriber immediately so the
			// view is not blank until the next broadcast.
			if c.sessions != nil {
				if frame := c.sessions.LatestFramePacket(deviceID); frame != nil {
					select {
					case c.send <- frame:
					default:
					}
				}
			}
		case "unsubscribe":
			delete(c.subscribed, deviceID)
			logger.Debugf("📺 Client unsubscribed from device %s", deviceID)
		}
	}
}

// writePump sends queued messages and keepalive pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Frame packets start with a 1-byte id length, JSON with '{'
			if len(message) > 0 && message[0] != '{' && message[0] != '[' {
				if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
					return
				}
			} else {
				if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
