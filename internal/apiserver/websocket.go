package apiserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected subscriber to the real-time push channel (spec
// §4.8 "push channel for the real-time stats window and live gating-decision
// feed"). Grounded on the teacher's WSClient/WSHub
// (internal/api/websocket.go), trimmed to a single anonymous broadcast
// channel since this module has no per-user scoping.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *wsHub
	closeChan chan struct{}
}

type wsHub struct {
	log        zerolog.Logger
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

func newWSHub(log zerolog.Logger) *wsHub {
	h := &wsHub{
		log:        log.With().Str("component", "ws_hub").Logger(),
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 4096),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
	go h.run()
	return h
}

func (h *wsHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// broadcastEvent marshals payload as {type, timestamp, data} and fans it
// out to every connected client; a full broadcast channel drops the
// message rather than blocking the caller.
func (h *wsHub) broadcastEvent(eventType string, data interface{}) {
	msg := map[string]interface{}{
		"type":      eventType,
		"timestamp": time.Now(),
		"data":      data,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to marshal websocket event")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn().Msg("broadcast channel full, dropping message")
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// handleWebSocket upgrades to a push-only connection: clients never send
// application messages, only receive broadcasts.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       s.hub,
		closeChan: make(chan struct{}),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
