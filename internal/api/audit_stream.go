package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gst3d/pushserver/internal/domain"
)

const (
	clientSendBuffer = 64
	hubBroadcastSize = 256
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers authenticate with the bearer header, not cookies
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSEvent is the frame pushed to stream subscribers
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type streamClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// AuditHub fans audit entries out to websocket subscribers.
// Publish never blocks; slow subscribers are disconnected.
type AuditHub struct {
	clients    map[*streamClient]bool
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan []byte
	done       chan struct{}
	logger     *zap.Logger
}

func NewAuditHub(logger *zap.Logger) *AuditHub {
	return &AuditHub{
		clients:    make(map[*streamClient]bool),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan []byte, hubBroadcastSize),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the subscriber set until ctx is cancelled
func (m *AuditHub) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			for client := range m.clients {
				m.drop(client)
			}
			return

		case client := <-m.register:
			m.clients[client] = true
			m.logger.Debug("audit stream client connected", zap.String("client_id", client.id.String()))

		case client := <-m.unregister:
			if m.clients[client] {
				m.drop(client)
				m.logger.Debug("audit stream client disconnected", zap.String("client_id", client.id.String()))
			}

		case message := <-m.broadcast:
			for client := range m.clients {
				select {
				case client.send <- message:
				default:
					m.logger.Warn("dropping slow audit stream client", zap.String("client_id", client.id.String()))
					m.drop(client)
				}
			}
		}
	}
}

func (m *AuditHub) drop(client *streamClient) {
	delete(m.clients, client)
	close(client.send)
}

// Publish implements domain.AuditPublisher
func (m *AuditHub) Publish(entry domain.AuditLogEntry) {
	msg, err := json.Marshal(WSEvent{Type: "audit", Payload: entry})
	if err != nil {
		m.logger.Error("failed to marshal audit event", zap.Error(err))
		return
	}
	select {
	case m.broadcast <- msg:
	default:
		m.logger.Warn("audit stream backlog full, event dropped")
	}
}

// ServeWS handles GET /api/logs/stream
func (m *AuditHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump(m)
}

func (c *streamClient) readPump(m *AuditHub) {
	defer func() {
		select {
		case m.unregister <- c:
		case <-m.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Subscribers only receive; reads surface disconnects and pongs
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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
