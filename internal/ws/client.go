package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/platanos-shop/storefront/internal/auth"
	"github.com/platanos-shop/storefront/internal/enum"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512
	sendBuffer     = 256
)

// Client is one dashboard connection subscribed to a single topic.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	topic string
	send  chan []byte
}

// readLoop only watches for disconnects; dashboards never send.
func (c *Client) readLoop() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: ws %s: %v", c.topic, err)
			}
			return
		}
	}
}

// writeLoop sends one JSON event per frame and keeps the connection alive
// with pings. It exits when the hub closes send.
func (c *Client) writeLoop() {
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

// ValidTopic reports whether topic can be subscribed to.
func ValidTopic(topic string) bool {
	return topic == enum.TopicOrders || topic == enum.TopicRequests
}

// Handler upgrades GET /ws/{topic}?token=JWT for operators on the roster.
// Browsers cannot set an Authorization header on a websocket, hence the
// query parameter.
type Handler struct {
	hub       *Hub
	secret    string
	operators map[int64]bool
	upgrader  websocket.Upgrader
}

// NewHandler creates the dashboard endpoint. An empty origins list or "*"
// accepts any Origin; requests without an Origin header (non-browser
// clients) are always accepted.
func NewHandler(hub *Hub, jwtSecret string, operatorIDs []int64, origins []string) *Handler {
	operators := make(map[int64]bool, len(operatorIDs))
	for _, id := range operatorIDs {
		operators[id] = true
	}
	allowed := make(map[string]bool, len(origins))
	anyOrigin := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			anyOrigin = true
		}
		allowed[o] = true
	}

	return &Handler{
		hub:       hub,
		secret:    jwtSecret,
		operators: operators,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || allowed[origin]
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken(h.secret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.Role != enum.OperatorRoleAdmin || !h.operators[claims.OperatorID] {
		http.Error(w, "operator not allowed", http.StatusForbidden)
		return
	}

	topic := chi.URLParam(r, "topic")
	if !ValidTopic(topic) {
		http.Error(w, "unknown topic", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("WARN: ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:   h.hub,
		conn:  conn,
		topic: topic,
		send:  make(chan []byte, sendBuffer),
	}
	h.hub.register <- client
	log.Printf("ws: operator %d subscribed to %s", claims.OperatorID, topic)

	go client.writeLoop()
	go client.readLoop()
}
