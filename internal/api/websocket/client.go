package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024

	// Time allowed for the first auth message after connecting
	authWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Panel runs on a different port during development
		return true
	},
}

// TokenValidator checks a bearer token from the first client message.
type TokenValidator interface {
	ValidateToken(token string) error
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	logger    *zap.Logger
	validator TokenValidator

	authenticated bool
}

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ServeWS upgrades an HTTP request to a websocket connection. The first
// client message must be {"type":"auth","token":"..."} or the
// connection is closed.
func ServeWS(hub *Hub, validator TokenValidator, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		logger:    logger,
		validator: validator,
	}

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		if c.authenticated {
			c.hub.unregister <- c
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// Authentication handshake
	c.conn.SetReadDeadline(time.Now().Add(authWait))
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		c.logger.Warn("websocket closed before auth", zap.Error(err))
		return
	}
	var auth authMessage
	if err := json.Unmarshal(raw, &auth); err != nil || auth.Type != "auth" {
		c.writeClose(websocket.ClosePolicyViolation, "auth message expected")
		return
	}
	if err := c.validator.ValidateToken(auth.Token); err != nil {
		c.logger.Warn("websocket auth failed", zap.Error(err))
		c.writeClose(websocket.ClosePolicyViolation, "invalid token")
		return
	}
	c.authenticated = true
	c.hub.register <- c

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Clients only listen after auth; drain until close
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
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

func (c *Client) writeClose(code int, text string) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
