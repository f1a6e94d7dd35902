package server

import (
	"bookmark-manager/internal/auth"
	"bookmark-manager/internal/feed"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Clients authenticate with a token, not cookies
	},
}

// Client is a middleman between the websocket connection and a feed subscription
type Client struct {
	conn   *websocket.Conn
	sub    *feed.Subscription
	logger *log.Logger
}

// writePump pumps change events from the subscription to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sub.Close()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The subscription was closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Printf("Error writing change event: %v", err)
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

// readPump drains the connection so control frames are processed, and
// releases the subscription once the peer goes away
func (c *Client) readPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Printf("WebSocket read error: %v", err)
			}
			return
		}
	}
}

// serveWs streams the session owner's change events over a websocket
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	s.logger.Printf("WebSocket connection attempt from %s for %s", r.RemoteAddr, user.ID)

	// Check if it's a websocket upgrade request
	if !websocket.IsWebSocketUpgrade(r) {
		s.logger.Printf("Not a WebSocket upgrade request from %s", r.RemoteAddr)
		http.Error(w, "Expected WebSocket Upgrade", http.StatusBadRequest)
		return
	}

	// Register before upgrading so a stopped feed is still reported as an HTTP error
	sub, err := s.hub.Subscribe(r.Context(), user.ID)
	if err != nil {
		s.logger.Printf("Error subscribing %s: %v", user.ID, err)
		http.Error(w, "change feed unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		s.logger.Printf("Error upgrading connection from %s: %v", r.RemoteAddr, err)
		// Check for specific upgrade errors
		if strings.Contains(err.Error(), "websocket: version != 13") {
			s.logger.Printf("Unsupported WebSocket version")
		}
		return
	}

	s.logger.Printf("WebSocket connection established with %s", r.RemoteAddr)

	client := &Client{
		conn:   conn,
		sub:    sub,
		logger: s.logger,
	}

	go client.writePump()
	go client.readPump()
}
