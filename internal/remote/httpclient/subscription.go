package httpclient

import (
	"bookmark-manager/internal/remote"
	"bookmark-manager/pkg/types"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// subscription reads change events from a websocket until closed
type subscription struct {
	conn   *websocket.Conn
	events chan types.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

// Subscribe implements remote.Client by opening the server's change stream
func (c *Client) Subscribe(ctx context.Context, owner string) (remote.Subscription, error) {
	wsURL, err := c.streamURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("subscribe: %w", remote.ErrUnauthorized)
		}
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &subscription{
		conn:   conn,
		events: make(chan types.ChangeEvent, 64),
		done:   make(chan struct{}),
	}
	go sub.readLoop(c)
	return sub, nil
}

func (c *Client) streamURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"access_token": {c.Token()}}.Encode()
	return u.String(), nil
}

func (s *subscription) readLoop(c *Client) {
	defer close(s.events)

	for {
		var event types.ChangeEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			select {
			case <-s.done:
			default:
				c.logger.Printf("Change stream ended: %v", err)
			}
			return
		}

		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

// Events implements remote.Subscription
func (s *subscription) Events() <-chan types.ChangeEvent {
	return s.events
}

// Close implements remote.Subscription
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}
