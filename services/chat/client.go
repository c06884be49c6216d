package chatsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/suprss/suprss/core/interaction"
)

const (
	eventMessage = "message"
	eventError   = "error"
)

// Poster persists & broadcasts a message received from a connection.
// ctx must be handed down to Hub.Broadcast.
type Poster func(ctx context.Context, content string) (interaction.Message, error)

type event struct {
	Type    string               `json:"type"`
	Message *interaction.Message `json:"message,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type client struct {
	id           string
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	collectionID int64
	userID       int64
	post         Poster
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
		c.hub.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.hub.heartbeat))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * c.hub.heartbeat))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn(fmt.Sprintf("chat: reading from %s: %v", c.id, err))
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		msg, err := c.post(withOrigin(context.Background(), c.id), string(data))
		if err != nil {
			c.reply(event{Type: eventError, Error: err.Error()})
			continue
		}
		// Broadcast skips the connection the message came from
		c.reply(event{Type: eventMessage, Message: &msg})
	}
}

func (c *client) reply(ev event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	// holding the read lock keeps unregister from closing send meanwhile
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.rooms[c.collectionID][c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.logger.Debug(fmt.Sprintf("chat: writing to %s: %v", c.id, err))
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
