package chatsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/collection"
	"github.com/suprss/suprss/core/interaction"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 10
)

// Hub keeps the live chat connections, grouped by collection.
type Hub struct {
	queueSize int
	heartbeat time.Duration
	logger    core.Logger

	mu     sync.RWMutex
	rooms  map[int64]map[*client]struct{}
	closed bool
	wg     sync.WaitGroup
}

var (
	_ interaction.Broadcaster = (*Hub)(nil)
	_ collection.Disconnecter = (*Hub)(nil)
)

type originKey struct{}

// withOrigin marks ctx as carrying a message received from the connection.
func withOrigin(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, originKey{}, connID)
}

func originFrom(ctx context.Context) string {
	id, _ := ctx.Value(originKey{}).(string)
	return id
}

func NewHub(conf *core.Config, logger core.Logger) *Hub {
	queue := conf.Chat.MessageQueueSize
	if queue <= 0 {
		queue = 100
	}
	hb := conf.Chat.HeartbeatInterval
	if hb <= 0 {
		hb = 30 * time.Second
	}
	return &Hub{
		queueSize: queue,
		heartbeat: hb,
		logger:    logger,
		rooms:     make(map[int64]map[*client]struct{}),
	}
}

// Broadcast queues the message on every connection of its collection, except the one it was received from.
// Connections whose queue is full are dropped.
func (h *Hub) Broadcast(ctx context.Context, msg interaction.Message) {
	payload, err := json.Marshal(event{Type: eventMessage, Message: &msg})
	if err != nil {
		h.logger.Error(fmt.Sprintf("chat: encoding message: %v", err), err)
		return
	}

	origin := originFrom(ctx)
	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[msg.CollectionID] {
		if c.id == origin {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn(fmt.Sprintf("chat: dropping slow connection %s of user %d", c.id, c.userID))
		h.unregister(c)
	}
}

// Kick disconnects every connection of the user to the collection chat.
func (h *Hub) Kick(collectionID, userID int64) {
	h.disconnect(collectionID, func(c *client) bool { return c.userID == userID })
}

// CloseRoom disconnects every connection to the collection chat.
func (h *Hub) CloseRoom(collectionID int64) {
	h.disconnect(collectionID, func(*client) bool { return true })
}

func (h *Hub) disconnect(collectionID int64, match func(c *client) bool) {
	h.mu.RLock()
	var clients []*client
	for c := range h.rooms[collectionID] {
		if match(c) {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.logger.Debug(fmt.Sprintf("chat: disconnecting user %d from collection %d (%s)", c.userID, collectionID, c.id))
		// closing the queue makes the write pump send a close frame
		h.unregister(c)
	}
}

// Connections returns the number of live connections of the collection.
func (h *Hub) Connections(collectionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[collectionID])
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	room, ok := h.rooms[c.collectionID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.collectionID] = room
	}
	room[c] = struct{}{}
	h.wg.Add(2) // read & write pumps
	return true
}

// unregister removes the client & closes its queue, which stops its write pump.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.collectionID]
	if !ok {
		return
	}
	if _, ok = room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.collectionID)
	}
	close(c.send)
}

// Close disconnects every client & waits for their goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0)
	for _, room := range h.rooms {
		for c := range room {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
		_ = c.conn.Close()
	}
	h.wg.Wait()
}

// Serve runs the connection of the user to the collection chat until it closes.
// Every text frame received is handed to `post`.
func (h *Hub) Serve(conn *websocket.Conn, collectionID, userID int64, post Poster) {
	c := &client{
		id:           uuid.NewString(),
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, h.queueSize),
		collectionID: collectionID,
		userID:       userID,
		post:         post,
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug(fmt.Sprintf("chat: user %d joined collection %d (%s)", userID, collectionID, c.id))

	go c.writePump()
	c.readPump()
}
