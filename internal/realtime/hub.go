// Package realtime pushes live challenge rankings to websocket clients.
//
// A client connects to /api/challenges/{id}/live and receives the current
// ranking immediately, then a fresh snapshot whenever points credited to
// that challenge change.
//
// FAN-OUT:
// Without Redis the hub broadcasts only to its own connections. With Redis,
// RankingChanged publishes the challenge id on a channel and every server
// instance (this one included) rebuilds and sends the snapshot to its own
// subscribers, so clients see updates no matter which instance took the write.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/estudogame/internal/model"
)

// Channel is the Redis pub/sub channel carrying changed challenge ids.
const Channel = "estudogame:ranking"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RankingSource loads a challenge leaderboard.
type RankingSource interface {
	Ranking(ctx context.Context, challengeID int64) ([]model.RankingEntry, error)
}

// Snapshot is the message sent to subscribers.
type Snapshot struct {
	Type        string               `json:"type"`
	ChallengeID int64                `json:"challengeId"`
	Ranking     []model.RankingEntry `json:"ranking"`
	At          time.Time            `json:"at"`
}

type client struct {
	id          uuid.UUID
	challengeID int64
	conn        *websocket.Conn
	send        chan []byte
	closeOnce   sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[*client]struct{}

	source RankingSource
	redis  *redis.Client // nil: local broadcast only
	logger *slog.Logger
}

func NewHub(source RankingSource, rdb *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[int64]map[*client]struct{}),
		source: source,
		redis:  rdb,
		logger: logger,
	}
}

// Start subscribes to the Redis channel and dispatches messages until ctx is
// cancelled. It returns once the subscription is confirmed. Without Redis it
// does nothing.
func (h *Hub) Start(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}

	pubsub := h.redis.Subscribe(ctx, Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("realtime: subscribing to %s: %w", Channel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				id, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					h.logger.Warn("realtime: bad ranking message", slog.String("payload", msg.Payload))
					continue
				}
				h.broadcast(ctx, id)
			}
		}
	}()

	h.logger.Info("realtime: subscribed", slog.String("channel", Channel))
	return nil
}

// RankingChanged announces that the standings of the given challenges moved.
func (h *Hub) RankingChanged(ctx context.Context, challengeIDs ...int64) {
	for _, id := range challengeIDs {
		if h.redis == nil {
			h.broadcast(ctx, id)
			continue
		}
		if err := h.redis.Publish(ctx, Channel, strconv.FormatInt(id, 10)).Err(); err != nil {
			h.logger.Warn("realtime: publish failed, broadcasting locally",
				slog.Int64("challengeID", id), slog.String("error", err.Error()))
			h.broadcast(ctx, id)
		}
	}
}

// Subscribers returns how many local connections watch a challenge.
func (h *Hub) Subscribers(challengeID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[challengeID])
}

// Connections returns the number of local connections across all challenges.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// Serve upgrades the request and streams snapshots of challengeID until the
// client disconnects. Authentication happens before it is called.
//
// An error is returned only when the first snapshot cannot be built. Nothing
// has been written to w at that point and the caller owns the reply.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, challengeID int64) error {
	initial, err := h.snapshot(r.Context(), challengeID)
	if err != nil {
		return fmt.Errorf("realtime: initial snapshot of challenge %d: %w", challengeID, err)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Warn("realtime: upgrade failed", slog.String("error", err.Error()))
		return nil
	}

	c := &client{
		id:          uuid.New(),
		challengeID: challengeID,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
	}
	c.send <- initial
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.challengeID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.challengeID] = room
	}
	room[c] = struct{}{}

	h.logger.Debug("realtime: client connected",
		slog.String("clientID", c.id.String()),
		slog.Int64("challengeID", c.challengeID),
		slog.Int("subscribers", len(room)),
	)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[c.challengeID]; ok {
		if _, ok := room[c]; ok {
			delete(room, c)
			c.close()
		}
		if len(room) == 0 {
			delete(h.rooms, c.challengeID)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, challengeID int64) {
	if h.Subscribers(challengeID) == 0 {
		return
	}

	data, err := h.snapshot(ctx, challengeID)
	if err != nil {
		h.logger.Error("realtime: building snapshot", slog.Int64("challengeID", challengeID), slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[challengeID] {
		select {
		case c.send <- data:
		default:
			// Slow consumer: drop it rather than block everyone else.
			delete(h.rooms[challengeID], c)
			c.close()
		}
	}
}

func (h *Hub) snapshot(ctx context.Context, challengeID int64) ([]byte, error) {
	ranking, err := h.source.Ranking(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Snapshot{
		Type:        "ranking",
		ChallengeID: challengeID,
		Ranking:     ranking,
		At:          time.Now().UTC(),
	})
}

// readPump only watches for disconnects and pongs; clients send nothing.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
