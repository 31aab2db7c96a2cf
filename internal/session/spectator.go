package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultHistory    = 64
	defaultClientSend = 256
)

// SpectatorChannel is the redis pub/sub channel the hub relays by default.
const SpectatorChannel = "cgos"

type spectator struct {
	send chan []byte
}

// Hub fans every published message out to all connected spectators. New
// spectators first receive the most recent messages. A spectator that cannot
// keep up is disconnected rather than slowing the others down.
type Hub struct {
	mu       sync.Mutex
	clients  map[*spectator]struct{}
	history  [][]byte
	maxHist  int
	sendSize int
	log      zerolog.Logger
}

// NewHub returns an empty hub.
func NewHub(logger *zerolog.Logger) *Hub {
	h := &Hub{
		clients:  make(map[*spectator]struct{}),
		maxHist:  defaultHistory,
		sendSize: defaultClientSend,
		log:      zerolog.Nop(),
	}
	if logger != nil {
		h.log = logger.With().Str("component", "spectator").Logger()
	}
	return h
}

// Clients returns the number of connected spectators.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues msg for every spectator and records it in the replay
// history.
func (h *Hub) Publish(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, msg)
	if len(h.history) > h.maxHist {
		h.history = h.history[len(h.history)-h.maxHist:]
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			h.log.Warn().Msg("slow spectator dropped")
		}
	}
}

func (h *Hub) add() *spectator {
	c := &spectator{send: make(chan []byte, h.sendSize)}
	h.mu.Lock()
	defer h.mu.Unlock()
	replay := h.history
	if len(replay) > cap(c.send) {
		replay = replay[len(replay)-cap(c.send):]
	}
	for _, m := range replay {
		c.send <- m
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) remove(c *spectator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeConn adds conn to the hub until it disconnects. Client frames are
// read and discarded.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn) {
	log := zerolog.Ctx(ctx)
	c := h.add()
	defer h.remove(c)
	conn.SetReadLimit(maxFrameBytes)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case msg, ok := <-c.send:
			if !ok {
				log.Debug().Msg("spectator dropped by hub")
				return
			}
			if !writeText(conn, log, msg) {
				return
			}
		}
	}
}

func writeText(conn *websocket.Conn, log *zerolog.Logger, msg []byte) bool {
	if err := conn.SetWriteDeadline(deadline()); err != nil {
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Debug().Err(err).Msg("write failed")
		return false
	}
	return true
}

// RunRedis relays messages from a redis pub/sub channel into the hub until
// ctx is canceled. It returns an error if the subscription cannot be
// established.
func (h *Hub) RunRedis(ctx context.Context, rdb *redis.Client, channel string) error {
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	h.log.Info().Str("channel", channel).Msg("spectator upstream subscribed")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			h.Publish([]byte(m.Payload))
		}
	}
}
