package session

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"deepleelad/pkg/types"
)

// ErrNotFound is returned by Store.Load for an unknown review id.
var ErrNotFound = errors.New("review not found")

// Store persists reviewed games as SGF text.
type Store interface {
	Save(ctx context.Context, id, sgf string) error
	Load(ctx context.Context, id string) (string, error)
}

const (
	defaultReviewPrefix = "deepleela:review:"
	defaultReviewTTL    = 30 * 24 * time.Hour
	maxSGFBytes         = 1 << 20
	storeTimeout        = 5 * time.Second
)

// RedisStore keeps reviews in redis under a key prefix with an expiry.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store on rdb. A ttl of zero uses the default of
// 30 days.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultReviewTTL
	}
	return &RedisStore{rdb: rdb, prefix: defaultReviewPrefix, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, id, sgf string) error {
	if err := s.rdb.Set(ctx, s.prefix+id, sgf, s.ttl).Err(); err != nil {
		return fmt.Errorf("save review %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (string, error) {
	v, err := s.rdb.Get(ctx, s.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load review %s: %w", id, err)
	}
	return v, nil
}

// Bounds of a MemoryStore. Reviews expire like RedisStore keys, and the
// oldest are evicted first once either cap is reached.
const (
	defaultMemoryEntries = 4096
	defaultMemoryBytes   = 256 << 20
)

type memoryEntry struct {
	id    string
	sgf   string
	saved time.Time
}

// MemoryStore is an in-process Store for tests and redis-less setups.
type MemoryStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	maxBytes   int
	now        func() time.Time

	order *list.List // of *memoryEntry, oldest first
	index map[string]*list.Element
	bytes int
}

// NewMemoryStore returns a store holding at most 4096 reviews or 256 MiB of
// SGF, each for 30 days.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ttl:        defaultReviewTTL,
		maxEntries: defaultMemoryEntries,
		maxBytes:   defaultMemoryBytes,
		now:        time.Now,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (s *MemoryStore) Save(_ context.Context, id, sgf string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[id]; ok {
		s.remove(el)
	}
	s.index[id] = s.order.PushBack(&memoryEntry{id: id, sgf: sgf, saved: s.now()})
	s.bytes += len(sgf)
	s.evict()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.index[id]
	if !ok {
		return "", ErrNotFound
	}
	e := el.Value.(*memoryEntry)
	if s.expired(e) {
		s.remove(el)
		return "", ErrNotFound
	}
	return e.sgf, nil
}

// Len returns the number of reviews held, expired ones included until the
// next Save.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *MemoryStore) expired(e *memoryEntry) bool {
	return s.now().Sub(e.saved) >= s.ttl
}

// evict drops expired reviews, then the oldest until both caps hold. The
// newest review is always kept. Callers hold mu.
func (s *MemoryStore) evict() {
	for s.order.Len() > 1 {
		front := s.order.Front()
		if !s.expired(front.Value.(*memoryEntry)) && s.order.Len() <= s.maxEntries && s.bytes <= s.maxBytes {
			return
		}
		s.remove(front)
	}
}

func (s *MemoryStore) remove(el *list.Element) {
	e := s.order.Remove(el).(*memoryEntry)
	delete(s.index, e.id)
	s.bytes -= len(e.sgf)
}

// Review serves save/load requests for game records.
type Review struct {
	store Store
}

// NewReview returns a review handler backed by store.
func NewReview(store Store) *Review { return &Review{store: store} }

// ServeConn answers review requests until the client disconnects.
func (rv *Review) ServeConn(ctx context.Context, conn *websocket.Conn) {
	log := zerolog.Ctx(ctx)
	conn.SetReadLimit(maxSGFBytes + 4096)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req types.ReviewRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if !writeJSON(conn, log, types.ReviewResponse{Error: "invalid request"}) {
				return
			}
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		resp := rv.handle(sctx, log, req)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if !writeJSON(conn, log, resp) {
			return
		}
	}
}

func (rv *Review) handle(ctx context.Context, log *zerolog.Logger, req types.ReviewRequest) types.ReviewResponse {
	resp := types.ReviewResponse{Op: req.Op, ID: req.ID}
	switch req.Op {
	case "save":
		if strings.TrimSpace(req.SGF) == "" {
			resp.Error = "sgf is required"
			return resp
		}
		if len(req.SGF) > maxSGFBytes {
			resp.Error = "sgf too large"
			return resp
		}
		if resp.ID == "" {
			resp.ID = uuid.NewString()
		}
		if err := rv.store.Save(ctx, resp.ID, req.SGF); err != nil {
			log.Error().Err(err).Str("review", resp.ID).Msg("review save failed")
			resp.Error = "storage unavailable"
			return resp
		}
		resp.OK = true
	case "load":
		if req.ID == "" {
			resp.Error = "id is required"
			return resp
		}
		sgf, err := rv.store.Load(ctx, req.ID)
		if errors.Is(err, ErrNotFound) {
			resp.Error = "not found"
			return resp
		}
		if err != nil {
			log.Error().Err(err).Str("review", req.ID).Msg("review load failed")
			resp.Error = "storage unavailable"
			return resp
		}
		resp.OK = true
		resp.SGF = sgf
	default:
		resp.Error = "unknown op"
	}
	return resp
}
