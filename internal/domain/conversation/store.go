package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists one state per user. A missing entry reads as Idle.
type Store interface {
	Load(ctx context.Context, userID int64) (State, error)
	Save(ctx context.Context, userID int64, s State) error
	Clear(ctx context.Context, userID int64) error
}

// RedisStore keeps states in Redis with a sliding TTL, so abandoned flows
// expire back to Idle.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "aislide:state:", ttl: ttl}
}

func (s *RedisStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Load(ctx context.Context, userID int64) (State, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return DecodeState(b)
}

func (s *RedisStore) Save(ctx context.Context, userID int64, st State) error {
	if st == nil || st.Kind() == KindIdle {
		return s.Clear(ctx, userID)
	}
	b, err := EncodeState(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// MemoryStore is a Store for tests and single-instance development.
// Entries are encoded so both stores share one serialization path.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// NewMemoryStore creates an in-process store. ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[int64]memoryEntry)}
}

func (s *MemoryStore) Load(_ context.Context, userID int64) (State, error) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if ok && s.ttl > 0 && s.now().After(e.expires) {
		delete(s.entries, userID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return Idle{}, nil
	}
	return DecodeState(e.data)
}

func (s *MemoryStore) Save(ctx context.Context, userID int64, st State) error {
	if st == nil || st.Kind() == KindIdle {
		return s.Clear(ctx, userID)
	}
	b, err := EncodeState(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[userID] = memoryEntry{data: b, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.entries, userID)
	s.mu.Unlock()
	return nil
}
