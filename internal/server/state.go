package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound reports an unknown, expired or already-consumed state token.
var ErrStateNotFound = errors.New("state not found")

// StateStore holds single-use OAuth anti-forgery tokens. Entries are
// time-bounded and consumed exactly once: a second Consume of the same state
// fails, which also rejects replayed callbacks.
type StateStore interface {
	Put(ctx context.Context, state, userID string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (string, error)
}

const stateKeyPrefix = "oauth_state:"

// RedisStateStore keeps state tokens in Redis so callbacks may land on any
// instance.
type RedisStateStore struct {
	Rdb *redis.Client
}

func (s *RedisStateStore) Put(ctx context.Context, state, userID string, ttl time.Duration) error {
	return s.Rdb.Set(ctx, stateKeyPrefix+state, userID, ttl).Err()
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	userID, err := s.Rdb.GetDel(ctx, stateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// MemoryStateStore is a process-local StateStore used in tests.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryState
}

type memoryState struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]memoryState)}
}

func (s *MemoryStateStore) Put(ctx context.Context, state, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state] = memoryState{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStateStore) Consume(ctx context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return "", ErrStateNotFound
	}
	delete(s.entries, state)
	if time.Now().After(entry.expiresAt) {
		return "", ErrStateNotFound
	}
	return entry.userID, nil
}
