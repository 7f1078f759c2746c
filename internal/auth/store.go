package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChallengeStore keeps outstanding sign-in messages keyed by address. Take
// returns and removes a message so each challenge is usable once.
type ChallengeStore interface {
	Put(ctx context.Context, address, message string, ttl time.Duration) error
	Take(ctx context.Context, address string) (string, error)
}

const challengeKeyPrefix = "fundme:auth:challenge:"

// RedisChallengeStore keeps challenges in Redis with a TTL.
type RedisChallengeStore struct {
	client *redis.Client
}

// NewRedisChallengeStore wraps a Redis client.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

// Put stores message for address, replacing any earlier challenge.
func (s *RedisChallengeStore) Put(ctx context.Context, address, message string, ttl time.Duration) error {
	return s.client.Set(ctx, challengeKeyPrefix+address, message, ttl).Err()
}

// Take atomically reads and deletes the challenge for address.
func (s *RedisChallengeStore) Take(ctx context.Context, address string) (string, error) {
	message, err := s.client.GetDel(ctx, challengeKeyPrefix+address).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrChallengeNotFound
	}
	return message, err
}

type memoryChallenge struct {
	message string
	expires time.Time
}

// MemoryChallengeStore is used in development when Redis is not configured.
type MemoryChallengeStore struct {
	mu    sync.Mutex
	items map[string]memoryChallenge
	now   func() time.Time
}

// NewMemoryChallengeStore creates an empty in-process store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{items: make(map[string]memoryChallenge), now: time.Now}
}

// Put stores message for address, replacing any earlier challenge.
func (s *MemoryChallengeStore) Put(_ context.Context, address, message string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[address] = memoryChallenge{message: message, expires: s.now().Add(ttl)}
	return nil
}

// Take reads and deletes the challenge for address.
func (s *MemoryChallengeStore) Take(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[address]
	if !ok {
		return "", ErrChallengeNotFound
	}
	delete(s.items, address)
	if !s.now().Before(item.expires) {
		return "", ErrChallengeNotFound
	}
	return item.message, nil
}
