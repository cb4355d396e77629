package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const challengePrefix = "auth:challenge:v1:"

// ChallengeStore keeps one outstanding login challenge per address. Take
// consumes the challenge so a signature can be used only once.
type ChallengeStore interface {
	Put(ctx context.Context, address common.Address, message string, ttl time.Duration) error
	Take(ctx context.Context, address common.Address) (string, error)
}

// RedisChallengeStore keeps challenges in Redis with a TTL.
type RedisChallengeStore struct {
	cache *redis.Client
}

// NewRedisChallengeStore builds a Redis backed challenge store.
func NewRedisChallengeStore(cache *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{cache: cache}
}

// Put stores message as the pending challenge for address, replacing any
// previous one.
func (s *RedisChallengeStore) Put(ctx context.Context, address common.Address, message string, ttl time.Duration) error {
	return s.cache.Set(ctx, challengeKey(address), message, ttl).Err()
}

// Take returns and deletes the pending challenge for address.
func (s *RedisChallengeStore) Take(ctx context.Context, address common.Address) (string, error) {
	message, err := s.cache.GetDel(ctx, challengeKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrChallengeNotFound
	}
	return message, err
}

func challengeKey(address common.Address) string {
	return challengePrefix + strings.ToLower(address.Hex())
}

type pendingChallenge struct {
	message string
	expires time.Time
}

// MemoryChallengeStore is an in-process ChallengeStore for development and
// tests.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	pending map[common.Address]pendingChallenge
	now     func() time.Time
}

// NewMemoryChallengeStore builds an empty in-memory store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		pending: make(map[common.Address]pendingChallenge),
		now:     time.Now,
	}
}

func (s *MemoryChallengeStore) Put(_ context.Context, address common.Address, message string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[address] = pendingChallenge{message: message, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryChallengeStore) Take(_ context.Context, address common.Address) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[address]
	delete(s.pending, address)
	if !ok || !s.now().Before(p.expires) {
		return "", ErrChallengeNotFound
	}
	return p.message, nil
}
