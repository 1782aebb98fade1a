package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotExist is returned when a key carries an explicit negative-cache
// marker: the underlying entity is known to be missing. A plain cache miss
// never produces this error.
var ErrNotExist = errors.New("redisstore: entity marked not found")

const notExistMarker = "not_exist"

// Store is an explicitly constructed cache handle. All cached values are
// derived, expirable copies of relational rows; callers must invalidate on
// mutation and treat absence as a miss.
type Store struct {
	rdb         *redis.Client
	negativeTTL time.Duration
}

func New(addr, password string, db int, negativeTTL time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if negativeTTL <= 0 {
		negativeTTL = 20 * time.Second
	}
	return &Store{rdb: rdb, negativeTTL: negativeTTL}, nil
}

func (s *Store) Close() error { return s.rdb.Close() }

// GetOrLoad is the single read-through contract: return the cached value if
// present, otherwise invoke loader, write the result back with ttl, and
// return it. A loader reporting found=false writes a short-TTL negative
// marker and yields ErrNotExist, as does hitting an existing marker.
func (s *Store) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (string, bool, error)) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == notExistMarker {
			return "", ErrNotExist
		}
		return val, nil
	case !errors.Is(err, redis.Nil):
		return "", err
	}

	val, found, err := loader(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		_ = s.rdb.Set(ctx, key, notExistMarker, s.negativeTTL).Err()
		return "", ErrNotExist
	}
	if err := s.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return "", err
	}
	return val, nil
}

func (s *Store) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// AcquireChatLock sets the per-user mutual-exclusion marker. false means the
// lock is already held and the turn must be rejected, not queued.
func (s *Store) AcquireChatLock(ctx context.Context, uid uint64, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, ChatLockKey(uid), "lock", ttl).Result()
}

func (s *Store) ReleaseChatLock(ctx context.Context, uid uint64) error {
	return s.rdb.Del(ctx, ChatLockKey(uid)).Err()
}

func ChatLockKey(uid uint64) string      { return fmt.Sprintf("chat_lock:uid:%d", uid) }
func SessionKey(sessionID uint64) string { return fmt.Sprintf("session:%d", sessionID) }
func SessionListKey(uid uint64) string   { return fmt.Sprintf("uid:%d:sessions", uid) }
func LLMKey(llmID uint64) string         { return fmt.Sprintf("llm_id:%d", llmID) }
func LLMListKey() string                 { return "llms" }
func EmbeddingKey(id uint64) string      { return fmt.Sprintf("embed_id:%d", id) }
func EmbeddingListKey() string           { return "embeddings" }
