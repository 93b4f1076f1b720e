package answerkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rangehawk:answerkey:"

// RedisStore caches keys in Redis so graders on several hosts share them.
// A zero TTL keeps keys until they are deleted.
type RedisStore struct {
	redis      *redis.Client
	ttl        time.Duration
	passphrase string
}

// NewRedisStore creates a Redis-backed store. With a passphrase the stored
// values are sealed.
func NewRedisStore(client *redis.Client, ttl time.Duration, passphrase string) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl, passphrase: passphrase}
}

func (s *RedisStore) key(instanceID string) string {
	return redisKeyPrefix + instanceID
}

func (s *RedisStore) Put(ctx context.Context, instanceID string, k *Key) error {
	if err := checkInstanceID(instanceID); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if s.passphrase != "" {
		data, err = Seal(k, s.passphrase)
	} else {
		data, err = k.MarshalJSON()
	}
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(instanceID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store answer key: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, instanceID string) (*Key, error) {
	if err := checkInstanceID(instanceID); err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, s.key(instanceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer key: %w", err)
	}
	return Decode(data, s.passphrase)
}

// Delete removes a key.
func (s *RedisStore) Delete(ctx context.Context, instanceID string) error {
	if err := s.redis.Del(ctx, s.key(instanceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete answer key: %w", err)
	}
	return nil
}
