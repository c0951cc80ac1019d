package cache

import (
	"time"
)

const limiterPrefix = "ratelimit:"

// LimiterStorage implements fiber.Storage on top of Redis so rate-limit
// counters are shared by every instance instead of living in process memory.
type LimiterStorage struct {
	redis *RedisCache
}

func NewLimiterStorage(redis *RedisCache) *LimiterStorage {
	return &LimiterStorage{redis: redis}
}

func (s *LimiterStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	return s.redis.Get(limiterPrefix + key)
}

func (s *LimiterStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.redis.Set(limiterPrefix+key, val, exp)
}

func (s *LimiterStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	return s.redis.Delete(limiterPrefix + key)
}

// Reset drops every rate-limit counter but leaves other keys alone.
func (s *LimiterStorage) Reset() error {
	return s.redis.DeletePattern(limiterPrefix + "*")
}

// Close is a no-op: the Redis client is shared and closed by its owner.
func (s *LimiterStorage) Close() error {
	return nil
}
