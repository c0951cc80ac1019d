package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const DefaultUnreadCountTTL = 1 * time.Minute

// InboxCache caches per-user unread thread counts. A nil receiver or a nil
// Redis client turns every call into a miss or no-op.
type InboxCache struct {
	redis *RedisCache
	ttl   time.Duration
}

func NewInboxCache(redis *RedisCache, ttl time.Duration) *InboxCache {
	if ttl <= 0 {
		ttl = DefaultUnreadCountTTL
	}
	return &InboxCache{redis: redis, ttl: ttl}
}

func unreadCountKey(userID uint) string {
	return fmt.Sprintf("inbox:unread:%d", userID)
}

// GetUnreadCount retrieves cached unread count
func (ic *InboxCache) GetUnreadCount(userID uint) (int, bool) {
	if ic == nil || ic.redis == nil {
		return 0, false
	}
	data, err := ic.redis.Get(unreadCountKey(userID))
	if err != nil || data == nil {
		return 0, false
	}

	var count int
	if err := msgpack.Unmarshal(data, &count); err != nil {
		return 0, false
	}
	return count, true
}

// SetUnreadCount caches unread count
func (ic *InboxCache) SetUnreadCount(userID uint, count int) error {
	if ic == nil || ic.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(count)
	if err != nil {
		return err
	}
	return ic.redis.Set(unreadCountKey(userID), data, ic.ttl)
}

// InvalidateUnreadCounts removes cached counts for the given users
func (ic *InboxCache) InvalidateUnreadCounts(userIDs ...uint) error {
	if ic == nil || ic.redis == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, unreadCountKey(id))
	}
	return ic.redis.Delete(keys...)
}
