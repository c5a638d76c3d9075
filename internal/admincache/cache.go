// Package admincache keeps a short-lived Redis copy of each chat's admin
// list so the moderator does not ask the chat platform on every message:
//
//	Key:   admins:<chat_id>
//	Value: comma-separated user ids ("" for a chat without admins)
//	TTL:   cache TTL (5 minutes by default)
//
// Entries may be stale for up to the TTL.
package admincache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for cached admin lists.
	KeyPrefix = "admins:"

	// DefaultTTL is used when the cache is created with a non-positive TTL.
	DefaultTTL = 5 * time.Minute
)

// Source fetches the authoritative admin list, typically the chat transport.
type Source interface {
	GetChatAdmins(ctx context.Context, chatID int64) ([]int64, error)
}

// Cache is a read-through admin list cache.
type Cache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
}

// New creates a Cache in front of source.
func New(client *redis.Client, source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, source: source, ttl: ttl}
}

func key(chatID int64) string {
	return KeyPrefix + strconv.FormatInt(chatID, 10)
}

// ChatAdmins returns the admin ids of a chat, from Redis when cached. A Redis
// failure falls through to the source; only a source failure is returned.
func (c *Cache) ChatAdmins(ctx context.Context, chatID int64) ([]int64, error) {
	val, err := c.client.Get(ctx, key(chatID)).Result()
	switch {
	case err == nil:
		ids, decodeErr := decode(val)
		if decodeErr == nil {
			return ids, nil
		}
		log.Printf("[admincache] chat %d: dropping corrupt entry: %v", chatID, decodeErr)
	case errors.Is(err, redis.Nil):
	default:
		log.Printf("[admincache] chat %d: redis get: %v", chatID, err)
	}

	ids, err := c.source.GetChatAdmins(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("admincache: fetch chat %d: %w", chatID, err)
	}
	if err := c.client.Set(ctx, key(chatID), encode(ids), c.ttl).Err(); err != nil {
		log.Printf("[admincache] chat %d: redis set: %v", chatID, err)
	}
	return ids, nil
}

// Invalidate drops the cached list, e.g. after an admin change event.
func (c *Cache) Invalidate(ctx context.Context, chatID int64) error {
	if err := c.client.Del(ctx, key(chatID)).Err(); err != nil {
		return fmt.Errorf("admincache: invalidate chat %d: %w", chatID, err)
	}
	return nil
}

func encode(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func decode(val string) ([]int64, error) {
	if val == "" {
		return []int64{}, nil
	}
	parts := strings.Split(val, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
