// Package ratelimit throttles the warnings the moderator posts into a chat,
// using a Redis fixed window (INCR, then EXPIRE on the first hit). During a
// spam raid every offender still gets a strike, but the chat is not flooded
// with one warning per deleted message.
package ratelimit

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a limit: key prefix, maximum hits per window, and the window.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// RuleWarning allows 5 warning messages per chat per minute.
var RuleWarning = Rule{Key: "rl:warn:", Limit: 5, Window: time.Minute}

// Limiter performs rate limit checks against Redis.
type Limiter struct {
	client *redis.Client
	rule   Rule
}

// NewLimiter creates a warning Limiter. A zero rule uses RuleWarning.
func NewLimiter(client *redis.Client, rule Rule) *Limiter {
	if rule.Limit <= 0 || rule.Window <= 0 {
		rule = RuleWarning
	}
	return &Limiter{client: client, rule: rule}
}

// AllowWarning reports whether another warning may be posted in chatID. It
// fails open: a Redis error allows the warning.
func (l *Limiter) AllowWarning(ctx context.Context, chatID int64) bool {
	ok, err := l.Allow(ctx, strconv.FormatInt(chatID, 10))
	if err != nil {
		log.Printf("[ratelimit] chat %d: %v (failing open)", chatID, err)
	}
	return ok
}

// Allow increments identifier's counter and reports whether it is still
// within the limit. On Redis errors it returns true with the error.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := l.rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}

	// Only the first hit sets the expiry so the window does not slide.
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			// Without a TTL the key would throttle forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}

// Remaining returns how many hits identifier has left in the current window.
func (l *Limiter) Remaining(ctx context.Context, identifier string) (int, error) {
	count, err := l.client.Get(ctx, l.rule.Key+identifier).Int()
	if errors.Is(err, redis.Nil) {
		return l.rule.Limit, nil
	}
	if err != nil {
		return l.rule.Limit, err
	}

	remaining := l.rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
