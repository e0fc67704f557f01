package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// InvalidateUser removes every limit key of a user.
func (rl *RateLimiter) InvalidateUser(ctx context.Context, userID string) error {
	prefix := keyPrefix + "user:" + userID + ":"
	rl.dropFallback(func(key string) bool { return strings.HasPrefix(key, prefix) })

	if !rl.redisClient.IsEnabled() {
		return nil
	}
	return rl.deleteByPattern(ctx, prefix+"*")
}

// InvalidateIP removes the limit keys of an IP, including endpoint limits.
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	exact := ipKey(ip)
	suffix := ":" + ip
	rl.dropFallback(func(key string) bool {
		return key == exact || (strings.HasPrefix(key, keyPrefix+"endpoint:") && strings.HasSuffix(key, suffix))
	})

	if !rl.redisClient.IsEnabled() {
		return nil
	}
	if err := rl.deleteByPattern(ctx, exact); err != nil {
		return err
	}
	return rl.deleteByPattern(ctx, keyPrefix+"endpoint:*"+suffix)
}

// ResetOnUpgrade gives a user who just became pro a fresh narrative quota.
func (rl *RateLimiter) ResetOnUpgrade(ctx context.Context, userID string) error {
	slog.Info("Resetting rate limits for user upgrade", "user_id", shortID(userID))
	return rl.InvalidateUser(ctx, userID)
}

// InvalidateAll removes every limit key.
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	count := rl.dropFallback(func(string) bool { return true })
	slog.Warn("Invalidating all rate limits", "fallback_count", count)

	if !rl.redisClient.IsEnabled() {
		return nil
	}
	return rl.deleteByPattern(ctx, keyPrefix+"*")
}

func (rl *RateLimiter) dropFallback(match func(key string) bool) int {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	dropped := 0
	for key := range rl.fallbackLimiters {
		if match(key) {
			delete(rl.fallbackLimiters, key)
			dropped++
		}
	}
	return dropped
}

// deleteByPattern deletes matching keys with SCAN rather than KEYS.
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.Client()

	var cursor uint64
	deleted := int64(0)
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	slog.Info("Deleted rate limit keys", "pattern", pattern, "count", deleted)
	return nil
}
