package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether another attempt under key fits the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// FixedWindowLimiter counts attempts per key in Redis, so every api-server
// replica shares one budget per caller.
type FixedWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewFixedWindowLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *FixedWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &FixedWindowLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	count, err := l.incr(ctx, l.prefix+":"+key)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return count <= int64(l.limit), nil
}

func (l *FixedWindowLimiter) incr(ctx context.Context, key string) (int64, error) {
	res, err := fixedWindowScript.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
