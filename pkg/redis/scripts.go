package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scripts run through EVALSHA and fall back to EVAL on NOSCRIPT.
var (
	// incrWindow bumps a counter and arms its expiry on the first hit, so a
	// crash between the two commands cannot leave a counter without a TTL.
	incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n`)

	delIfValue = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`)

	expireIfValue = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
)

func (c *Client) runInt(ctx context.Context, script *redis.Script, key string, args ...any) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return script.Run(ctx, c.store, []string{key}, args...).Int64()
}

// DelIfValue removes key only while it still stores value and reports
// whether it did.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	n, err := c.runInt(ctx, delIfValue, key, value)
	return n > 0, err
}

// ExpireIfValue resets the TTL of key only while it still stores value. A
// false result means the key expired or changed hands.
func (c *Client) ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n, err := c.runInt(ctx, expireIfValue, key, value, ttl.Milliseconds())
	return n > 0, err
}

// FixedWindowAllow counts one hit against scope for the current window and
// reports whether the caller is still within limit.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if limit <= 0 {
		return false, 0, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	count, err := c.runInt(ctx, incrWindow, c.RateLimitKey(scope), window.Milliseconds())
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}
