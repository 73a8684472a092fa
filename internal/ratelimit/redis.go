package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("ratelimit: redis unavailable")

// admitScript increments the window counter, starts the window on the first
// hit, and refuses to count past the limit. Returns {admitted, count, pttl}.
const admitScript = `
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[1]) then
  return {0, count, redis.call("PTTL", KEYS[1])}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, count, redis.call("PTTL", KEYS[1])}
`

var admitLua = redis.NewScript(admitScript)

// Redis is a fixed-window limiter whose counters live in Redis, so every
// process behind a load balancer shares one budget per key.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "rl:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (l *Redis) Admit(ctx context.Context, key string, rule Rule) (Decision, error) {
	if !rule.valid() {
		return Decision{}, ErrInvalidRule
	}

	res, err := admitLua.Run(ctx, l.client, []string{l.prefix + key}, rule.Limit, rule.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, res)
	}

	admitted, count, pttl := res[0] == 1, int(res[1]), res[2]

	d := Decision{Rule: rule.Name, Limit: rule.Limit}
	if !admitted {
		d.RetryAfter = rule.Window
		if pttl > 0 {
			d.RetryAfter = time.Duration(pttl) * time.Millisecond
		}
		return d, nil
	}

	d.Allowed = true
	d.Remaining = rule.Limit - count
	return d, nil
}
