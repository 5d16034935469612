package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// rollingWindowScript keeps one sorted-set member per granted call, scored by server time
// in milliseconds. It returns 0 when the call is granted, otherwise the milliseconds until
// the oldest member expires.
var rollingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local member = ARGV[3]
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return 0
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
  wait = 1
end
return wait
`)

// Redis shares one rolling window between every worker process pointing at the same key.
type Redis struct {
	client redis.Scripter
	key    string
	max    int
	window time.Duration
}

func NewRedis(client redis.Scripter, key string, max int, window time.Duration) *Redis {
	if key == "" {
		key = "sketchgen:ratelimit:providers"
	}
	return &Redis{client: client, key: key, max: max, window: window}
}

// Reserve asks Redis for a slot; a zero duration means granted.
func (r *Redis) Reserve(ctx context.Context) (time.Duration, error) {
	ms, err := rollingWindowScript.Run(ctx, r.client, []string{r.key},
		r.window.Milliseconds(), r.max, uuid.NewString()).Int64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis reserve: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (r *Redis) Wait(ctx context.Context) error {
	return waitFor(ctx, r.Reserve)
}
