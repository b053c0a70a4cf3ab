package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, then admits the attempt when there is
// room. Returns {allowed, remaining, reset_ms}.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)
local count = redis.call("ZCARD", KEYS[1])

local allowed = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  count = count + 1
  allowed = 1
end

local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local reset = now + window
if oldest[2] ~= nil then
  reset = tonumber(oldest[2]) + window
end

return {allowed, limit - count, reset}
`

// RedisStore shares rate limit windows across instances.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
	prefix string
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		script: redis.NewScript(slidingWindowScript),
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}
	now := s.now()
	res, err := s.script.Run(ctx, s.client, []string{s.prefix + "ratelimit:" + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Result{}, errors.New("invalid rate limit script response")
	}
	remaining := int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
