package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// failureRateLimitScript implements a fixed-window counter. The limit check
// happens inside the script so a blocked request neither increments the
// counter nor extends the window. Returns {allowed, count, ttl_ms}.
var failureRateLimitScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[2])
if current >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    ttl = tonumber(ARGV[1])
  end
  return {0, current, ttl}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {1, current, ttl}
`)

// RedisFailureRateLimiter throttles failure reports per (group, member) pair,
// so one member flooding a group cannot exhaust another group's allowance.
type RedisFailureRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFailureRateLimiter(client redis.UniversalClient, prefix string) *RedisFailureRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "pactify:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisFailureRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// Allow consumes one failure-report slot for the member in the group. A nil
// limiter, a nil client or a degenerate limit admits the request outright.
func (r *RedisFailureRateLimiter) Allow(
	ctx context.Context,
	groupID, userID uuid.UUID,
	limit int,
	window time.Duration,
) (allowed bool, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return true, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:failure_report:%s:%s", r.prefix, groupID, userID)
	rawResult, err := failureRateLimitScript.Run(ctx, r.client, []string{key}, windowMs, limit).Result()
	if err != nil {
		return true, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 3 {
		return true, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}

	admitted, ok := values[0].(int64)
	if !ok {
		return true, 0, fmt.Errorf("unexpected redis limiter verdict type: %T", values[0])
	}
	ttlMs, ok := values[2].(int64)
	if !ok {
		return true, 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[2])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	if admitted == 1 {
		return true, 0, nil
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}
