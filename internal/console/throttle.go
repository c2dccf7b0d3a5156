package console

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/newsdesk/console/internal/domain"
	redisclient "github.com/newsdesk/console/internal/redis"
)

// Limiter decides whether another login attempt under key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// fixedWindowScript increments a counter and sets its TTL on the first write
// of the window.
const fixedWindowScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// loginKeyPrefix namespaces throttle counters in Redis.
const loginKeyPrefix = "newsdesk:login_attempts:"

// RedisLimiter is a fixed-window counter shared by every console replica.
// Redis errors deny the attempt.
type RedisLimiter struct {
	cmd    redisclient.Cmdable
	limit  int
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter allows limit attempts per key per window.
func NewRedisLimiter(cmd redisclient.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{cmd: cmd, limit: limit, window: window}
}

// Allow counts one attempt under key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.login_throttle.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EVAL"),
	)

	windowSeconds := int(math.Ceil(l.window.Seconds()))
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	count, err := l.cmd.Eval(ctx, fixedWindowScript, []string{loginKeyPrefix + key}, windowSeconds).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("login throttle %q: %w", key, err)
	}

	return count <= int64(l.limit), nil
}

// localPruneAt is the bucket count at which LocalLimiter drops full buckets.
const localPruneAt = 4096

// LocalLimiter is an in-process token bucket per key: limit attempts refill
// evenly over window, with a burst of limit.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
	clock    domain.Clock
	pruneAt  int
}

var _ Limiter = (*LocalLimiter)(nil)

// NewLocalLimiter allows limit attempts per key per window. A nil clock uses
// the wall clock.
func NewLocalLimiter(limit int, window time.Duration, clock domain.Clock) *LocalLimiter {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(max(limit, 1))),
		burst:    max(limit, 1),
		clock:    clock,
		pruneAt:  localPruneAt,
	}
}

// Allow takes one token from key's bucket.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock.Now()

	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.pruneAt {
			l.pruneLocked(now)
		}
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(now, 1), nil
}

// Len returns the number of buckets held.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// pruneLocked drops buckets that have refilled; a new bucket starts full, so
// dropping them changes no decision.
func (l *LocalLimiter) pruneLocked(now time.Time) {
	for key, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}
