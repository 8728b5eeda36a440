package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// claimScript returns the state of an existing claim, or stores a pending
// one and returns "".
var claimScript = redis.NewScript(`
local state = redis.call("GET", KEYS[1])
if state then
	return state
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return ""
`)

// RedisGuard stores one expiring key per (sender, message id) holding the
// claim state.
type RedisGuard struct {
	redis   *redis.Client
	window  time.Duration
	pending time.Duration
	tracer  trace.Tracer
}

var _ Guard = (*RedisGuard)(nil)

func NewRedisGuard(client *redis.Client, window time.Duration, opts ...GuardOption) *RedisGuard {
	if client == nil {
		panic("events: redis client cannot be nil")
	}
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	o := applyGuardOptions(window, opts)
	return &RedisGuard{
		redis:   client,
		window:  window,
		pending: o.pending,
		tracer:  otel.Tracer("leadqual.internal.events.guard"),
	}
}

func (g *RedisGuard) IsDuplicate(ctx context.Context, sender, messageID string) (bool, error) {
	if err := validate(sender, messageID); err != nil {
		return false, err
	}
	ctx, span := g.tracer.Start(ctx, "events.redis_guard.is_duplicate",
		trace.WithAttributes(attribute.String("sender", sender)))
	defer span.End()

	state, err := claimScript.Run(ctx, g.redis, []string{redisDedupeKey(sender, messageID)},
		statePending, g.pending.Milliseconds()).Text()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("events: mark message: %w", err)
	}
	if state == "" {
		return false, nil
	}
	span.SetAttributes(attribute.String("claim_state", state))
	return claimResult(state)
}

func (g *RedisGuard) Confirm(ctx context.Context, sender, messageID string) error {
	if err := g.redis.Set(ctx, redisDedupeKey(sender, messageID), stateDone, g.window).Err(); err != nil {
		return fmt.Errorf("events: confirm message: %w", err)
	}
	return nil
}

func (g *RedisGuard) Forget(ctx context.Context, sender, messageID string) error {
	if err := g.redis.Del(ctx, redisDedupeKey(sender, messageID)).Err(); err != nil {
		return fmt.Errorf("events: forget message: %w", err)
	}
	return nil
}

func redisDedupeKey(sender, messageID string) string {
	return "leadqual:dedupe:" + dedupeKey(sender, messageID)
}
