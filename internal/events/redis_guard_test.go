package events

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	g := NewRedisGuard(client, 24*time.Hour, WithPendingWindow(time.Minute))
	ctx := context.Background()
	const sender, id = "whatsapp:+5215550000000", "wamid.ABC"
	key := redisDedupeKey(sender, id)

	dup, err := g.IsDuplicate(ctx, sender, id)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, time.Minute, mr.TTL(key))

	_, err = g.IsDuplicate(ctx, sender, id)
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, g.Confirm(ctx, sender, id))
	assert.Equal(t, 24*time.Hour, mr.TTL(key))
	dup, err = g.IsDuplicate(ctx, sender, id)
	require.NoError(t, err)
	assert.True(t, dup)

	mr.FastForward(25 * time.Hour)
	dup, err = g.IsDuplicate(ctx, sender, id)
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, g.Forget(ctx, sender, id))
	assert.False(t, mr.Exists(key))
}

func TestRedisGuard_UnconfirmedClaimExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	g := NewRedisGuard(client, time.Hour, WithPendingWindow(time.Minute))
	ctx := context.Background()

	_, err := g.IsDuplicate(ctx, "a", "m1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	dup, err := g.IsDuplicate(ctx, "a", "m1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRedisGuard_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	g := NewRedisGuard(client, time.Hour)

	_, err := g.IsDuplicate(context.Background(), "a", "m1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInFlight)
}
