package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard_ReplayIsDuplicate(t *testing.T) {
	g := NewMemoryGuard(time.Hour)
	ctx := context.Background()

	dup, err := g.IsDuplicate(ctx, "+15550001111", "wamid.1")
	require.NoError(t, err)
	assert.False(t, dup)

	_, err = g.IsDuplicate(ctx, "+15550001111", "wamid.1")
	assert.ErrorIs(t, err, ErrInFlight, "unconfirmed claim blocks redelivery without dropping it")

	require.NoError(t, g.Confirm(ctx, "+15550001111", "wamid.1"))
	for i := 0; i < 5; i++ {
		dup, err = g.IsDuplicate(ctx, "+15550001111", "wamid.1")
		require.NoError(t, err)
		assert.True(t, dup)
	}

	dup, _ = g.IsDuplicate(ctx, "+15550002222", "wamid.1")
	assert.False(t, dup, "same id from another sender is distinct")
}

func TestMemoryGuard_UnconfirmedClaimExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewMemoryGuard(time.Hour, WithPendingWindow(time.Minute))
	g.now = func() time.Time { return now }
	ctx := context.Background()

	dup, err := g.IsDuplicate(ctx, "a", "m1")
	require.NoError(t, err)
	assert.False(t, dup)

	// The first delivery died before confirming; the redelivery is applied.
	now = now.Add(2 * time.Minute)
	dup, err = g.IsDuplicate(ctx, "a", "m1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestMemoryGuard_ExpiryAndForget(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewMemoryGuard(time.Minute)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = g.IsDuplicate(ctx, "a", "m1")
	require.NoError(t, g.Confirm(ctx, "a", "m1"))
	now = now.Add(2 * time.Minute)
	dup, err := g.IsDuplicate(ctx, "a", "m1")
	require.NoError(t, err)
	assert.False(t, dup, "entry should expire after the window")

	require.NoError(t, g.Forget(ctx, "a", "m1"))
	dup, err = g.IsDuplicate(ctx, "a", "m1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestApplyGuardOptions_PendingCappedByWindow(t *testing.T) {
	assert.Equal(t, DefaultPendingWindow, applyGuardOptions(time.Hour, nil).pending)
	assert.Equal(t, 30*time.Second, applyGuardOptions(time.Hour, []GuardOption{WithPendingWindow(30 * time.Second)}).pending)
	assert.Equal(t, time.Minute, applyGuardOptions(time.Minute, []GuardOption{WithPendingWindow(time.Hour)}).pending)
}

func TestMemoryGuard_RequiresIdentifiers(t *testing.T) {
	g := NewMemoryGuard(0)
	_, err := g.IsDuplicate(context.Background(), "", "m1")
	assert.Error(t, err)
	_, err = g.IsDuplicate(context.Background(), "a", " ")
	assert.Error(t, err)
}
