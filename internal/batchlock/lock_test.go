package batchlock

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "ifxbilling:generate:42:2024-03", GenerateKey(snowflake.ID(42), start))
}

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker(clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	token, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.TryLock(ctx, "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerReleaseNeedsToken(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker(clock.NewFakeClock(time.Now()))

	token, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "k", "not-the-token"))
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "k", token))
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	l := NewLocalLocker(fake)

	_, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	fake.Advance(2 * time.Minute)
	_, ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockArgs(t *testing.T) {
	l := NewLocalLocker(nil)
	_, _, err := l.TryLock(context.Background(), " ", time.Minute)
	assert.Error(t, err)
	_, _, err = l.TryLock(context.Background(), "k", 0)
	assert.Error(t, err)

	var r *RedisLocker
	_, _, err = r.TryLock(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.NoError(t, r.Release(context.Background(), "k", "t"))
}
