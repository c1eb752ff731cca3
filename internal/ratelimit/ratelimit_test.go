package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllows(t *testing.T) {
	var l *ResendLimiter
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), "ch_1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	release, err := l.Acquire(context.Background(), "ch_1")
	require.NoError(t, err)
	release(context.Background())
}

func TestBuildResult(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	allowed := buildResult(true, 2.4, now.UnixMilli(), 0.5, 3)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 2, allowed.Remaining)
	assert.Equal(t, 3, allowed.Limit)
	assert.Zero(t, allowed.RetryAfter)

	denied := buildResult(false, 0.5, now.UnixMilli(), 0.5, 3)
	assert.False(t, denied.Allowed)
	assert.Equal(t, time.Second, denied.RetryAfter)
	assert.True(t, denied.ResetTime.Equal(now.Add(time.Second)))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 120*time.Second, defaultBucketTTL(0.05, 3))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
}

func TestScriptReplyCasting(t *testing.T) {
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(7), castToInt("7"))
	assert.InDelta(t, 1.25, castToFloat("1.25"), 1e-9)
	assert.InDelta(t, 3.0, castToFloat(int64(3)), 1e-9)
	assert.Zero(t, castToFloat(nil))
}

func TestKeysTrimButKeepCase(t *testing.T) {
	assert.Equal(t, "donation:resend:ch_1", resendKey(" ch_1 "))
	assert.Equal(t, "donation:resend:lock:ch_1", lockKey("ch_1"))

	// Gateway ids are case-sensitive, so ids differing only in case get separate buckets.
	assert.Equal(t, "donation:resend:ch_3MmlLrLkdIwHu7ix", resendKey("ch_3MmlLrLkdIwHu7ix"))
	assert.NotEqual(t, resendKey("ch_3MmlLrLkdIwHu7ix"), resendKey("ch_3mmllrlkdiwhu7ix"))
	assert.NotEqual(t, lockKey("ch_ABC"), lockKey("ch_abc"))
}

func TestLockerRequiresClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	assert.Nil(t, NewTokenBucket(nil))

	var l *Locker
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}
