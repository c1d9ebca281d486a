package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renkioo/renkioo/internal/config"
)

func testLimiter() *Limiter {
	return NewLimiter(100*time.Millisecond, 5*time.Minute)
}

func TestCheckAndIncrement_RemainingDecreases(t *testing.T) {
	l := testLimiter()
	p := config.RateLimitPolicy{Limit: 3, Window: time.Minute}

	for want := 2; want >= 0; want-- {
		res := l.CheckAndIncrement(BucketGeneral, "1.2.3.4:ua10", p)
		require.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
	}
}

func TestCheckAndIncrement_RejectsOverLimit(t *testing.T) {
	l := testLimiter()
	p := config.RateLimitPolicy{Limit: 2, Window: time.Minute}

	require.True(t, l.CheckAndIncrement(BucketAuth, "k", p).Allowed)
	require.True(t, l.CheckAndIncrement(BucketAuth, "k", p).Allowed)

	res := l.CheckAndIncrement(BucketAuth, "k", p)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
	assert.GreaterOrEqual(t, res.RetryAfterSeconds(), 1)
}

func TestCheckAndIncrement_WindowExpiryStartsFresh(t *testing.T) {
	l := testLimiter()
	p := config.RateLimitPolicy{Limit: 1, Window: 20 * time.Millisecond}

	require.True(t, l.CheckAndIncrement(BucketAI, "k", p).Allowed)
	require.False(t, l.CheckAndIncrement(BucketAI, "k", p).Allowed)

	time.Sleep(30 * time.Millisecond)

	res := l.CheckAndIncrement(BucketAI, "k", p)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestCheckAndIncrement_IndependentKeysAndBuckets(t *testing.T) {
	l := testLimiter()
	p := config.RateLimitPolicy{Limit: 1, Window: time.Minute}

	require.True(t, l.CheckAndIncrement(BucketAuth, "a", p).Allowed)
	require.False(t, l.CheckAndIncrement(BucketAuth, "a", p).Allowed)

	// Different key, same bucket
	assert.True(t, l.CheckAndIncrement(BucketAuth, "b", p).Allowed)

	// Same key, different bucket
	assert.True(t, l.CheckAndIncrement(BucketGeneral, "a", p).Allowed)
}

func TestCheckAndIncrement_ConcurrentRequestsAdmitExactlyLimit(t *testing.T) {
	l := testLimiter()
	const limit = 10
	p := config.RateLimitPolicy{Limit: limit, Window: time.Minute}

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < limit*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndIncrement(BucketAI, "shared", p).Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	l := testLimiter()
	short := config.RateLimitPolicy{Limit: 5, Window: 10 * time.Millisecond}
	long := config.RateLimitPolicy{Limit: 5, Window: time.Hour}

	l.CheckAndIncrement(BucketGeneral, "stale", short)
	l.CheckAndIncrement(BucketGeneral, "live", long)
	require.Equal(t, 2, l.size())

	time.Sleep(20 * time.Millisecond)
	l.sweep(time.Now())

	assert.Equal(t, 1, l.size())

	// The evicted key starts a fresh window on its next request
	res := l.CheckAndIncrement(BucketGeneral, "stale", short)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestSweep_SkipsLockedEntries(t *testing.T) {
	l := testLimiter()
	p := config.RateLimitPolicy{Limit: 5, Window: 10 * time.Millisecond}

	l.CheckAndIncrement(BucketGeneral, "held", p)
	time.Sleep(20 * time.Millisecond)

	// Hold the entry lock to simulate a request in flight
	e := l.entryFor(BucketGeneral, "held", p.Window)
	e.lock <- struct{}{}

	l.sweep(time.Now())
	assert.Equal(t, 1, l.size(), "locked entry must survive the sweep")

	<-e.lock
	l.sweep(time.Now())
	assert.Equal(t, 0, l.size())
}

func TestStartStop_Idempotent(t *testing.T) {
	l := NewLimiter(100*time.Millisecond, 10*time.Millisecond)

	l.Start()
	l.Start()
	l.Stop()
	l.Stop()

	// Restart after stop works
	l.Start()
	l.Stop()
}

func TestAcquire_TimeoutProceedsWithoutExclusion(t *testing.T) {
	l := NewLimiter(10*time.Millisecond, time.Minute)
	p := config.RateLimitPolicy{Limit: 5, Window: time.Minute}

	e := l.entryFor(BucketAI, "wedged", p.Window)
	e.lock <- struct{}{}
	defer func() { <-e.lock }()

	// The lock is never released, yet the check still completes
	done := make(chan Result, 1)
	go func() {
		done <- l.CheckAndIncrement(BucketAI, "wedged", p)
	}()

	select {
	case res := <-done:
		assert.True(t, res.Allowed)
	case <-time.After(time.Second):
		t.Fatal("CheckAndIncrement blocked past the lock-wait bound")
	}
}
