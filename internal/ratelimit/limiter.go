package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/renkioo/renkioo/internal/config"
	"github.com/renkioo/renkioo/internal/metrics"
)

// Bucket names a rate-limit policy grouping. Each bucket tracks its own
// client keys independently.
type Bucket string

const (
	BucketAuth    Bucket = "auth"
	BucketAI      Bucket = "ai"
	BucketGeneral Bucket = "general"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, the value
// clients are told to wait.
func (r Result) RetryAfterSeconds() int {
	return int((r.RetryAfter + time.Second - 1) / time.Second)
}

type entry struct {
	// lock is a per-entry mutex (buffered channel of one) so the
	// check-then-increment below is atomic per client key. Acquisition is
	// bounded; see acquire.
	lock      chan struct{}
	count     int
	resetTime time.Time
}

// Limiter bounds request rates per client key within named buckets, entirely
// in process memory. The store is process-local by construction: running more
// than one instance requires moving these counters to a shared store (e.g. an
// atomic Redis increment), because the per-entry lock only excludes
// goroutines of this process.
type Limiter struct {
	mu      sync.Mutex
	buckets map[Bucket]map[string]*entry

	lockWait   time.Duration
	sweepEvery time.Duration

	started bool
	stopCh  chan struct{}
}

// NewLimiter creates a Limiter with the given lock-wait bound and sweep
// cadence. The sweep does not run until Start is called.
func NewLimiter(lockWait, sweepEvery time.Duration) *Limiter {
	return &Limiter{
		buckets:    make(map[Bucket]map[string]*entry),
		lockWait:   lockWait,
		sweepEvery: sweepEvery,
	}
}

// CheckAndIncrement admits the request if the key has remaining capacity in
// the bucket's current window, incrementing the counter atomically so that
// two concurrent requests cannot both take the last slot.
func (l *Limiter) CheckAndIncrement(bucket Bucket, key string, p config.RateLimitPolicy) Result {
	e := l.entryFor(bucket, key, p.Window)

	acquired := l.acquire(e)
	if acquired {
		defer func() { <-e.lock }()
	}

	// The window may have rolled over while we waited for the lock.
	now := time.Now()
	if !now.Before(e.resetTime) {
		e.count = 0
		e.resetTime = now.Add(p.Window)
	}

	if e.count >= p.Limit {
		return Result{Allowed: false, RetryAfter: e.resetTime.Sub(now)}
	}

	e.count++
	return Result{Allowed: true, Remaining: p.Limit - e.count}
}

func (l *Limiter) entryFor(bucket Bucket, key string, window time.Duration) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.buckets[bucket]
	if m == nil {
		m = make(map[string]*entry)
		l.buckets[bucket] = m
	}
	e := m[key]
	if e == nil {
		e = &entry{
			lock:      make(chan struct{}, 1),
			resetTime: time.Now().Add(window),
		}
		m[key] = e
	}
	return e
}

// acquire takes the entry lock, waiting at most lockWait. On timeout it
// reports false and the caller proceeds without exclusion: availability is
// preferred over strict mutual exclusion, so a wedged holder cannot take the
// whole endpoint down with it.
func (l *Limiter) acquire(e *entry) bool {
	select {
	case e.lock <- struct{}{}:
		return true
	default:
	}

	timer := time.NewTimer(l.lockWait)
	defer timer.Stop()
	select {
	case e.lock <- struct{}{}:
		return true
	case <-timer.C:
		metrics.RateLimitLockTimeoutsTotal.Inc()
		slog.Warn("ratelimit: lock wait expired, proceeding without exclusion")
		return false
	}
}

// Start launches the periodic sweep that evicts expired entries. Calling it
// again while running is a no-op, so there is never more than one sweeper.
func (l *Limiter) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	l.stopCh = make(chan struct{})
	go l.sweepLoop(l.stopCh)
}

// Stop halts the sweep. Safe to call multiple times and before Start.
func (l *Limiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}
	close(l.stopCh)
	l.started = false
}

func (l *Limiter) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-stop:
			return
		}
	}
}

// sweep deletes entries whose window has passed and which are not currently
// locked, bounding memory growth from abandoned client identities. Locked
// entries are left for the next pass.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.buckets {
		for key, e := range m {
			select {
			case e.lock <- struct{}{}:
				if !now.Before(e.resetTime) {
					delete(m, key)
				}
				<-e.lock
			default:
				// in use, skip
			}
		}
	}
}

// size reports the total number of live entries across buckets (test helper).
func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.buckets {
		n += len(m)
	}
	return n
}
