// Package ratelimit keeps one token bucket per caller. Mutating API routes
// are limited per user id; buckets idle longer than the TTL are dropped so
// the table does not grow with every caller ever seen.
package ratelimit

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync"
	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an unused bucket is kept.
const DefaultIdleTTL = 10 * time.Minute

const sweepEvery = time.Minute

type bucket struct {
	*rate.Limiter
	touched atomic.Int64 // unix nanos
}

// Limiter is a set of independent token buckets keyed by caller.
type Limiter struct {
	buckets *xsync.MapOf[string, *bucket]
	every   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// PerMinute allows perMinute requests per key on average, with bursts of
// up to burst. Call Stop to end the sweeper.
func PerMinute(perMinute, burst int) *Limiter {
	l := newLimiter(rate.Limit(float64(perMinute)/60), burst, time.Now)
	go l.sweep(sweepEvery)
	return l
}

func newLimiter(every rate.Limit, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		buckets: xsync.NewMapOf[*bucket](),
		every:   every,
		burst:   burst,
		ttl:     DefaultIdleTTL,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Take spends a token for key. When none is left it reports false and how
// long until the next one, rounded up to whole seconds for Retry-After.
func (l *Limiter) Take(key string) (bool, time.Duration) {
	now := l.now()
	b := l.bucket(key, now)

	r := b.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	wait := r.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, time.Duration(math.Ceil(wait.Seconds())) * time.Second
}

// Keys returns the number of live buckets.
func (l *Limiter) Keys() int {
	return l.buckets.Size()
}

func (l *Limiter) bucket(key string, now time.Time) *bucket {
	b, ok := l.buckets.Load(key)
	if !ok {
		b, _ = l.buckets.LoadOrStore(key, &bucket{Limiter: rate.NewLimiter(l.every, l.burst)})
	}
	b.touched.Store(now.UnixNano())
	return b
}

// prune drops buckets untouched since now-ttl. A dropped key starts over
// with a full bucket.
func (l *Limiter) prune(now time.Time) int {
	cutoff := now.Add(-l.ttl).UnixNano()
	n := 0
	l.buckets.Range(func(key string, b *bucket) bool {
		if b.touched.Load() < cutoff {
			l.buckets.Delete(key)
			n++
		}
		return true
	})
	return n
}

// Stop ends the sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.prune(l.now())
		}
	}
}
