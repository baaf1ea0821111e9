// Package ratelimit keeps one token bucket per API key. A key with limit N
// may make N requests per window, refilled continuously.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim      *rate.Limiter
	limit    int
	lastSeen time.Time
}

// Decision is the outcome of one Allow call. Remaining is -1 for
// unlimited keys.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop chan struct{}
	once sync.Once
}

// New starts a limiter with a background sweep of idle keys; Close stops it.
func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

func (l *Limiter) every(limit int) rate.Limit {
	return rate.Every(l.window / time.Duration(limit))
}

// Allow takes one token from key's bucket. A limit <= 0 is unlimited. A
// changed limit for an existing key is applied without resetting its tokens.
func (l *Limiter) Allow(key string, limit int) Decision {
	if limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	switch {
	case !ok:
		b = &bucket{lim: rate.NewLimiter(l.every(limit), limit), limit: limit}
		l.buckets[key] = b
	case b.limit != limit:
		b.lim.SetLimitAt(now, l.every(limit))
		b.lim.SetBurstAt(now, limit)
		b.limit = limit
	}
	b.lastSeen = now

	r := b.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: delay}
	}
	return Decision{Allowed: true, Remaining: max(int(b.lim.TokensAt(now)), 0)}
}

// Reset forgets key's bucket.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets idle for two windows; they would be full again.
func (l *Limiter) sweep() {
	cutoff := l.now().Add(-2 * l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
