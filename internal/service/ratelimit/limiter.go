package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter keeps one token bucket per key: each key may spend up to burst
// tokens at once and regains rate tokens per second.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*entry
	rate    rate.Limit
	burst   int
	now     func() time.Time
	lastGC  time.Time
	idleTTL time.Duration
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(r float64, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		m:       make(map[string]*entry),
		rate:    rate.Limit(r),
		burst:   burst,
		now:     time.Now,
		idleTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.burst < 1 {
		l.burst = 1
	}
	l.lastGC = l.now()
	return l
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.gc(now)

	e, ok := l.m[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1)
}

// gc forgets keys idle long enough to have refilled completely.
func (l *Limiter) gc(now time.Time) {
	if now.Sub(l.lastGC) < l.idleTTL {
		return
	}
	l.lastGC = now
	for k, e := range l.m {
		if now.Sub(e.seen) >= l.idleTTL {
			delete(l.m, k)
		}
	}
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
