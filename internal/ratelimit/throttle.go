package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultBucketIdle = 5 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Throttle is a per-client token bucket for general traffic.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	idle    time.Duration
}

// NewThrottle allows rps sustained requests per client with the given burst.
func NewThrottle(rps float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    defaultBucketIdle,
	}
}

// Allow takes one token for client at now. A rejection carries the wait until the next token.
func (t *Throttle) Allow(client string, now time.Time) Decision {
	t.mu.Lock()
	b, ok := t.buckets[client]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[client] = b
	}
	b.seen = now
	t.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Second}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}
	}
	return Decision{Allowed: true}
}

// Sweep drops buckets idle for longer than the idle period.
func (t *Throttle) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for client, b := range t.buckets {
		if now.Sub(b.seen) > t.idle {
			delete(t.buckets, client)
			removed++
		}
	}
	return removed
}

// RunJanitor calls every task on each tick until ctx is done.
func RunJanitor(ctx context.Context, every time.Duration, now func() time.Time, tasks ...func(time.Time)) {
	if every <= 0 || len(tasks) == 0 {
		return
	}
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			at := now()
			for _, task := range tasks {
				task(at)
			}
		}
	}
}
