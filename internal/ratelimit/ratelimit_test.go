package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var start = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration, time.Time) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingStore) Reset(context.Context, string) error { return errors.New("connection refused") }

func newLoginLimiter(clock *fakeClock) (*Limiter, *MemoryStore) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, map[Class]Policy{
		ClassLogin:    {Limit: 5, Window: time.Minute},
		ClassRegister: {Limit: 3, Window: time.Minute},
	}, clock.Now, nil)
	return limiter, store
}

func TestLimiter_SixthLoginRejected(t *testing.T) {
	clock := &fakeClock{now: start}
	limiter, _ := newLoginLimiter(clock)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if d := limiter.Allow(ctx, ClassLogin, "10.0.0.1"); !d.Allowed {
			t.Fatalf("attempt %d should be admitted", i)
		}
		clock.Advance(time.Second)
	}

	d := limiter.Allow(ctx, ClassLogin, "10.0.0.1")
	if d.Allowed {
		t.Fatalf("sixth attempt within the window must be rejected")
	}
	if d.RetryAfter != time.Minute {
		t.Fatalf("expected retry after one window, got %v", d.RetryAfter)
	}

	if d := limiter.Allow(ctx, ClassLogin, "10.0.0.2"); !d.Allowed {
		t.Fatalf("other clients must not share the window")
	}
	if d := limiter.Allow(ctx, ClassRegister, "10.0.0.1"); !d.Allowed {
		t.Fatalf("other classes must not share the window")
	}
}

func TestLimiter_AdmitsAfterWindowSlides(t *testing.T) {
	clock := &fakeClock{now: start}
	limiter, _ := newLoginLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limiter.Allow(ctx, ClassLogin, "c")
	}
	clock.Advance(59 * time.Second)
	if limiter.Allow(ctx, ClassLogin, "c").Allowed {
		t.Fatalf("window has not elapsed yet")
	}

	// Timestamps exactly one window old are evicted.
	clock.Advance(time.Second)
	if !limiter.Allow(ctx, ClassLogin, "c").Allowed {
		t.Fatalf("expected admission once the window has elapsed")
	}
}

func TestLimiter_RegisterPolicy(t *testing.T) {
	clock := &fakeClock{now: start}
	limiter, _ := newLoginLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !limiter.Allow(ctx, ClassRegister, "c").Allowed {
			t.Fatalf("registration %d should be admitted", i+1)
		}
	}
	if limiter.Allow(ctx, ClassRegister, "c").Allowed {
		t.Fatalf("fourth registration must be rejected")
	}
}

func TestLimiter_ResetClearsWindow(t *testing.T) {
	clock := &fakeClock{now: start}
	limiter, _ := newLoginLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limiter.Allow(ctx, ClassLogin, "c")
	}
	limiter.Reset(ctx, ClassLogin, "c")
	if !limiter.Allow(ctx, ClassLogin, "c").Allowed {
		t.Fatalf("expected admission after reset")
	}
}

func TestLimiter_UnknownClassAndStoreFailure(t *testing.T) {
	limiter := NewLimiter(failingStore{}, map[Class]Policy{ClassLogin: {Limit: 1, Window: time.Minute}}, nil, nil)
	ctx := context.Background()

	if !limiter.Allow(ctx, Class("export"), "c").Allowed {
		t.Fatalf("classes without a policy are not throttled")
	}
	if !limiter.Allow(ctx, ClassLogin, "c").Allowed {
		t.Fatalf("store failures must admit the request")
	}
	limiter.Reset(ctx, ClassLogin, "c")
}

func TestLimiter_ConcurrentAttemptsNeverExceedLimit(t *testing.T) {
	clock := &fakeClock{now: start}
	limiter, _ := newLoginLimiter(clock)

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow(context.Background(), ClassLogin, "shared").Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Fatalf("expected exactly 5 admissions, got %d", admitted)
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.Allow(ctx, "old", 5, time.Minute, start)
	_, _ = store.Allow(ctx, "fresh", 5, time.Minute, start.Add(50*time.Second))

	removed := store.Prune(start.Add(70*time.Second), time.Minute)
	if removed != 1 || store.Len() != 1 {
		t.Fatalf("expected only the idle key to be pruned, removed=%d len=%d", removed, store.Len())
	}
}

func TestThrottle_BurstThenRefill(t *testing.T) {
	throttle := NewThrottle(1, 2)

	if !throttle.Allow("c", start).Allowed || !throttle.Allow("c", start).Allowed {
		t.Fatalf("burst should be admitted")
	}
	d := throttle.Allow("c", start)
	if d.Allowed {
		t.Fatalf("third request in the same instant must be throttled")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Fatalf("unexpected retry delay %v", d.RetryAfter)
	}
	if !throttle.Allow("c", start.Add(time.Second)).Allowed {
		t.Fatalf("a token should be available after one second")
	}
	if !throttle.Allow("other", start).Allowed {
		t.Fatalf("clients must have separate buckets")
	}
}

func TestThrottle_Sweep(t *testing.T) {
	throttle := NewThrottle(10, 10)
	throttle.Allow("idle", start)
	throttle.Allow("busy", start.Add(5*time.Minute))

	if removed := throttle.Sweep(start.Add(6 * time.Minute)); removed != 1 {
		t.Fatalf("expected one idle bucket to be removed, got %d", removed)
	}
}

func TestRunJanitor_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int64
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, time.Millisecond, nil, func(time.Time) { atomic.AddInt64(&calls, 1) })
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatalf("janitor never ran")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not stop")
	}
}
