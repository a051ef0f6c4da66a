package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Class groups endpoints that share one throttling policy.
type Class string

const (
	ClassLogin    Class = "login"
	ClassRegister Class = "register"
)

// Policy admits at most Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Decision is the verdict for one request.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter applies per-class policies over a Store.
type Limiter struct {
	store    Store
	policies map[Class]Policy
	now      func() time.Time
	logger   *zap.Logger
}

// NewLimiter builds a limiter. A nil clock uses time.Now.
func NewLimiter(store Store, policies map[Class]Policy, now func() time.Time, logger *zap.Logger) *Limiter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(map[Class]Policy, len(policies))
	for class, policy := range policies {
		copied[class] = policy
	}
	return &Limiter{store: store, policies: copied, now: now, logger: logger}
}

// Allow records an attempt by client against class. Store failures admit the request.
func (l *Limiter) Allow(ctx context.Context, class Class, client string) Decision {
	policy, ok := l.policies[class]
	if !ok {
		return Decision{Allowed: true}
	}

	allowed, err := l.store.Allow(ctx, key(class, client), policy.Limit, policy.Window, l.now())
	if err != nil {
		l.logger.Warn("rate limit store unavailable, admitting request",
			zap.String("class", string(class)), zap.Error(err))
		return Decision{Allowed: true}
	}
	if !allowed {
		return Decision{Allowed: false, RetryAfter: policy.Window}
	}
	return Decision{Allowed: true}
}

// Reset clears the window of client for class.
func (l *Limiter) Reset(ctx context.Context, class Class, client string) {
	if err := l.store.Reset(ctx, key(class, client)); err != nil {
		l.logger.Warn("rate limit reset failed", zap.String("class", string(class)), zap.Error(err))
	}
}

// MaxWindow returns the longest configured window.
func (l *Limiter) MaxWindow() time.Duration {
	var longest time.Duration
	for _, policy := range l.policies {
		if policy.Window > longest {
			longest = policy.Window
		}
	}
	return longest
}

func key(class Class, client string) string {
	if client == "" {
		client = "unknown"
	}
	return string(class) + ":" + client
}
