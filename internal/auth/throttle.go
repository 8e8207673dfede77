package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle rate-limits authentication attempts per user, so a scripted
// brute-force of the password prompt is slowed rather than silently
// retried forever. Mirrors the per-peer limiter/backoff shape used for
// connection rate limiting elsewhere in this stack, keyed by username
// instead of by peer address.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter

	burst           int
	every           time.Duration
	lockoutAfter    int
	lockoutDuration time.Duration
}

type userLimiter struct {
	limiter      *rate.Limiter
	failures     int
	lockedUntil  time.Time
	lastAttempt  time.Time
}

const (
	defaultBurst           = 3
	defaultEvery           = 10 * time.Second
	defaultLockoutAfter    = 5
	defaultLockoutDuration = 5 * time.Minute
)

// NewThrottle builds a Throttle with the package defaults: burst of 3
// attempts, one refill per 10s, lockout after 5 consecutive failures for
// 5 minutes.
func NewThrottle() *Throttle {
	return &Throttle{
		limiters:        make(map[string]*userLimiter),
		burst:           defaultBurst,
		every:           defaultEvery,
		lockoutAfter:    defaultLockoutAfter,
		lockoutDuration: defaultLockoutDuration,
	}
}

func (t *Throttle) entry(user string) *userLimiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.limiters[user]
	if !ok {
		e = &userLimiter{limiter: rate.NewLimiter(rate.Every(t.every), t.burst)}
		t.limiters[user] = e
	}
	return e
}

// Check reports whether user is currently locked out (too many recent
// failures) or rate-limited. The wait is the remaining lockout, or the
// limiter's refill interval when rate-limited.
func (t *Throttle) Check(user string) (wait time.Duration, blocked bool) {
	e := t.entry(user)
	t.mu.Lock()
	defer t.mu.Unlock()

	if now := time.Now(); e.lockedUntil.After(now) {
		return e.lockedUntil.Sub(now), true
	}
	if !e.limiter.Allow() {
		return t.every, true
	}
	return 0, false
}

// RecordFailure increments the failure count for user and, once it
// crosses lockoutAfter, locks the user out for lockoutDuration.
func (t *Throttle) RecordFailure(user string) {
	e := t.entry(user)
	t.mu.Lock()
	defer t.mu.Unlock()
	e.failures++
	e.lastAttempt = time.Now()
	if e.failures >= t.lockoutAfter {
		e.lockedUntil = time.Now().Add(t.lockoutDuration)
	}
}

// RecordSuccess clears the failure count for user, so a correct password
// immediately lifts any partial backoff.
func (t *Throttle) RecordSuccess(user string) {
	e := t.entry(user)
	t.mu.Lock()
	defer t.mu.Unlock()
	e.failures = 0
	e.lockedUntil = time.Time{}
}
