package auth

import (
	"time"
)

// Default lockout parameters.
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// FailureState is the persisted pair of lockout counters on an account.
type FailureState struct {
	Attempts     int
	LockoutUntil *time.Time
}

// LockoutPolicy decides whether an account is locked and how its counters
// move after a password check. It holds no state.
type LockoutPolicy struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// DefaultLockoutPolicy returns 5 attempts / 15 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailedAttempts: DefaultMaxFailedAttempts,
		Duration:          DefaultLockoutDuration,
	}
}

// NewLockoutPolicy returns a policy with the given threshold and duration.
// Non-positive values fall back to the defaults.
func NewLockoutPolicy(maxAttempts int, duration time.Duration) LockoutPolicy {
	p := DefaultLockoutPolicy()
	if maxAttempts > 0 {
		p.MaxFailedAttempts = maxAttempts
	}
	if duration > 0 {
		p.Duration = duration
	}
	return p
}

// Check reports whether lockoutUntil is still in the future and, if so, how
// many whole minutes remain (rounded up). A lockout that has expired
// naturally is not locked even if the attempt counter is still high.
func (p LockoutPolicy) Check(lockoutUntil *time.Time, now time.Time) (locked bool, remainingMinutes int) {
	if lockoutUntil == nil || !lockoutUntil.After(now) {
		return false, 0
	}
	return true, ceilMinutes(lockoutUntil.Sub(now))
}

// OnFailure returns the counters after a failed password check. Reaching
// MaxFailedAttempts starts a lockout window from now.
func (p LockoutPolicy) OnFailure(attempts int, now time.Time) FailureState {
	next := FailureState{Attempts: attempts + 1}
	if next.Attempts >= p.MaxFailedAttempts {
		until := now.Add(p.Duration)
		next.LockoutUntil = &until
	}
	return next
}

// OnSuccess returns the counters after a successful password check.
func (p LockoutPolicy) OnSuccess() FailureState {
	return FailureState{}
}

// Locks reports whether s represents a freshly started lockout.
func (s FailureState) Locks() bool {
	return s.LockoutUntil != nil
}

// DurationMinutes is the lockout window in whole minutes, rounded up.
func (p LockoutPolicy) DurationMinutes() int {
	return ceilMinutes(p.Duration)
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
