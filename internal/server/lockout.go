// lockout.go - Account lockout mechanism to prevent brute-force attacks
package server

import (
	"sync"
	"time"

	"github.com/bluele/gcache"
)

const maxTrackedAccounts = 10000

// loginAttempt tracks failed login attempts for an account
type loginAttempt struct {
	mu          sync.Mutex
	count       int
	lastAttempt time.Time
	lockedUntil time.Time
}

// accountLockout locks a username after maxAttempts failures within window.
// Entries expire from the LRU once neither locked nor recently attempted.
type accountLockout struct {
	mu              sync.Mutex   // serializes get-or-create on attempts
	attempts        gcache.Cache // username -> *loginAttempt
	maxAttempts     int
	lockoutDuration time.Duration
	window          time.Duration
	now             func() time.Time
}

// newAccountLockout creates a lockout manager
// maxAttempts: number of failed attempts before lockout (e.g., 5)
// lockoutDuration: how long to lock the account (e.g., 15 minutes)
// window: time window to count attempts (e.g., 10 minutes)
func newAccountLockout(maxAttempts int, lockoutDuration, window time.Duration) *accountLockout {
	return &accountLockout{
		attempts:        gcache.New(maxTrackedAccounts).LRU().Build(),
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		window:          window,
		now:             time.Now,
	}
}

func (al *accountLockout) ttl() time.Duration {
	if al.lockoutDuration > al.window {
		return 2 * al.lockoutDuration
	}
	return 2 * al.window
}

// recordFailure counts a failed attempt and reports whether the account is
// now locked.
func (al *accountLockout) recordFailure(username string) (locked bool, until time.Time) {
	al.mu.Lock()
	var a *loginAttempt
	if raw, err := al.attempts.Get(username); err == nil {
		a = raw.(*loginAttempt)
	} else {
		a = &loginAttempt{}
	}
	_ = al.attempts.SetWithExpire(username, a, al.ttl())
	al.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	now := al.now()
	// Reset count if outside window
	if now.Sub(a.lastAttempt) > al.window {
		a.count = 0
	}
	a.count++
	a.lastAttempt = now

	if a.count >= al.maxAttempts {
		a.lockedUntil = now.Add(al.lockoutDuration)
		return true, a.lockedUntil
	}
	return false, time.Time{}
}

// recordSuccess resets failed attempts for a username
func (al *accountLockout) recordSuccess(username string) {
	al.attempts.Remove(username)
}

// isLocked reports whether username is currently locked and until when.
func (al *accountLockout) isLocked(username string) (bool, time.Time) {
	raw, err := al.attempts.Get(username)
	if err != nil {
		return false, time.Time{}
	}
	a := raw.(*loginAttempt)
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.lockedUntil.IsZero() && al.now().Before(a.lockedUntil) {
		return true, a.lockedUntil
	}
	return false, time.Time{}
}
