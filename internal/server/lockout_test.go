package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountLockout(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	al := newAccountLockout(3, 15*time.Minute, 10*time.Minute)
	al.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		locked, _ := al.recordFailure("alice")
		assert.False(t, locked)
	}
	locked, _ := al.isLocked("alice")
	assert.False(t, locked)

	locked, until := al.recordFailure("alice")
	assert.True(t, locked)
	assert.Equal(t, now.Add(15*time.Minute), until)

	locked, _ = al.isLocked("alice")
	assert.True(t, locked)
	locked, _ = al.isLocked("bob")
	assert.False(t, locked)

	now = now.Add(16 * time.Minute)
	locked, _ = al.isLocked("alice")
	assert.False(t, locked)
}

func TestAccountLockout_WindowAndReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	al := newAccountLockout(2, time.Minute, time.Minute)
	al.now = func() time.Time { return now }

	al.recordFailure("alice")
	now = now.Add(2 * time.Minute)
	locked, _ := al.recordFailure("alice")
	assert.False(t, locked, "failures outside the window start a new count")

	al.recordSuccess("alice")
	locked, _ = al.recordFailure("alice")
	assert.False(t, locked, "success clears the count")
}
