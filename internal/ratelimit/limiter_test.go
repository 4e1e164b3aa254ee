package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cooldown time.Duration, maxPerMinute int) (*Limiter, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(cooldown, maxPerMinute, nil)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCooldownDeniesEarlyRequests(t *testing.T) {
	l, now := newTestLimiter(t, 10*time.Second, 6)
	start := *now

	d := l.Check("alice")
	require.True(t, d.Allowed)

	for sec := 1; sec <= 9; sec++ {
		*now = start.Add(time.Duration(sec) * time.Second)
		d := l.Check("alice")
		assert.False(t, d.Allowed, "t=%ds should be denied", sec)
		assert.Equal(t, ReasonCooldown, d.Reason)
		assert.Equal(t, time.Duration(10-sec)*time.Second, d.Wait)
	}

	*now = start.Add(10 * time.Second)
	assert.True(t, l.Check("alice").Allowed)
}

func TestBurstCapDeniesSeventhRequest(t *testing.T) {
	l, now := newTestLimiter(t, time.Second, 6)
	start := *now

	for i := 0; i < 6; i++ {
		*now = start.Add(time.Duration(i) * 2 * time.Second)
		require.True(t, l.Check("bob").Allowed, "request %d should pass", i+1)
	}

	*now = start.Add(12 * time.Second)
	d := l.Check("bob")
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonMaxPerMinute, d.Reason)
	// Oldest of the six was at t=0, so the window frees up at t=60.
	assert.Equal(t, 48*time.Second, d.Wait)
}

func TestBurstWindowSlides(t *testing.T) {
	l, now := newTestLimiter(t, time.Second, 6)
	start := *now

	for i := 0; i < 6; i++ {
		*now = start.Add(time.Duration(i) * 2 * time.Second)
		require.True(t, l.Check("bob").Allowed)
	}

	// After the oldest entry leaves the window, admission resumes.
	*now = start.Add(61 * time.Second)
	assert.True(t, l.Check("bob").Allowed)
}

func TestDenyDoesNotConsumeState(t *testing.T) {
	l, now := newTestLimiter(t, 10*time.Second, 6)
	start := *now

	require.True(t, l.Check("carol").Allowed)

	// Repeated denials must not reset the cooldown anchor.
	*now = start.Add(5 * time.Second)
	require.False(t, l.Check("carol").Allowed)
	*now = start.Add(9 * time.Second)
	require.False(t, l.Check("carol").Allowed)

	*now = start.Add(10 * time.Second)
	assert.True(t, l.Check("carol").Allowed)
}

func TestUsersAreIndependent(t *testing.T) {
	l, now := newTestLimiter(t, 10*time.Second, 6)
	start := *now

	require.True(t, l.Check("alice").Allowed)
	require.True(t, l.Check("bob").Allowed)

	*now = start.Add(time.Second)
	assert.False(t, l.Check("alice").Allowed)
	assert.False(t, l.Check("bob").Allowed)
}

func TestPurgeInactive(t *testing.T) {
	l, now := newTestLimiter(t, time.Second, 6)
	start := *now

	require.True(t, l.Check("old").Allowed)
	*now = start.Add(30 * time.Minute)
	require.True(t, l.Check("fresh").Allowed)

	*now = start.Add(61 * time.Minute)
	removed := l.PurgeInactive()
	assert.Equal(t, 1, removed)

	l.mu.Lock()
	_, oldKept := l.users["old"]
	_, freshKept := l.users["fresh"]
	l.mu.Unlock()
	assert.False(t, oldKept)
	assert.True(t, freshKept)
}

func TestPurgeIsPure(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	users := map[string]*userState{
		"stale": {lastRequest: now.Add(-2 * time.Hour)},
		"live":  {lastRequest: now.Add(-time.Minute)},
	}

	kept := purge(users, now)
	assert.Len(t, kept, 1)
	assert.Contains(t, kept, "live")
	// Input map is untouched.
	assert.Len(t, users, 2)
}

func TestConcurrentChecksSerialized(t *testing.T) {
	l, _ := newTestLimiter(t, 10*time.Second, 6)

	var wg sync.WaitGroup
	allowed := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Check("dave").Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	// With a frozen clock only one request can ever be inside the cooldown.
	assert.Equal(t, 1, count)
}
