// Package ratelimit implements per-user admission control for expensive
// operations. Two thresholds apply independently: a fixed cooldown since the
// user's last accepted request, and a sliding 60-second window cap on
// accepted requests. Denied requests never consume state.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Reason identifies which threshold denied a request.
type Reason string

const (
	// ReasonCooldown means the fixed per-request cooldown has not elapsed.
	ReasonCooldown Reason = "cooldown"
	// ReasonMaxPerMinute means the sliding-window burst cap was hit.
	ReasonMaxPerMinute Reason = "max_per_minute"
)

// burstWindow is the span of the sliding window for the burst cap.
const burstWindow = time.Minute

// inactiveAfter is how long a user may be idle before PurgeInactive drops
// their state.
const inactiveAfter = time.Hour

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Wait    time.Duration // how long until a retry could succeed; zero when allowed
	Reason  Reason        // set only when denied
}

type userState struct {
	lastRequest time.Time
	recent      []time.Time // accepted requests inside the burst window
}

// Limiter tracks per-user admission state. All state lives in memory and is
// guarded by a single lock; check-and-update is one critical section so two
// concurrent requests from the same user cannot both pass inside the
// cooldown.
type Limiter struct {
	mu       sync.Mutex
	users    map[string]*userState
	cooldown time.Duration
	maxBurst int
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Limiter with the given cooldown between requests and cap on
// requests per sliding minute.
func New(cooldown time.Duration, maxPerMinute int, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		users:    make(map[string]*userState),
		cooldown: cooldown,
		maxBurst: maxPerMinute,
		logger:   logger.With("component", "ratelimit"),
		now:      time.Now,
	}
}

// Check decides whether userID may proceed right now. On allow, the user's
// state is updated before the lock is released. On deny, state is left
// untouched and the decision carries the wait time and reason.
func (l *Limiter) Check(userID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.users[userID]
	if !ok {
		state = &userState{}
		l.users[userID] = state
	}

	// Cooldown is checked first, so it wins when both thresholds would deny.
	if !state.lastRequest.IsZero() {
		elapsed := now.Sub(state.lastRequest)
		if elapsed < l.cooldown {
			wait := l.cooldown - elapsed
			l.logger.Debug("Request denied by cooldown", "user_id", userID, "wait", wait)
			return Decision{Wait: wait, Reason: ReasonCooldown}
		}
	}

	recent := trimWindow(state.recent, now)
	if len(recent) >= l.maxBurst {
		wait := recent[0].Add(burstWindow).Sub(now)
		l.logger.Debug("Request denied by burst cap", "user_id", userID, "wait", wait)
		// Keep the trimmed history; dropping stale entries is not
		// user-visible state consumption.
		state.recent = recent
		return Decision{Wait: wait, Reason: ReasonMaxPerMinute}
	}

	state.lastRequest = now
	state.recent = append(recent, now)
	return Decision{Allowed: true}
}

// PurgeInactive drops users whose last accepted request is older than one
// hour. It returns the number of users removed and is intended to run
// periodically to bound memory.
func (l *Limiter) PurgeInactive() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	purged := purge(l.users, l.now())
	removed := len(l.users) - len(purged)
	l.users = purged
	if removed > 0 {
		l.logger.Debug("Purged inactive rate limit entries", "removed", removed)
	}
	return removed
}

// purge returns a new state map without users idle beyond inactiveAfter.
// It is a pure function over its inputs to keep the sweep testable.
func purge(users map[string]*userState, now time.Time) map[string]*userState {
	kept := make(map[string]*userState, len(users))
	for id, state := range users {
		if now.Sub(state.lastRequest) <= inactiveAfter {
			kept[id] = state
		}
	}
	return kept
}

// trimWindow returns the timestamps still inside the sliding burst window,
// oldest first.
func trimWindow(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-burstWindow)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
