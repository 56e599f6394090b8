package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/customeros/mailvault/internal/enum"
)

// Profile is the tunable set for one throttle tracker.
type Profile struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// ProfileFor maps a preset name to its tuning values.
func ProfileFor(preset enum.RateLimitProfile) Profile {
	switch preset {
	case enum.RateLimitConservative:
		return Profile{BaseDelay: 500 * time.Millisecond, MaxDelay: 60 * time.Second, Multiplier: 3.0}
	case enum.RateLimitAggressive:
		return Profile{BaseDelay: 50 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 1.5}
	default:
		return Profile{BaseDelay: 100 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 2.0}
	}
}

// throttleIndicators are the server response fragments that mean "back off".
var throttleIndicators = []string{
	"THROTTLE",
	"OVERQUOTA",
	"TOO MANY",
	"RATE LIMIT",
	"SLOW DOWN",
	"TRY AGAIN LATER",
	"TEMPORARY",
	"BUSY",
}

// IsThrottleIndicator reports whether a server status text asks the client
// to slow down.
func IsThrottleIndicator(text string) bool {
	upper := strings.ToUpper(text)
	for _, indicator := range throttleIndicators {
		if strings.Contains(upper, indicator) {
			return true
		}
	}
	return false
}

// Tracker paces all requests to a single host. Accounts on the same host
// share one tracker, so their submissions serialise through Wait.
type Tracker struct {
	submit chan struct{}

	mu                   sync.Mutex
	profile              Profile
	delay                time.Duration
	consecutiveThrottles int
	lastRequest          time.Time
}

func NewTracker(profile Profile) *Tracker {
	if profile.BaseDelay <= 0 {
		profile = ProfileFor(enum.RateLimitBalanced)
	}
	return &Tracker{
		submit:  make(chan struct{}, 1),
		profile: profile,
		delay:   profile.BaseDelay,
	}
}

// Wait blocks until the inter-request interval since the previous submission
// has elapsed, then claims the submission slot. Exactly one caller proceeds
// per interval.
func (t *Tracker) Wait(ctx context.Context) error {
	select {
	case t.submit <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.submit }()

	t.mu.Lock()
	target := t.lastRequest.Add(t.delay)
	t.mu.Unlock()

	if wait := time.Until(target); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.mu.Lock()
	t.lastRequest = time.Now()
	t.mu.Unlock()
	return nil
}

// RecordThrottle raises the effective delay after a server throttle
// response.
func (t *Tracker) RecordThrottle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	raised := time.Duration(float64(t.delay) * t.profile.Multiplier)
	if raised > t.profile.MaxDelay {
		raised = t.profile.MaxDelay
	}
	t.delay = raised
	t.consecutiveThrottles++
}

// RecordSuccess decays the effective delay. While recovering from a throttle
// streak only the streak counter shrinks; once clear, the delay itself decays
// towards the base.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consecutiveThrottles > 0 {
		t.consecutiveThrottles--
		return
	}
	decayed := time.Duration(float64(t.delay) * 0.9)
	if decayed < t.profile.BaseDelay {
		decayed = t.profile.BaseDelay
	}
	t.delay = decayed
}

// Delay returns the current effective inter-request delay.
func (t *Tracker) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// ConsecutiveThrottles returns the current throttle streak length.
func (t *Tracker) ConsecutiveThrottles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutiveThrottles
}

// Coordinator hands out one shared tracker per hostname.
type Coordinator struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewCoordinator() *Coordinator {
	return &Coordinator{trackers: make(map[string]*Tracker)}
}

// TrackerFor returns the tracker for a host, creating it with the given
// profile on first use. The first account to reach a host fixes the
// tracker's tuning.
func (c *Coordinator) TrackerFor(host string, profile Profile) *Tracker {
	key := strings.ToLower(host)
	c.mu.Lock()
	defer c.mu.Unlock()
	if tracker, ok := c.trackers[key]; ok {
		return tracker
	}
	tracker := NewTracker(profile)
	c.trackers[key] = tracker
	return tracker
}
