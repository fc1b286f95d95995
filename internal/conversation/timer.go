package conversation

import (
	"sync"
	"time"
)

// DefaultWindowDelay is the inactivity period after which an idle window is
// automatically dispatched for moderation. Every new message in the channel
// restarts the clock, so continuous chatter postpones moderation until a
// quiet period occurs.
const DefaultWindowDelay = 180 * time.Second

// Scheduler manages one cancellable debounce timer per channel. At most one
// timer is pending per key; Reset replaces any previous one.
type Scheduler struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[string]*time.Timer
}

// NewScheduler creates a Scheduler firing after the given inactivity delay.
func NewScheduler(delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultWindowDelay
	}
	return &Scheduler{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Reset cancels any pending timer for the key and schedules fire to run
// after the inactivity delay. The callback runs on its own goroutine. A
// callback that lost the race to a Reset or Cancel in flight abandons
// without firing, so a replaced timer never produces a stale dispatch.
func (s *Scheduler) Reset(key string, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		cur, ok := s.timers[key]
		if !ok || cur != t {
			// Superseded by a later Reset or removed by Cancel.
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		fire()
	})
	s.timers[key] = t
}

// Cancel removes the pending timer for the key, if any. Returns true if a
// timer was cancelled before firing. Called when a manual trigger drains the
// window first, so the stale timer cannot double-dispatch.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	return t.Stop()
}

// Stop cancels every pending timer. Used on service shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
