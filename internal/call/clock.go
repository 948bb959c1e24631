// AngelaMos | 2026
// clock.go

package call

import (
	"sync"
	"time"
)

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type timerKind string

const (
	timerExpire    timerKind = "expire"
	timerCountdown timerKind = "countdown"
)

// timerSet holds the in-process timers per session. Losing them (restart)
// only delays work the supervisor sweep will pick up.
type timerSet struct {
	mu     sync.Mutex
	clock  Clock
	timers map[string]Timer
}

func newTimerSet(clock Clock) *timerSet {
	return &timerSet{clock: clock, timers: make(map[string]Timer)}
}

func timerKey(sessionID string, kind timerKind) string {
	return sessionID + ":" + string(kind)
}

func (t *timerSet) arm(sessionID string, kind timerKind, d time.Duration, fn func()) {
	key := timerKey(sessionID, kind)

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[key]; ok {
		existing.Stop()
	}

	var timer Timer
	timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.timers[key] == timer {
			delete(t.timers, key)
		}
		t.mu.Unlock()
		fn()
	})
	t.timers[key] = timer
}

func (t *timerSet) stop(sessionID string, kinds ...timerKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, kind := range kinds {
		key := timerKey(sessionID, kind)
		if timer, ok := t.timers[key]; ok {
			timer.Stop()
			delete(t.timers, key)
		}
	}
}

func (t *timerSet) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}

func (t *timerSet) armed(sessionID string, kind timerKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.timers[timerKey(sessionID, kind)]
	return ok
}
