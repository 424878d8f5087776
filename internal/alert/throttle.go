package alert

import (
	"sync"
	"time"
)

// ThrottleGate remembers when each rule last fired. Checking is free of side
// effects; the caller records a trigger with MarkTriggered once it commits.
type ThrottleGate struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

func NewThrottleGate() *ThrottleGate {
	return &ThrottleGate{last: make(map[string]time.Time)}
}

// IsThrottled reports whether ruleID fired less than throttleMinutes before
// now. A zero throttle never throttles.
func (g *ThrottleGate) IsThrottled(ruleID string, throttleMinutes int, now time.Time) bool {
	if throttleMinutes <= 0 {
		return false
	}

	g.mu.RLock()
	last, ok := g.last[ruleID]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	return now.Sub(last) < time.Duration(throttleMinutes)*time.Minute
}

func (g *ThrottleGate) MarkTriggered(ruleID string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[ruleID] = at
}

// LastTriggered returns the last recorded trigger of ruleID.
func (g *ThrottleGate) LastTriggered(ruleID string) (time.Time, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.last[ruleID]
	return t, ok
}

func (g *ThrottleGate) Forget(ruleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, ruleID)
}
