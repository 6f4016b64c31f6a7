package notify

import (
	"sync"
	"time"
)

// cooldown suppresses repeats of the same alert inside a window, so a
// position that fails every rebuild pages once rather than every cycle.
type cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newCooldown(window time.Duration) *cooldown {
	return &cooldown{window: window, last: map[string]time.Time{}, now: time.Now}
}

// recent reports whether key fired within the window and, if it did not,
// records it as firing now. Expired keys are pruned as a side effect.
func (c *cooldown) recent(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if at, ok := c.last[key]; ok && now.Sub(at) < c.window {
		return true
	}
	for k, at := range c.last {
		if now.Sub(at) >= c.window {
			delete(c.last, k)
		}
	}
	c.last[key] = now
	return false
}
