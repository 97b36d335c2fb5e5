package auth

import (
	"sync"
	"time"
)

// Cooldown rate limits an action per key.
type Cooldown interface {
	// Allow reports whether key may act now, and if so starts its window.
	Allow(key string) bool
}

// MemoryCooldown keeps the last accepted time per key in process memory.
type MemoryCooldown struct {
	Window time.Duration
	Now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewMemoryCooldown(window time.Duration) *MemoryCooldown {
	return &MemoryCooldown{Window: window, Now: time.Now, last: make(map[string]time.Time)}
}

func (c *MemoryCooldown) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	if at, ok := c.last[key]; ok && now.Sub(at) < c.Window {
		return false
	}
	c.last[key] = now
	if len(c.last) > 4096 {
		c.sweep(now)
	}
	return true
}

// Reset forgets every key.
func (c *MemoryCooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]time.Time)
}

func (c *MemoryCooldown) sweep(now time.Time) {
	for k, at := range c.last {
		if now.Sub(at) >= c.Window {
			delete(c.last, k)
		}
	}
}
