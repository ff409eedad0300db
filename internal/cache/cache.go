package cache

import (
	"sync"
	"time"
)

// CooldownKind identifies which per-player rate limit is being checked.
type CooldownKind int

const (
	CooldownMovement CooldownKind = iota
	CooldownWarDeclaration
	CooldownPushStart
)

// CooldownCache tracks the most recent rate-limited action per player.
// Cooldowns are evaluated lazily on the next attempted action; nothing
// expires in the background. Latency here is critical since every mutating
// request checks a cooldown before touching game state.
type CooldownCache struct {
	m    sync.Mutex
	last map[CooldownKind]map[string]time.Time
}

func NewCooldownCache() *CooldownCache {
	return &CooldownCache{
		last: map[CooldownKind]map[string]time.Time{
			CooldownMovement:       make(map[string]time.Time),
			CooldownWarDeclaration: make(map[string]time.Time),
			CooldownPushStart:      make(map[string]time.Time),
		},
	}
}

// Remaining returns how much of the window is left for the player's next
// allowed action. Zero means the action may proceed now.
func (c *CooldownCache) Remaining(kind CooldownKind, playerID string, window time.Duration, now time.Time) time.Duration {
	c.m.Lock()
	defer c.m.Unlock()
	at, ok := c.last[kind][playerID]
	if !ok {
		return 0
	}
	elapsed := now.Sub(at)
	if elapsed >= window {
		return 0
	}
	return window - elapsed
}

// Mark records that the player performed the rate-limited action at t.
func (c *CooldownCache) Mark(kind CooldownKind, playerID string, t time.Time) {
	c.m.Lock()
	defer c.m.Unlock()
	c.last[kind][playerID] = t
}

// Reset clears all tracked cooldowns.
func (c *CooldownCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	for kind := range c.last {
		c.last[kind] = make(map[string]time.Time)
	}
}
