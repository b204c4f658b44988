// Package session – cooldown.go implements the per-conversation auto-reply
// rate limit.
package session

import (
	"sync"
	"time"
)

// Cooldowns tracks the last auto-reply time per conversation key for one
// session. The map is owned by its session and never shared across
// sessions; the mutex exists because the janitor prunes from another
// goroutine.
type Cooldowns struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldowns creates an empty cooldown map with the given window.
func NewCooldowns(window time.Duration) *Cooldowns {
	return &Cooldowns{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// CooldownKey derives the conversation key: per sender within a group,
// per chat for direct conversations. Distinct keys never share a timer.
func CooldownKey(chatID, senderID string, isGroup bool) string {
	if isGroup {
		return chatID + ":" + senderID
	}
	return chatID
}

// Allow reports whether an auto-reply to key may be sent at now, and if
// so records now as the last send time. Marking happens before the send
// is attempted so a slow or failing send cannot re-open the window and
// double-send. The check and the write are one critical section, so two
// concurrent triggers inside one window can never both pass.
func (c *Cooldowns) Allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.last[key]
	if ok && now.Sub(last) < c.window {
		return false
	}
	c.last[key] = now
	return true
}

// Prune drops entries whose window has already expired and returns how
// many were removed. Expired entries would allow a send anyway, so
// dropping them never changes behavior.
func (c *Cooldowns) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, last := range c.last {
		if now.Sub(last) >= c.window {
			delete(c.last, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (c *Cooldowns) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
