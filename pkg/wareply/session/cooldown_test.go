package session

import (
	"sync"
	"testing"
	"time"
)

func TestCooldownKey(t *testing.T) {
	t.Run("direct conversations key on chat only", func(t *testing.T) {
		key := CooldownKey("628111@s.whatsapp.net", "628222", false)
		if key != "628111@s.whatsapp.net" {
			t.Errorf("unexpected key %q", key)
		}
	})

	t.Run("group conversations key on chat and sender", func(t *testing.T) {
		key := CooldownKey("12345@g.us", "628222", true)
		if key != "12345@g.us:628222" {
			t.Errorf("unexpected key %q", key)
		}
	})
}

func TestCooldownAllow(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	t.Run("first send is always allowed", func(t *testing.T) {
		c := NewCooldowns(5 * time.Minute)
		if !c.Allow("k", base) {
			t.Error("expected first send to be allowed")
		}
	})

	t.Run("second send inside window is denied", func(t *testing.T) {
		c := NewCooldowns(5 * time.Minute)
		c.Allow("k", base)
		if c.Allow("k", base.Add(4*time.Minute+59*time.Second)) {
			t.Error("expected send inside window to be denied")
		}
	})

	t.Run("send exactly at window boundary is allowed", func(t *testing.T) {
		c := NewCooldowns(5 * time.Minute)
		c.Allow("k", base)
		if !c.Allow("k", base.Add(5*time.Minute)) {
			t.Error("expected send at window boundary to be allowed")
		}
	})

	t.Run("distinct keys never share a timer", func(t *testing.T) {
		c := NewCooldowns(5 * time.Minute)
		c.Allow("group:alice", base)
		if !c.Allow("group:bob", base) {
			t.Error("expected distinct key to be allowed immediately")
		}
	})

	t.Run("denied send does not refresh the timestamp", func(t *testing.T) {
		c := NewCooldowns(5 * time.Minute)
		c.Allow("k", base)
		c.Allow("k", base.Add(3*time.Minute))
		// If the denied attempt had refreshed the entry, this would still
		// be inside the window.
		if !c.Allow("k", base.Add(5*time.Minute)) {
			t.Error("denied attempt must not extend the window")
		}
	})

	t.Run("concurrent triggers yield exactly one allow", func(t *testing.T) {
		c := NewCooldowns(5 * time.Minute)

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.Allow("k", base) {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if allowed != 1 {
			t.Errorf("expected exactly 1 allowed send, got %d", allowed)
		}
	})
}

func TestCooldownPrune(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	t.Run("drops only expired entries", func(t *testing.T) {
		c := NewCooldowns(5 * time.Minute)
		c.Allow("old", base)
		c.Allow("fresh", base.Add(4*time.Minute))

		removed := c.Prune(base.Add(6 * time.Minute))
		if removed != 1 {
			t.Errorf("expected 1 pruned entry, got %d", removed)
		}
		if c.Len() != 1 {
			t.Errorf("expected 1 live entry, got %d", c.Len())
		}

		// The fresh entry must still gate sends.
		if c.Allow("fresh", base.Add(6*time.Minute)) {
			t.Error("fresh entry must survive pruning")
		}
	})

	t.Run("pruning never re-opens a closed window", func(t *testing.T) {
		c := NewCooldowns(5 * time.Minute)
		c.Allow("k", base)
		c.Prune(base.Add(time.Minute))
		if c.Allow("k", base.Add(2*time.Minute)) {
			t.Error("entry inside window must not be pruned")
		}
	})
}
