package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/wareply/pkg/wareply/transport"
)

func TestDiscoverSessions(t *testing.T) {
	t.Run("finds prefixed directories only", func(t *testing.T) {
		root := t.TempDir()
		for _, dir := range []string{"auth_info_main", "auth_info_backup", "media"} {
			if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		// A prefixed plain file must not count as a session.
		if err := os.WriteFile(filepath.Join(root, "auth_info_stray"), nil, 0o644); err != nil {
			t.Fatal(err)
		}

		names, err := DiscoverSessions(root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 2 || names[0] != "auth_info_backup" || names[1] != "auth_info_main" {
			t.Errorf("unexpected identities %v", names)
		}
	})

	t.Run("unreadable root yields discovery error", func(t *testing.T) {
		_, err := DiscoverSessions(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, ErrDiscovery) {
			t.Errorf("expected ErrDiscovery, got %v", err)
		}
	})

	t.Run("empty root yields no identities", func(t *testing.T) {
		names, err := DiscoverSessions(t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 0 {
			t.Errorf("expected no identities, got %v", names)
		}
	})
}

// scriptedFactory hands out pre-loaded fake clients in order and keeps
// re-using the last script when restarts outrun it.
type scriptedFactory struct {
	mu      sync.Mutex
	scripts [][]transport.Event
	clients []*fakeClient
}

func (f *scriptedFactory) new(_ string, _ *slog.Logger) transport.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := newFakeClient("628999")
	idx := len(f.clients)
	if idx >= len(f.scripts) {
		idx = len(f.scripts) - 1
	}
	for _, evt := range f.scripts[idx] {
		c.events <- evt
	}
	f.clients = append(f.clients, c)
	return c
}

func (f *scriptedFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func TestSupervisorRestartPolicy(t *testing.T) {
	t.Run("retryable disconnect starts exactly one replacement", func(t *testing.T) {
		factory := &scriptedFactory{scripts: [][]transport.Event{
			{transport.Connected{}, transport.Disconnected{Reason: transport.ReasonConnectionLost}},
			{transport.Connected{}},
		}}
		sup := New(testConfig(t), newFakeStore(), factory.new, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := sup.Start(ctx, "auth_info_main"); err != nil {
			t.Fatalf("start failed: %v", err)
		}

		waitFor(t, func() bool { return factory.count() == 2 })
		waitFor(t, func() bool { return sup.Connected() })

		// Give a few backoff periods a chance to misfire.
		time.Sleep(100 * time.Millisecond)
		if got := factory.count(); got != 2 {
			t.Errorf("expected exactly one replacement machine, got %d total", got)
		}
	})

	t.Run("logout never starts a replacement", func(t *testing.T) {
		factory := &scriptedFactory{scripts: [][]transport.Event{
			{transport.Connected{}, transport.Disconnected{Reason: transport.ReasonLoggedOut}},
		}}
		sup := New(testConfig(t), newFakeStore(), factory.new, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := sup.Start(ctx, "auth_info_main"); err != nil {
			t.Fatalf("start failed: %v", err)
		}

		time.Sleep(100 * time.Millisecond)
		if got := factory.count(); got != 1 {
			t.Errorf("expected zero replacement machines after logout, got %d total", got)
		}
	})

	t.Run("restart reuses the session and its cooldowns", func(t *testing.T) {
		factory := &scriptedFactory{scripts: [][]transport.Event{
			{transport.Disconnected{Reason: transport.ReasonConnectionLost}},
			{transport.Connected{}},
		}}
		sup := New(testConfig(t), newFakeStore(), factory.new, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := sup.Start(ctx, "auth_info_main"); err != nil {
			t.Fatalf("start failed: %v", err)
		}

		sup.mu.RLock()
		before := sup.sessions["auth_info_main"]
		sup.mu.RUnlock()

		waitFor(t, func() bool { return factory.count() == 2 })

		sup.mu.RLock()
		after := sup.sessions["auth_info_main"]
		sup.mu.RUnlock()

		if before != after {
			t.Error("restart must reuse the Session object, not rebuild it")
		}
	})

	t.Run("start is a no-op while the machine is live", func(t *testing.T) {
		factory := &scriptedFactory{scripts: [][]transport.Event{
			{transport.Connected{}},
		}}
		sup := New(testConfig(t), newFakeStore(), factory.new, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := sup.Start(ctx, "auth_info_main"); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if err := sup.Start(ctx, "auth_info_main"); err != nil {
			t.Fatalf("second start failed: %v", err)
		}

		if got := factory.count(); got != 1 {
			t.Errorf("expected a single live machine, got %d", got)
		}
	})

	t.Run("failed connect is retried with backoff", func(t *testing.T) {
		var mu sync.Mutex
		calls := 0
		factory := func(_ string, _ *slog.Logger) transport.Client {
			mu.Lock()
			defer mu.Unlock()
			calls++
			c := newFakeClient("628999")
			if calls == 1 {
				c.connectErr = errors.New("dial failed")
			} else {
				c.events <- transport.Connected{}
			}
			return c
		}
		sup := New(testConfig(t), newFakeStore(), factory, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sup.startOrRetry(ctx, "auth_info_main")

		waitFor(t, func() bool { return sup.Connected() })
	})
}

func TestSupervisorViews(t *testing.T) {
	t.Run("status snapshot is a copy", func(t *testing.T) {
		sup := New(testConfig(t), newFakeStore(), nil, testLogger())
		sup.setStatus("auth_info_main", statusOnline)

		snapshot := sup.StatusSnapshot()
		snapshot["auth_info_main"] = "tampered"

		if sup.StatusSnapshot()["auth_info_main"] != statusOnline {
			t.Error("mutating a snapshot must not affect the registry")
		}
	})

	t.Run("no pairing outstanding initially", func(t *testing.T) {
		sup := New(testConfig(t), newFakeStore(), nil, testLogger())
		if _, ok := sup.LatestPairing(); ok {
			t.Error("expected no pairing challenge")
		}
	})

	t.Run("clearing only drops the owning session's challenge", func(t *testing.T) {
		sup := New(testConfig(t), newFakeStore(), nil, testLogger())
		sup.setPairing("auth_info_a", "code-a")
		sup.setPairing("auth_info_b", "code-b")

		// Session a connects after b's challenge replaced its own; b's
		// challenge must survive.
		sup.clearPairing("auth_info_a")

		code, ok := sup.LatestPairing()
		if !ok || code != "code-b" {
			t.Errorf("expected code-b to survive, got %q ok=%v", code, ok)
		}

		sup.clearPairing("auth_info_b")
		if _, ok := sup.LatestPairing(); ok {
			t.Error("expected challenge cleared by its own session")
		}
	})

	t.Run("cooldown janitor prunes across sessions", func(t *testing.T) {
		sup := New(testConfig(t), newFakeStore(), nil, testLogger())

		base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
		sup.now = func() time.Time { return base.Add(10 * time.Minute) }

		sess := newSession("auth_info_main", sup, newFakeStore(), 5*time.Minute, time.UTC, time.Now, testLogger())
		sess.cooldowns.Allow("k", base)
		sup.mu.Lock()
		sup.sessions["auth_info_main"] = sess
		sup.mu.Unlock()

		sup.pruneCooldowns()
		if sess.cooldowns.Len() != 0 {
			t.Error("expected expired entry to be pruned")
		}
	})
}
