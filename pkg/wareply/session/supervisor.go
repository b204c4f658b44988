// Package session – supervisor.go owns the set of managed sessions:
// discovery at startup, exactly one live machine per identity, restart
// with backoff on retryable disconnects, and the cross-session status and
// pairing views consulted by !status and the panel.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"

	"github.com/jholhewres/wareply/pkg/wareply/config"
	"github.com/jholhewres/wareply/pkg/wareply/persona"
	"github.com/jholhewres/wareply/pkg/wareply/transport"
)

// ErrDiscovery wraps failures to enumerate the sessions root.
var ErrDiscovery = errors.New("session discovery failed")

// SessionDirPrefix marks the directories under the sessions root that
// hold one account's credentials.
const SessionDirPrefix = "auth_info_"

// Status indicator lines published per session.
const (
	statusOnline  = "🟢 Online"
	statusOffline = "🔴 Offline"
)

// ClientFactory constructs a transport client bound to one session
// directory. Production wires the whatsmeow adapter; tests wire fakes.
type ClientFactory func(sessionDir string, logger *slog.Logger) transport.Client

// DiscoverSessions enumerates session identities: the names of the
// directories under root carrying the recognized prefix.
func DiscoverSessions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrDiscovery, root, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), SessionDirPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

type pairingChallenge struct {
	session string
	code    string
}

// Supervisor starts one managed session per discovered identity and
// replaces a session's machine when its connection drops with a retryable
// reason. Cross-session state (status lines, the latest pairing
// challenge) lives here behind a lock; sessions never touch each other's
// internals.
type Supervisor struct {
	cfg     *config.Config
	store   persona.Store
	factory ClientFactory
	logger  *slog.Logger

	loc *time.Location
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	running  map[string]*Machine
	statuses map[string]string
	pairing  *pairingChallenge
	backoffs map[string]*backoff.ExponentialBackOff

	cron *cron.Cron
}

// New creates a Supervisor. The factory is invoked once per machine
// instance, so every restart gets a fresh client and event subscription.
func New(cfg *config.Config, store persona.Store, factory ClientFactory, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:      cfg,
		store:    store,
		factory:  factory,
		logger:   logger.With("component", "supervisor"),
		loc:      cfg.Location(),
		now:      time.Now,
		sessions: make(map[string]*Session),
		running:  make(map[string]*Machine),
		statuses: make(map[string]string),
		backoffs: make(map[string]*backoff.ExponentialBackOff),
	}
}

// Run discovers all session identities, starts them, and blocks until the
// context is cancelled. The cooldown janitor runs for the whole lifetime.
func (s *Supervisor) Run(ctx context.Context) error {
	names, err := DiscoverSessions(s.cfg.SessionsDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		s.logger.Warn("no session directories found",
			"dir", s.cfg.SessionsDir, "prefix", SessionDirPrefix)
	}

	for _, name := range names {
		s.startOrRetry(ctx, name)
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every 10m", s.pruneCooldowns); err != nil {
		return fmt.Errorf("scheduling cooldown janitor: %w", err)
	}
	s.cron.Start()
	defer s.cron.Stop()

	<-ctx.Done()
	s.logger.Info("shutting down")
	return nil
}

// Start creates a fresh machine for one session identity and begins its
// event loop. The Session object is reused across restarts so cooldown
// history survives; only the client and machine are replaced. Starting an
// identity whose machine is still live is a no-op.
//
// Start is never called again for a session that reached logged_out: the
// operator ended that session intentionally, and resuming it is a policy
// decision, not something the supervisor does on its own.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	if _, live := s.running[name]; live {
		s.mu.Unlock()
		s.logger.Warn("session already running, ignoring start", "session", name)
		return nil
	}

	sess, ok := s.sessions[name]
	if !ok {
		sess = newSession(name, s, s.store, s.cfg.CooldownWindow, s.loc, s.now, s.logger)
		s.sessions[name] = sess
	}

	client := s.factory(filepath.Join(s.cfg.SessionsDir, name), s.logger)
	sess.bind(client)

	m := newMachine(sess, s, s.logger)
	s.running[name] = m
	if _, ok := s.statuses[name]; !ok {
		s.statuses[name] = statusOffline
	}
	s.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
		return fmt.Errorf("connecting session %s: %w", name, err)
	}

	go func() {
		restart := m.Run(ctx)
		client.Disconnect()

		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()

		if restart && ctx.Err() == nil {
			s.scheduleRestart(ctx, name)
		}
	}()

	return nil
}

// startOrRetry starts a session, falling back to the backoff schedule
// when the start itself fails.
func (s *Supervisor) startOrRetry(ctx context.Context, name string) {
	if err := s.Start(ctx, name); err != nil {
		s.logger.Error("failed to start session", "session", name, "error", err)
		s.scheduleRestart(ctx, name)
	}
}

// scheduleRestart arms a one-shot timer for the session's next restart
// attempt. Fire-and-forget: the disconnect path never blocks on the
// replacement coming up.
func (s *Supervisor) scheduleRestart(ctx context.Context, name string) {
	delay := s.nextBackoff(name)
	if delay == backoff.Stop {
		s.logger.Error("giving up on session, retry budget exhausted", "session", name)
		return
	}

	s.logger.Info("restart scheduled", "session", name, "delay", delay)
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		s.startOrRetry(ctx, name)
	})
}

// nextBackoff returns the delay before the session's next restart,
// growing exponentially until resetBackoff is called on a successful
// connect.
func (s *Supervisor) nextBackoff(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.backoffs[name]
	if !ok {
		b = backoff.NewExponentialBackOff()
		b.InitialInterval = s.cfg.Reconnect.InitialBackoff
		b.MaxInterval = s.cfg.Reconnect.MaxBackoff
		b.MaxElapsedTime = s.cfg.Reconnect.MaxElapsed
		b.Reset()
		s.backoffs[name] = b
	}
	return b.NextBackOff()
}

// resetBackoff clears a session's backoff schedule after a successful
// connect.
func (s *Supervisor) resetBackoff(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.backoffs[name]; ok {
		b.Reset()
	}
}

// setStatus publishes a session's status indicator line.
func (s *Supervisor) setStatus(name, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[name] = status
}

// StatusSnapshot returns a copy of every known session's status line.
// Safe to call concurrently with updates from any session.
func (s *Supervisor) StatusSnapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]string, len(s.statuses))
	for name, status := range s.statuses {
		snapshot[name] = status
	}
	return snapshot
}

// setPairing records the latest outstanding pairing challenge. Only the
// most recent one is retained, across all sessions.
func (s *Supervisor) setPairing(name, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairing = &pairingChallenge{session: name, code: code}
}

// clearPairing drops the outstanding challenge if it belongs to the given
// session (it paired or reconnected, the code is spent).
func (s *Supervisor) clearPairing(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pairing != nil && s.pairing.session == name {
		s.pairing = nil
	}
}

// LatestPairing returns the most recent outstanding pairing challenge.
func (s *Supervisor) LatestPairing() (code string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pairing == nil {
		return "", false
	}
	return s.pairing.code, true
}

// Connected reports whether any session currently has a live connection.
func (s *Supervisor) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.running {
		if m.State() == StateConnected {
			return true
		}
	}
	return false
}

// pruneCooldowns drops expired cooldown entries across all sessions. The
// maps are small, but a long-lived busy session would otherwise grow one
// entry per conversation forever.
func (s *Supervisor) pruneCooldowns() {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	now := s.now()
	total := 0
	for _, sess := range sessions {
		total += sess.cooldowns.Prune(now)
	}
	if total > 0 {
		s.logger.Debug("pruned expired cooldown entries", "count", total)
	}
}
