// Package session – machine.go implements the per-session connection
// lifecycle state machine.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jholhewres/wareply/pkg/wareply/transport"
)

// ConnState is a connection lifecycle state.
type ConnState string

const (
	StateInit            ConnState = "init"
	StateAwaitingPairing ConnState = "awaiting_pairing"
	StateConnected       ConnState = "connected"
	StateDisconnected    ConnState = "disconnected"
	StateRestarting      ConnState = "restarting"
	StateLoggedOut       ConnState = "logged_out"
)

// Terminal reports whether no further transition can leave the state.
func (s ConnState) Terminal() bool { return s == StateLoggedOut }

// Machine drives one transport client's lifecycle for one session. A
// machine instance lives for exactly one connection attempt: after a
// disconnect it exits, reporting whether the supervisor should start a
// replacement. The run ID correlates one instance's log lines across the
// restarts of its session.
type Machine struct {
	runID   string
	session *Session
	sup     *Supervisor
	logger  *slog.Logger

	state atomic.Value // ConnState
}

func newMachine(sess *Session, sup *Supervisor, logger *slog.Logger) *Machine {
	m := &Machine{
		runID:   uuid.NewString(),
		session: sess,
		sup:     sup,
	}
	m.logger = logger.With("session", sess.name, "run_id", m.runID)
	m.setState(StateInit)
	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() ConnState {
	if v := m.state.Load(); v != nil {
		return v.(ConnState)
	}
	return StateInit
}

func (m *Machine) setState(s ConnState) {
	m.state.Store(s)
}

// Run consumes the client's event stream until shutdown, logout or a
// retryable disconnect. It returns true when the supervisor should start
// a replacement instance. Message handling happens inline here, which
// serializes the whole inbound pipeline per session.
func (m *Machine) Run(ctx context.Context) bool {
	events := m.session.client.Events()
	for {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-events:
			if !ok {
				// Client torn down without a disconnect reason: shutdown.
				return false
			}
			restart, done := m.handleEvent(ctx, evt)
			if done {
				return restart
			}
		}
	}
}

// handleEvent applies one event to the machine. A panic while processing
// is logged and leaves the machine in its last known state; it never takes
// down the loop.
func (m *Machine) handleEvent(ctx context.Context, evt transport.Event) (restart, done bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic handling connection event", "panic", r, "state", m.State())
			restart, done = false, false
		}
	}()

	switch e := evt.(type) {
	case transport.Pairing:
		m.setState(StateAwaitingPairing)
		m.logger.Info("pairing challenge received, scan via the panel")
		m.sup.setPairing(m.session.name, e.Code)

	case transport.Connected:
		m.setState(StateConnected)
		m.logger.Info("connected")
		m.sup.clearPairing(m.session.name)
		m.sup.setStatus(m.session.name, statusOnline)
		m.sup.resetBackoff(m.session.name)

	case transport.Disconnected:
		m.setState(StateDisconnected)
		m.sup.setStatus(m.session.name, statusOffline)
		if e.Reason.Terminal() {
			m.setState(StateLoggedOut)
			m.logger.Warn("logged out, session ended permanently", "reason", e.Reason)
			return false, true
		}
		m.setState(StateRestarting)
		m.logger.Warn("disconnected, requesting restart", "reason", e.Reason)
		return true, true

	case transport.Message:
		m.session.handleMessage(ctx, e)
	}

	return false, false
}
