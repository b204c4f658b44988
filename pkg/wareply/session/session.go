// Package session implements the core of wareply: a supervisor owning one
// managed session per WhatsApp account, each with its own connection state
// machine, command dispatcher and rate-limited offline auto-responder.
package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jholhewres/wareply/pkg/wareply/persona"
	"github.com/jholhewres/wareply/pkg/wareply/transport"
)

// Session is one managed chat account. It is created the first time its
// identity is started and lives until process shutdown; reconnects replace
// the transport client and state machine but never the Session itself, so
// cooldown history survives a restart.
//
// All fields except cooldowns are touched only from the session's own
// event-loop goroutine.
type Session struct {
	name   string
	sup    *Supervisor
	store  persona.Store
	logger *slog.Logger

	loc *time.Location
	now func() time.Time

	client transport.Client

	// offline is the auto-reply-active flag, the negation of the persisted
	// online flag at startup, mutated only by the command dispatcher.
	offline bool

	// assistant is the current assistant display name.
	assistant string

	cooldowns *Cooldowns
}

func newSession(name string, sup *Supervisor, store persona.Store, window time.Duration, loc *time.Location, now func() time.Time, logger *slog.Logger) *Session {
	return &Session{
		name:      name,
		sup:       sup,
		store:     store,
		logger:    logger.With("session", name),
		loc:       loc,
		now:       now,
		offline:   !store.OnlineFlag(name),
		assistant: store.AssistantName(name),
		cooldowns: NewCooldowns(window),
	}
}

// bind attaches a fresh transport client before a machine instance starts.
func (s *Session) bind(client transport.Client) {
	s.client = client
}

// Name returns the session identity.
func (s *Session) Name() string { return s.name }

// handleMessage runs the full inbound pipeline for one message: command
// dispatch first, then the offline auto-reply gate. Failures here must
// never take the session down, so everything is recovered and logged.
func (s *Session) handleMessage(ctx context.Context, msg transport.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling message", "chat", msg.ChatID, "panic", r)
		}
	}()

	// Self-sent messages never feed back into commands or auto-replies.
	if msg.IsFromMe {
		return
	}

	if s.dispatch(ctx, msg) {
		return
	}

	if !s.offline {
		return
	}

	if msg.IsGroup && !s.groupTriggered(msg) {
		return
	}

	key := CooldownKey(msg.ChatID, msg.SenderID, msg.IsGroup)
	now := s.now().In(s.loc)
	if !s.cooldowns.Allow(key, now) {
		return
	}

	owner := OwnerCall(s.store.Owner(s.name))
	reason := s.store.OfflineReason(s.name)

	if msg.IsGroup {
		text := groupReply(now, msg.SenderID, owner, reason, s.assistant)
		s.send(ctx, msg.ChatID, text, []string{msg.SenderJID})
	} else {
		text := directReply(now, owner, reason, s.assistant)
		s.send(ctx, msg.ChatID, text, nil)
	}
}

// groupTriggered reports whether a multi-party message addresses the bot:
// its numeric identity appears in the text, it is tagged in the mention
// list, or the message replies to one of its own.
func (s *Session) groupTriggered(msg transport.Message) bool {
	self := s.client.SelfID()
	if self == "" {
		return false
	}
	if strings.Contains(msg.Text, self) {
		return true
	}
	if slices.Contains(msg.Mentions, self) {
		return true
	}
	return msg.QuotedSender != "" && strings.Contains(msg.QuotedSender, self)
}

// send delivers a reply, logging transport failures instead of
// propagating them; an abandoned reply never affects session state.
func (s *Session) send(ctx context.Context, chatID, text string, mentions []string) {
	if err := s.client.SendText(ctx, chatID, text, mentions); err != nil {
		s.logger.Warn("failed to send reply", "chat", chatID, "error", err)
	}
}
