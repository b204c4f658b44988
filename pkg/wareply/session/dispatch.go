// Package session – dispatch.go implements the command grammar. Commands
// are evaluated top-to-bottom; the first matching handler runs, and every
// handler except !ping stops further processing of the message.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jholhewres/wareply/pkg/wareply/persona"
	"github.com/jholhewres/wareply/pkg/wareply/transport"
)

// command is one guarded handler in the dispatch sequence.
type command struct {
	// matches guards the handler against the raw message text.
	matches func(text string) bool
	// terminating stops both command evaluation and the auto-reply gate.
	terminating bool
	run         func(ctx context.Context, s *Session, msg transport.Message)
}

// commands in priority order. Order matters: it is part of the grammar.
var commands = []command{
	{
		// !ping replies but does not consume the message, so a ping while
		// offline can still collect an auto-reply.
		matches:     func(t string) bool { return strings.EqualFold(t, "!ping") },
		terminating: false,
		run: func(ctx context.Context, s *Session, msg transport.Message) {
			s.send(ctx, msg.ChatID, "*Pong!*", nil)
		},
	},
	{
		matches:     func(t string) bool { return t == "!status" },
		terminating: true,
		run:         runStatus,
	},
	{
		matches:     func(t string) bool { return strings.HasPrefix(t, "!off ") },
		terminating: true,
		run:         runOff,
	},
	{
		matches:     func(t string) bool { return t == "!on" },
		terminating: true,
		run:         runOn,
	},
	{
		matches:     func(t string) bool { return strings.HasPrefix(t, "!defaultasisten ") },
		terminating: true,
		run:         runDefaultAssistant,
	},
	{
		matches:     func(t string) bool { return strings.HasPrefix(t, "!setowner ") },
		terminating: true,
		run:         runSetOwner,
	},
}

// dispatch runs the command grammar against one message and reports
// whether a terminating command consumed it.
func (s *Session) dispatch(ctx context.Context, msg transport.Message) bool {
	for _, c := range commands {
		if !c.matches(msg.Text) {
			continue
		}
		c.run(ctx, s, msg)
		if c.terminating {
			return true
		}
	}
	return false
}

// runStatus replies with one line per known session.
func runStatus(ctx context.Context, s *Session, msg transport.Message) {
	snapshot := s.sup.StatusSnapshot()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("📊 *Status semua akun:* ")
	for _, name := range names {
		b.WriteString(fmt.Sprintf("\n• *%s*: %s", name, snapshot[name]))
	}
	s.send(ctx, msg.ChatID, b.String(), nil)
}

// runOff enables offline mode, persisting the flag and, when given, the
// reason with the current timestamp.
func runOff(ctx context.Context, s *Session, msg transport.Message) {
	reason := strings.TrimSpace(strings.TrimPrefix(msg.Text, "!off "))
	now := s.now().In(s.loc)

	s.offline = true
	if err := s.store.SetOnlineFlag(s.name, false); err != nil {
		s.logger.Warn("failed to persist online flag", "error", err)
	}
	if reason != "" {
		if err := s.store.SetOfflineReason(s.name, reason, FormatTimestamp(now)); err != nil {
			s.logger.Warn("failed to persist offline reason", "error", err)
		}
	}

	text := "🤖 Mode offline diaktifkan."
	if reason != "" {
		text += fmt.Sprintf("\n📝 Alasan: *%s*", reason)
	}
	text += fmt.Sprintf("\n⏱ Waktu: *%s*", FormatTimestamp(now))
	s.send(ctx, msg.ChatID, text, nil)
}

// runOn disables offline mode and persists the flag.
func runOn(ctx context.Context, s *Session, msg transport.Message) {
	s.offline = false
	if err := s.store.SetOnlineFlag(s.name, true); err != nil {
		s.logger.Warn("failed to persist online flag", "error", err)
	}
	s.send(ctx, msg.ChatID, "🤖 Mode online diaktifkan.", nil)
}

// runDefaultAssistant updates the assistant display name. An empty name is
// silently ignored.
func runDefaultAssistant(ctx context.Context, s *Session, msg transport.Message) {
	name := strings.TrimSpace(strings.TrimPrefix(msg.Text, "!defaultasisten "))
	if name == "" {
		return
	}
	s.assistant = name
	if err := s.store.SetAssistantName(s.name, name); err != nil {
		s.logger.Warn("failed to persist assistant name", "error", err)
	}
	s.send(ctx, msg.ChatID, fmt.Sprintf("✅ Default asisten sekarang: *%s*", name), nil)
}

// runSetOwner parses "<name>|<gender>" and persists the owner record. An
// empty name is a usage error and mutates nothing; a gender other than
// male/female leaves the persisted gender untouched.
func runSetOwner(ctx context.Context, s *Session, msg transport.Message) {
	args := strings.Split(strings.TrimSpace(strings.TrimPrefix(msg.Text, "!setowner ")), "|")

	name := strings.TrimSpace(args[0])
	gender := persona.GenderUnset
	if len(args) > 1 {
		gender = persona.Gender(strings.ToLower(strings.TrimSpace(args[1])))
	}

	if name == "" {
		s.send(ctx, msg.ChatID, "⚠️ Format salah.\nContoh: *!setowner <nama> | <male/female>*", nil)
		return
	}

	if err := s.store.SetOwner(s.name, name, gender); err != nil {
		s.logger.Warn("failed to persist owner", "error", err)
	}

	text := fmt.Sprintf("👑 Owner diset ke: *%s*", name)
	if gender == persona.GenderMale || gender == persona.GenderFemale {
		text += fmt.Sprintf(" (gender: %s)", gender)
	}
	s.send(ctx, msg.ChatID, text, nil)
}
