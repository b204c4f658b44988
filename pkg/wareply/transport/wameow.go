// Package transport – wameow.go implements Client on top of whatsmeow,
// the native Go WhatsApp Web API library. One Wameow instance serves one
// session directory; credentials live in a SQLite store inside that
// directory.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.
)

// Wameow is the whatsmeow-backed Client. Reconnect policy lives with the
// caller: on any connection loss Wameow emits a single Disconnected event
// and goes quiet, whatsmeow's own auto-reconnect stays disabled.
type Wameow struct {
	sessionDir string
	deviceName string
	logger     *slog.Logger

	client *whatsmeow.Client

	events chan Event

	// sendMu makes event sends and the close in Disconnect mutually
	// exclusive, so teardown can never race an emitter into a send on a
	// closed channel. Disconnect cancels the context before taking the
	// lock, which wakes any emitter parked on a full channel.
	sendMu sync.Mutex
	closed bool

	connected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWameow creates a Client bound to one session directory.
func NewWameow(sessionDir, deviceName string, logger *slog.Logger) *Wameow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wameow{
		sessionDir: sessionDir,
		deviceName: deviceName,
		logger:     logger.With("component", "transport", "session_dir", sessionDir),
		events:     make(chan Event, 256),
	}
}

// Connect opens the session store and establishes the WhatsApp Web
// connection. When no credentials exist yet the QR login flow runs in the
// background and pairing challenges arrive as Pairing events.
func (w *Wameow) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	dbPath := filepath.Join(w.sessionDir, "whatsapp.db")
	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := w.getDevice(w.ctx, container)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	// Name shown in the WhatsApp linked devices list.
	store.SetOSInfo(w.deviceName, [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)

	// The supervisor owns restart policy; a dropped connection must surface
	// as a Disconnected event instead of being healed behind its back.
	w.client.EnableAutoReconnect = false

	if w.client.Store.ID == nil {
		// First login — run the QR flow in the background so the caller's
		// event loop starts immediately.
		w.logger.Info("no existing credentials, QR pairing required")
		go w.loginWithQR(w.ctx)
		return nil
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	return nil
}

// Disconnect tears down the connection and closes the event channel.
// Safe to call more than once.
func (w *Wameow) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
}

// Events returns the lifecycle and message event stream.
func (w *Wameow) Events() <-chan Event {
	return w.events
}

// SelfID returns the account's numeric identity, or "" before pairing.
func (w *Wameow) SelfID() string {
	if w.client != nil && w.client.Store.ID != nil {
		return w.client.Store.ID.User
	}
	return ""
}

// SendText sends a text message, optionally tagging the given numeric
// identities.
func (w *Wameow) SendText(ctx context.Context, chatID, text string, mentions []string) error {
	if !w.connected.Load() {
		return ErrDisconnected
	}

	jid, err := parseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", chatID, err)
	}

	msg := buildTextMessage(text, mentions)
	if _, err := w.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// getDevice retrieves the existing device or creates a new one.
func (w *Wameow) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR drives the QR pairing flow, forwarding each fresh code as a
// Pairing event. A timeout surfaces as a retryable disconnect so the
// supervisor starts a fresh instance that produces a new code.
func (w *Wameow) loginWithQR(ctx context.Context) {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		w.logger.Error("getting QR channel", "error", err)
		w.emitLifecycle(Disconnected{Reason: ReasonConnectFailure})
		return
	}

	if err := w.client.Connect(); err != nil {
		w.logger.Error("connecting for QR", "error", err)
		w.emitLifecycle(Disconnected{Reason: ReasonConnectFailure})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			switch evt.Event {
			case "code":
				w.logger.Info("QR code ready, scan via the panel")
				w.emitLifecycle(Pairing{Code: evt.Code})
			case "success":
				// The Connected event from the main handler follows.
				w.logger.Info("QR pairing successful")
				return
			case "timeout":
				w.logger.Warn("QR code expired")
				w.emitLifecycle(Disconnected{Reason: ReasonPairingTimeout})
				return
			default:
				if evt.Error != nil {
					w.logger.Error("QR login error", "error", evt.Error)
					w.emitLifecycle(Disconnected{Reason: ReasonConnectFailure})
					return
				}
			}
		}
	}
}

// handleEvent is the whatsmeow event dispatcher.
func (w *Wameow) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.connected.Store(true)
		w.emitLifecycle(Connected{})

	case *events.Disconnected:
		w.connected.Store(false)
		w.emitLifecycle(Disconnected{Reason: ReasonConnectionLost})

	case *events.LoggedOut:
		w.connected.Store(false)
		w.logger.Warn("logged out by server", "reason", evt.Reason.String())
		w.emitLifecycle(Disconnected{Reason: ReasonLoggedOut})

	case *events.StreamReplaced:
		w.connected.Store(false)
		w.logger.Warn("stream replaced, another device took over")
		w.emitLifecycle(Disconnected{Reason: ReasonStreamReplaced})

	case *events.ConnectFailure:
		w.connected.Store(false)
		w.logger.Error("connect failure", "reason", evt.Reason.String(), "message", evt.Message)
		w.emitLifecycle(Disconnected{Reason: ReasonConnectFailure})

	case *events.TemporaryBan:
		w.connected.Store(false)
		w.logger.Error("temporary ban", "code", evt.Code.String(), "expire", evt.Expire)
		w.emitLifecycle(Disconnected{Reason: ReasonBanned})

	case *events.PairSuccess:
		w.logger.Info("device paired", "jid", evt.ID.String(), "platform", evt.Platform)
	}
}

// handleMessageEvt converts a whatsmeow message event into a Message.
func (w *Wameow) handleMessageEvt(evt *events.Message) {
	// Status broadcasts are not conversations.
	if evt.Info.Chat.Server == types.BroadcastServer {
		return
	}

	msg := Message{
		ChatID:    evt.Info.Chat.String(),
		SenderID:  evt.Info.Sender.User,
		SenderJID: evt.Info.Sender.String(),
		IsGroup:   evt.Info.IsGroup,
		IsFromMe:  evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}

	msg.Text = extractText(evt.Message)
	if ctxInfo := extractContextInfo(evt.Message); ctxInfo != nil {
		for _, jid := range ctxInfo.GetMentionedJID() {
			msg.Mentions = append(msg.Mentions, userPart(jid))
		}
		if p := ctxInfo.GetParticipant(); p != "" {
			msg.QuotedSender = userPart(p)
		}
	}

	w.emitMessage(msg)
}

// emitLifecycle delivers a lifecycle event. Lifecycle events are never
// dropped; delivery blocks until the consumer takes it or the client is
// torn down.
func (w *Wameow) emitLifecycle(evt Event) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- evt:
	case <-w.ctx.Done():
	}
}

// emitMessage delivers a message event, dropping it when the consumer has
// fallen behind. Losing a chat message is preferable to stalling the
// whatsmeow event handler.
func (w *Wameow) emitMessage(msg Message) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- msg:
	case <-w.ctx.Done():
	default:
		w.logger.Warn("event channel full, dropping message", "chat", msg.ChatID)
	}
}

// extractText pulls the text body out of a WhatsApp message.
func extractText(waMsg *waProto.Message) string {
	if waMsg == nil {
		return ""
	}
	if waMsg.Conversation != nil {
		return waMsg.GetConversation()
	}
	if ext := waMsg.ExtendedTextMessage; ext != nil {
		return ext.GetText()
	}
	return ""
}

// extractContextInfo returns the context info (mentions, quoting) from any
// message type that carries one.
func extractContextInfo(waMsg *waProto.Message) *waProto.ContextInfo {
	if waMsg == nil {
		return nil
	}
	switch {
	case waMsg.ExtendedTextMessage != nil:
		return waMsg.ExtendedTextMessage.GetContextInfo()
	case waMsg.ImageMessage != nil:
		return waMsg.ImageMessage.GetContextInfo()
	case waMsg.VideoMessage != nil:
		return waMsg.VideoMessage.GetContextInfo()
	case waMsg.AudioMessage != nil:
		return waMsg.AudioMessage.GetContextInfo()
	case waMsg.DocumentMessage != nil:
		return waMsg.DocumentMessage.GetContextInfo()
	}
	return nil
}

// buildTextMessage builds the outbound proto. Mentions require the
// extended form with context info.
func buildTextMessage(text string, mentions []string) *waProto.Message {
	if len(mentions) == 0 {
		return &waProto.Message{Conversation: proto.String(text)}
	}
	return &waProto.Message{
		ExtendedTextMessage: &waProto.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waProto.ContextInfo{
				MentionedJID: mentions,
			},
		},
	}
}

// userPart returns the numeric identity of a JID string: the part before
// "@", with any device suffix after ":" stripped.
func userPart(jid string) string {
	user := jid
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user
}

// parseJID converts a string to a types.JID. Accepts a full JID
// ("5511999999999@s.whatsapp.net", "123-456@g.us") or a bare phone number.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
