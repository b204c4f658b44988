// Package transport defines the chat-protocol boundary the session core
// runs against. The production implementation (Wameow) speaks WhatsApp Web
// via whatsmeow; tests substitute an in-memory fake.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrDisconnected is returned by SendText when the client has no live
// connection.
var ErrDisconnected = errors.New("transport: not connected")

// DisconnectReason classifies why a connection closed.
type DisconnectReason string

const (
	ReasonLoggedOut      DisconnectReason = "logged_out"
	ReasonStreamReplaced DisconnectReason = "stream_replaced"
	ReasonConnectionLost DisconnectReason = "connection_lost"
	ReasonConnectFailure DisconnectReason = "connect_failure"
	ReasonPairingTimeout DisconnectReason = "pairing_timeout"
	ReasonBanned         DisconnectReason = "banned"
	ReasonUnknown        DisconnectReason = "unknown"
)

// Terminal reports whether the reason permanently ends the session.
// Only an explicit logout is terminal; every unrecognized reason is
// treated as retryable so a transient hiccup never silently stops an
// account from being served.
func (r DisconnectReason) Terminal() bool {
	return r == ReasonLoggedOut
}

// Event is a connection lifecycle or message event emitted by a Client.
type Event interface{ transportEvent() }

// Pairing carries a fresh pairing challenge (QR code payload) that must be
// scanned to authenticate the session.
type Pairing struct {
	Code string
}

// Connected signals a successfully established connection.
type Connected struct{}

// Disconnected signals a closed connection with its classified reason.
type Disconnected struct {
	Reason DisconnectReason
}

// Message is an inbound chat message.
type Message struct {
	// ChatID identifies the conversation (DM peer or group).
	ChatID string
	// SenderID is the sender's numeric identity.
	SenderID string
	// SenderJID is the sender's full address, used for mention payloads.
	SenderJID string
	// Text is the message body ("" for non-text messages).
	Text string
	// IsGroup reports whether ChatID is a multi-party conversation.
	IsGroup bool
	// IsFromMe reports whether this account sent the message itself.
	IsFromMe bool
	// Mentions holds the numeric identities tagged in the message.
	Mentions []string
	// QuotedSender is the numeric identity of the quoted message's sender,
	// or "" when the message is not a reply.
	QuotedSender string
	// Timestamp is when the message was sent.
	Timestamp time.Time
}

func (Pairing) transportEvent()      {}
func (Connected) transportEvent()    {}
func (Disconnected) transportEvent() {}
func (Message) transportEvent()      {}

// Client is one account's connection to the chat protocol.
//
// Events delivers lifecycle and message events in order; the channel is
// closed when the connection is permanently torn down. SelfID returns the
// account's numeric identity once known ("" before pairing completes).
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	SendText(ctx context.Context, chatID, text string, mentions []string) error
	Events() <-chan Event
	SelfID() string
}
