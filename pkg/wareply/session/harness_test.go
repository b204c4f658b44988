package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/wareply/pkg/wareply/config"
	"github.com/jholhewres/wareply/pkg/wareply/persona"
	"github.com/jholhewres/wareply/pkg/wareply/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// fakeClient is an in-memory transport.Client recording sent messages.
type fakeClient struct {
	self   string
	events chan transport.Event

	mu   sync.Mutex
	sent []sentMessage

	connectErr error
	sendErr    error

	closeOnce sync.Once
}

type sentMessage struct {
	chat     string
	text     string
	mentions []string
}

func newFakeClient(self string) *fakeClient {
	return &fakeClient{
		self:   self,
		events: make(chan transport.Event, 32),
	}
}

func (c *fakeClient) Connect(ctx context.Context) error { return c.connectErr }

func (c *fakeClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.events) })
}

func (c *fakeClient) SendText(_ context.Context, chatID, text string, mentions []string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{chat: chatID, text: text, mentions: mentions})
	return nil
}

func (c *fakeClient) Events() <-chan transport.Event { return c.events }

func (c *fakeClient) SelfID() string { return c.self }

func (c *fakeClient) sentMessages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeStore is an in-memory persona.Store with the same default-on-absent
// semantics as the file store.
type fakeStore struct {
	mu         sync.Mutex
	assistants map[string]string
	owners     map[string]persona.Owner
	reasons    map[string]persona.OfflineReason
	online     map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assistants: make(map[string]string),
		owners:     make(map[string]persona.Owner),
		reasons:    make(map[string]persona.OfflineReason),
		online:     make(map[string]bool),
	}
}

func (f *fakeStore) AssistantName(session string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.assistants[session]; ok {
		return name
	}
	return persona.DefaultAssistantName
}

func (f *fakeStore) SetAssistantName(session, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assistants[session] = name
	return nil
}

func (f *fakeStore) Owner(session string) persona.Owner {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.owners[session]; ok {
		return o
	}
	return persona.Owner{Name: persona.DefaultOwnerName}
}

func (f *fakeStore) SetOwner(session, name string, gender persona.Gender) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.owners[session]
	o.Name = name
	if gender == persona.GenderMale || gender == persona.GenderFemale {
		o.Gender = gender
	}
	f.owners[session] = o
	return nil
}

func (f *fakeStore) OfflineReason(session string) persona.OfflineReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reasons[session]
	if r.Reason == "" {
		r.Reason = persona.DefaultOfflineReason
	}
	if r.Time == "" {
		r.Time = persona.DefaultOfflineTime
	}
	return r
}

func (f *fakeStore) SetOfflineReason(session, reason, formattedTime string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons[session] = persona.OfflineReason{Reason: reason, Time: formattedTime}
	return nil
}

func (f *fakeStore) OnlineFlag(session string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	online, ok := f.online[session]
	if !ok {
		return true
	}
	return online
}

func (f *fakeStore) SetOnlineFlag(session string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[session] = online
	return nil
}

// testConfig returns a config suitable for tests: isolated directories and
// a fast restart schedule.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SessionsDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.StatusFile = cfg.DataDir + "/status.json"
	cfg.Timezone = "UTC"
	cfg.Reconnect.InitialBackoff = 5 * time.Millisecond
	cfg.Reconnect.MaxBackoff = 20 * time.Millisecond
	return cfg
}

// newTestSession builds a Session wired to a fake client and store,
// registered with a supervisor, with a controllable clock.
func newTestSession(t *testing.T, store persona.Store, client *fakeClient, now func() time.Time) (*Session, *Supervisor) {
	t.Helper()

	cfg := testConfig(t)
	sup := New(cfg, store, nil, testLogger())
	sup.now = now

	sess := newSession("auth_info_main", sup, store, cfg.CooldownWindow, time.UTC, now, testLogger())
	sess.bind(client)

	sup.mu.Lock()
	sup.sessions[sess.name] = sess
	sup.statuses[sess.name] = statusOffline
	sup.mu.Unlock()

	return sess, sup
}
