package ws

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"messaging-service/internal/access"
	"messaging-service/internal/models"
	"messaging-service/internal/presence"
)

const (
	userA     = "11111111-1111-4111-8111-111111111111"
	userB     = "22222222-2222-4222-8222-222222222222"
	userC     = "55555555-5555-4555-8555-555555555555"
	chatAB    = "33333333-3333-4333-8333-333333333333"
	messageID = "44444444-4444-4444-8444-444444444444"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeConn struct {
	id     string
	userID string

	mu       sync.Mutex
	sent     []Outbound
	failSend error
	closed   bool
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(ev Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend != nil {
		return c.failSend
	}
	c.sent = append(c.sent, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Sent() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outbound(nil), c.sent...)
}

func (c *fakeConn) Events() []string {
	out := []string{}
	for _, ev := range c.Sent() {
		out = append(out, ev.Event)
	}
	return out
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type storeMock struct {
	mock.Mock
}

func (m *storeMock) SendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, models.Chat, error) {
	args := m.Called(ctx, chatID, senderID, content)
	return args.Get(0).(models.Message), args.Get(1).(models.Chat), args.Error(2)
}

func (m *storeMock) EditMessage(ctx context.Context, messageID, senderID, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *storeMock) DeleteMessage(ctx context.Context, messageID, senderID string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *storeMock) MarkRead(ctx context.Context, chatID, readerID string) ([]models.Message, models.Chat, error) {
	args := m.Called(ctx, chatID, readerID)
	var msgs []models.Message
	if v := args.Get(0); v != nil {
		msgs = v.([]models.Message)
	}
	return msgs, args.Get(1).(models.Chat), args.Error(2)
}

func (m *storeMock) InboxRow(ctx context.Context, userID, chatID string) (models.InboxRow, error) {
	args := m.Called(ctx, userID, chatID)
	return args.Get(0).(models.InboxRow), args.Error(1)
}

func (m *storeMock) ChatIDsOf(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	var ids []string
	if v := args.Get(0); v != nil {
		ids = v.([]string)
	}
	return ids, args.Error(1)
}

type accessMock struct {
	mock.Mock
}

func (m *accessMock) CanAccessChat(ctx context.Context, userID, chatID string) (models.Chat, access.Denial, error) {
	args := m.Called(ctx, userID, chatID)
	return args.Get(0).(models.Chat), args.Get(1).(access.Denial), args.Error(2)
}

func (m *accessMock) CanAccessChats(ctx context.Context, userID string, chatIDs []string) (bool, []models.Chat, error) {
	args := m.Called(ctx, userID, chatIDs)
	var chats []models.Chat
	if v := args.Get(1); v != nil {
		chats = v.([]models.Chat)
	}
	return args.Bool(0), chats, args.Error(2)
}

type wsFixture struct {
	store     *storeMock
	access    *accessMock
	presence  *presence.Registry
	hub       *Hub
	lifecycle *Lifecycle
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &wsFixture{
		store:    &storeMock{},
		access:   &accessMock{},
		presence: presence.NewRegistry(),
		hub:      NewHub(),
	}
	dispatcher := NewDispatcher(f.hub, f.presence, f.access, logger)
	f.lifecycle = NewLifecycle(Deps{
		Store:      f.store,
		Access:     f.access,
		Presence:   f.presence,
		Hub:        f.hub,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, Options{MaxInflight: 2})
	return f
}

// open connects a fake client whose user has no chats yet.
func (f *wsFixture) open(connID, userID string) (*fakeConn, *Session) {
	conn := newFakeConn(connID, userID)
	f.store.On("ChatIDsOf", mock.Anything, userID).Return([]string{}, nil).Maybe()
	return conn, f.lifecycle.Open(context.Background(), conn, ConnInfo{ConnID: connID, UserID: userID})
}

func chatBetweenAB() models.Chat {
	a, b := models.CanonicalPair(userA, userB)
	return models.Chat{ID: chatAB, UserAID: a, UserBID: b}
}

func frame(event, id, data string) []byte {
	raw := `{"event":"` + event + `"`
	if id != "" {
		raw += `,"id":"` + id + `"`
	}
	if data != "" {
		raw += `,"data":` + data
	}
	return []byte(raw + "}")
}
